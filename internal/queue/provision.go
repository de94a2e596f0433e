package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

// ProvisionAPI is the subset of the SQS client used to create queues.
type ProvisionAPI interface {
	CreateQueue(ctx context.Context, params *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	GetQueueUrl(ctx context.Context, params *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// Spec describes the queue pair to provision.
type Spec struct {
	Name              string
	DLQName           string
	MaxReceiveCount   int
	VisibilityTimeout int
	RetentionPeriod   int
}

// Info identifies a provisioned queue.
type Info struct {
	Name string
	URL  string
	ARN  string
}

// Provisioner creates the relay queue and its dead-letter queue.
type Provisioner struct {
	api ProvisionAPI
}

// NewProvisioner creates a Provisioner.
func NewProvisioner(api ProvisionAPI) *Provisioner {
	return &Provisioner{api: api}
}

// Create provisions the dead-letter queue, then the main queue with a
// redrive policy pointing at it. Existing queues are reused.
func (p *Provisioner) Create(ctx context.Context, spec Spec) (main, dlq Info, err error) {
	if spec.Name == "" {
		return Info{}, Info{}, errors.New("queue name is required")
	}
	if spec.DLQName == "" {
		spec.DLQName = spec.Name + "-dlq"
	}

	dlq, err = p.ensure(ctx, spec.DLQName, map[string]string{
		string(sqstypes.QueueAttributeNameMessageRetentionPeriod): "1209600",
	})
	if err != nil {
		return Info{}, Info{}, fmt.Errorf("dead-letter queue: %w", err)
	}

	redrive, err := json.Marshal(map[string]string{
		"deadLetterTargetArn": dlq.ARN,
		"maxReceiveCount":     strconv.Itoa(spec.MaxReceiveCount),
	})
	if err != nil {
		return Info{}, Info{}, err
	}

	main, err = p.ensure(ctx, spec.Name, map[string]string{
		string(sqstypes.QueueAttributeNameDelaySeconds):                  "0",
		string(sqstypes.QueueAttributeNameMessageRetentionPeriod):        strconv.Itoa(spec.RetentionPeriod),
		string(sqstypes.QueueAttributeNameVisibilityTimeout):             strconv.Itoa(spec.VisibilityTimeout),
		string(sqstypes.QueueAttributeNameReceiveMessageWaitTimeSeconds): "0",
		string(sqstypes.QueueAttributeNameRedrivePolicy):                 string(redrive),
	})
	if err != nil {
		return Info{}, Info{}, fmt.Errorf("queue: %w", err)
	}
	return main, dlq, nil
}

func (p *Provisioner) ensure(ctx context.Context, name string, attrs map[string]string) (Info, error) {
	var url string
	out, err := p.api.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName:  aws.String(name),
		Attributes: attrs,
	})
	var exists *sqstypes.QueueNameExists
	switch {
	case err == nil:
		url = aws.ToString(out.QueueUrl)
		slog.Info("queue created", "name", name)
	case errors.As(err, &exists):
		slog.Warn("queue already exists", "name", name)
		got, err := p.api.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(name)})
		if err != nil {
			return Info{}, fmt.Errorf("get queue url %s: %w", name, err)
		}
		url = aws.ToString(got.QueueUrl)
	default:
		return Info{}, fmt.Errorf("create queue %s: %w", name, err)
	}

	attrOut, err := p.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(url),
		AttributeNames: []sqstypes.QueueAttributeName{sqstypes.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return Info{}, fmt.Errorf("get queue attributes %s: %w", name, err)
	}
	return Info{Name: name, URL: url, ARN: attrOut.Attributes[string(sqstypes.QueueAttributeNameQueueArn)]}, nil
}
