// Package queue wraps the SQS calls the relay makes: sending receiver
// payloads, long-polling them for the local bridge, and provisioning the
// queue pair.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// ErrNoQueueURL is returned when a Sender or Poller has no queue URL.
var ErrNoQueueURL = errors.New("queue url not configured")

// SendAPI is the subset of the SQS client used to send messages.
type SendAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Sender delivers message bodies to one queue.
type Sender struct {
	api SendAPI
	url string
}

// NewSender creates a Sender for the queue at url.
func NewSender(api SendAPI, url string) *Sender {
	return &Sender{api: api, url: url}
}

// Enqueue sends body as the message body, unchanged.
func (s *Sender) Enqueue(ctx context.Context, body []byte) error {
	if s.url == "" {
		return ErrNoQueueURL
	}
	out, err := s.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(s.url),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	slog.Debug("message sent to queue", "message_id", aws.ToString(out.MessageId))
	return nil
}
