package queue

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"golang.org/x/sync/semaphore"

	"github.com/user/agentrelay/internal/bridge"
)

const (
	maxBatchSize   = 10
	receiveBackoff = 2 * time.Second
)

// ReceiveAPI is the subset of the SQS client used by the Poller.
type ReceiveAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// BatchHandler processes one received batch and returns the message ids
// of the records that failed.
type BatchHandler interface {
	HandleBatch(ctx context.Context, records []bridge.Record) []string
}

// Poller long-polls a queue and hands each batch to a BatchHandler, the way
// an SQS event source mapping would. Batches run concurrently up to the
// semaphore weight; records inside a batch stay sequential.
type Poller struct {
	api      ReceiveAPI
	url      string
	handler  BatchHandler
	sem      *semaphore.Weighted
	waitTime int32
	wg       sync.WaitGroup
}

// NewPoller creates a Poller. maxConcurrent bounds in-flight batches and
// waitSeconds is the long-poll wait (0 to 20).
func NewPoller(api ReceiveAPI, url string, handler BatchHandler, maxConcurrent int64, waitSeconds int) *Poller {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Poller{
		api:      api,
		url:      url,
		handler:  handler,
		sem:      semaphore.NewWeighted(maxConcurrent),
		waitTime: int32(min(max(waitSeconds, 0), 20)),
	}
}

// Run receives until ctx is cancelled, then waits for in-flight batches.
func (p *Poller) Run(ctx context.Context) error {
	if p.url == "" {
		return ErrNoQueueURL
	}
	defer p.wg.Wait()

	slog.Info("queue poller started", "queue_url", p.url)
	for {
		if err := p.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		out, err := p.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(p.url),
			MaxNumberOfMessages:         maxBatchSize,
			WaitTimeSeconds:             p.waitTime,
			MessageSystemAttributeNames: []sqstypes.MessageSystemAttributeName{sqstypes.MessageSystemAttributeNameApproximateReceiveCount},
		})
		if err != nil {
			p.sem.Release(1)
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("receive messages", "error", err)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(receiveBackoff):
			}
			continue
		}
		if len(out.Messages) == 0 {
			p.sem.Release(1)
			continue
		}

		p.wg.Add(1)
		go func(msgs []sqstypes.Message) {
			defer p.wg.Done()
			defer p.sem.Release(1)
			p.process(ctx, msgs)
		}(out.Messages)
	}
}

func (p *Poller) process(ctx context.Context, msgs []sqstypes.Message) {
	records := make([]bridge.Record, len(msgs))
	handles := make(map[string]string, len(msgs))
	for i, m := range msgs {
		records[i] = toRecord(m)
		handles[records[i].MessageID] = aws.ToString(m.ReceiptHandle)
	}

	failed := make(map[string]bool)
	for _, id := range p.handler.HandleBatch(ctx, records) {
		failed[id] = true
	}

	// Deletion outlives shutdown so finished work is not redelivered.
	delCtx := context.WithoutCancel(ctx)
	for _, r := range records {
		if failed[r.MessageID] {
			slog.Warn("record left for redelivery", "message_id", r.MessageID, "receive_count", r.ReceiveCount)
			continue
		}
		if _, err := p.api.DeleteMessage(delCtx, &sqs.DeleteMessageInput{
			QueueUrl:      aws.String(p.url),
			ReceiptHandle: aws.String(handles[r.MessageID]),
		}); err != nil {
			slog.Error("delete message", "message_id", r.MessageID, "error", err)
		}
	}
}

func toRecord(m sqstypes.Message) bridge.Record {
	count, _ := strconv.Atoi(m.Attributes[string(sqstypes.MessageSystemAttributeNameApproximateReceiveCount)])
	return bridge.Record{
		MessageID:    aws.ToString(m.MessageId),
		Body:         aws.ToString(m.Body),
		ReceiveCount: count,
	}
}
