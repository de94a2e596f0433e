package bridge

import (
	"context"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
)

// HandleSQS adapts HandleBatch to an SQS event source mapping with
// ReportBatchItemFailures enabled.
func (b *Bridge) HandleSQS(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	records := make([]Record, len(ev.Records))
	for i, m := range ev.Records {
		count, _ := strconv.Atoi(m.Attributes["ApproximateReceiveCount"])
		records[i] = Record{MessageID: m.MessageId, Body: m.Body, ReceiveCount: count}
	}

	var resp events.SQSEventResponse
	for _, id := range b.HandleBatch(ctx, records) {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: id})
	}
	return resp, nil
}
