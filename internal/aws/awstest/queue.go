package awstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQS records every message sent to it.
type SQS struct {
	mu       sync.Mutex
	Messages []*sqs.SendMessageInput
	Err      error
}

func (q *SQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return nil, q.Err
	}
	q.Messages = append(q.Messages, params)
	id := fmt.Sprintf("msg-%d", len(q.Messages))
	return &sqs.SendMessageOutput{MessageId: &id}, nil
}

// Bodies returns the bodies of all messages sent so far.
func (q *SQS) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, 0, len(q.Messages))
	for _, m := range q.Messages {
		out = append(out, *m.MessageBody)
	}
	return out
}

// CloudWatch counts metric data points by metric name.
type CloudWatch struct {
	mu     sync.Mutex
	Counts map[string]int
	Err    error
}

func (c *CloudWatch) PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Counts == nil {
		c.Counts = map[string]int{}
	}
	for _, d := range params.MetricData {
		c.Counts[metricName(d)]++
	}
	return &cloudwatch.PutMetricDataOutput{}, nil
}

// Count returns how many data points were published for name.
func (c *CloudWatch) Count(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Counts[name]
}

func metricName(d cwtypes.MetricDatum) string {
	if d.MetricName == nil {
		return ""
	}
	return *d.MetricName
}
