package aws

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Metrics publishes operator-facing counters to CloudWatch.
// A nil client or an empty namespace turns every call into a no-op.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	log       *slog.Logger
	nowFunc   func() time.Time
}

// NewMetrics returns a Metrics bound to a CloudWatch namespace.
func NewMetrics(client CloudWatchAPI, namespace string, log *slog.Logger) *Metrics {
	return &Metrics{
		client:    client,
		namespace: namespace,
		log:       log,
		nowFunc:   time.Now,
	}
}

// Count records a single occurrence of name. dims are flattened key/value pairs,
// e.g. Count(ctx, "ConflictingTransition", "Event", "payment_failed").
// Publishing failures are logged and swallowed.
func (m *Metrics) Count(ctx context.Context, name string, dims ...string) {
	if m == nil || m.client == nil || m.namespace == "" {
		return
	}

	dimensions := make([]cwtypes.Dimension, 0, len(dims)/2)
	for i := 0; i+1 < len(dims); i += 2 {
		dimensions = append(dimensions, cwtypes.Dimension{
			Name:  awsString(dims[i]),
			Value: awsString(dims[i+1]),
		})
	}

	one := 1.0
	now := m.nowFunc()
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: &m.namespace,
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(name),
				Dimensions: dimensions,
				Unit:       cwtypes.StandardUnitCount,
				Value:      &one,
				Timestamp:  &now,
			},
		},
	})
	if err != nil {
		m.log.Warn("metric publish failed", "metric", name, "err", err)
	}
}
