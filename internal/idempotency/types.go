package idempotency

import "time"

// Status values for delivery entries
const (
	StatusInProgress = "IN_PROGRESS"
	StatusDone       = "DONE"
	StatusFailed     = "FAILED"
)

// DeliveryRecord is the shape persisted in the webhook deliveries DynamoDB table.
// One record exists per distinct provider notification (see DeliveryKey).
type DeliveryRecord struct {
	DeliveryKey string    `dynamodbav:"delivery_key"` // PK
	Status      string    `dynamodbav:"status"`
	OrderNumber string    `dynamodbav:"order_number,omitempty"`
	Outcome     string    `dynamodbav:"outcome,omitempty"` // applied | already_applied | conflict
	Attempts    int       `dynamodbav:"attempts"`
	CreatedAt   time.Time `dynamodbav:"created_at"`
	UpdatedAt   time.Time `dynamodbav:"updated_at"`
	ExpiresAt   int64     `dynamodbav:"expires_at"` // TTL epoch seconds
	Note        string    `dynamodbav:"note,omitempty"`
}

// Done reports whether the delivery was fully reconciled before.
func (r *DeliveryRecord) Done() bool {
	return r != nil && r.Status == StatusDone
}
