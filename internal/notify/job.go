// Package notify turns committed order transitions into customer and store emails.
// Jobs are enqueued after the order write; delivery is one attempt and never feeds back into
// the order.
package notify

import (
	"time"

	"github.com/google/uuid"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
)

// Kind selects the message set rendered for a job.
type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindStatusChange Kind = "status_change"
	KindCancellation Kind = "cancellation"
)

// Job is the payload sent from the API -> SQS -> worker. It carries the order as committed so
// the worker never reads the store.
type Job struct {
	ID        string       `json:"id"`
	Kind      Kind         `json:"kind"`
	Order     orders.Order `json:"order"`
	CreatedAt time.Time    `json:"createdAt"`
}

// JobsFor builds one job per effect.
func JobsFor(o orders.Order, effects []orders.Effect, now time.Time) []Job {
	jobs := make([]Job, 0, len(effects))
	for _, e := range effects {
		var kind Kind
		switch e {
		case orders.EffectConfirmation:
			kind = KindConfirmation
		case orders.EffectStatusChange:
			kind = KindStatusChange
		case orders.EffectCancellation:
			kind = KindCancellation
		default:
			continue
		}
		jobs = append(jobs, Job{ID: uuid.NewString(), Kind: kind, Order: o, CreatedAt: now.UTC()})
	}
	return jobs
}
