package orders

import (
	"fmt"
	"time"
)

// State is the pair of canonical status fields plus the last history note.
type State struct {
	Order    OrderStatus
	Payment  PaymentStatus
	LastNote string
}

// EventKind tags the variant carried by an Event.
type EventKind string

const (
	EventPaymentConfirmed      EventKind = "payment_confirmed"
	EventPaymentFailed         EventKind = "payment_failed"
	EventShipmentRecorded      EventKind = "shipment_recorded"
	EventDeliveryRecorded      EventKind = "delivery_recorded"
	EventCancellationRequested EventKind = "cancellation_requested"
	// EventStatusNote carries provider statuses that do not move either axis.
	EventStatusNote EventKind = "status_note"
)

// Event is a normalized lifecycle event. Provider adapters build these; the state machine
// never sees raw provider vocabulary.
type Event struct {
	Kind EventKind
	Note string

	// PaymentConfirmed
	SettledAmount   string
	SettledCurrency string

	// ShipmentRecorded
	Carrier        string
	TrackingNumber string
}

func PaymentConfirmed(settledAmount, settledCurrency, note string) Event {
	return Event{Kind: EventPaymentConfirmed, SettledAmount: settledAmount, SettledCurrency: settledCurrency, Note: note}
}

func PaymentFailedEvent(note string) Event {
	return Event{Kind: EventPaymentFailed, Note: note}
}

func ShipmentRecorded(carrier, trackingNumber string) Event {
	return Event{Kind: EventShipmentRecorded, Carrier: carrier, TrackingNumber: trackingNumber}
}

func DeliveryRecorded(note string) Event {
	return Event{Kind: EventDeliveryRecorded, Note: note}
}

func CancellationRequested(reason string) Event {
	return Event{Kind: EventCancellationRequested, Note: reason}
}

func StatusNote(note string) Event {
	return Event{Kind: EventStatusNote, Note: note}
}

// Outcome classifies a decision.
type Outcome int

const (
	// OutcomeApplied means the event moves the order and must be committed.
	OutcomeApplied Outcome = iota
	// OutcomeAlreadyApplied means the target state already holds; nothing to write.
	OutcomeAlreadyApplied
	// OutcomeConflict means the current state is incompatible with the event; nothing to write.
	OutcomeConflict
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeAlreadyApplied:
		return "already_applied"
	case OutcomeConflict:
		return "conflict"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Effect is a side effect requested by an applied transition.
type Effect string

const (
	EffectConfirmation Effect = "confirmation"
	EffectStatusChange Effect = "status_change"
	EffectCancellation Effect = "cancellation"
)

// Decision is the result of Transition.
type Decision struct {
	Outcome Outcome
	Event   Event
	From    State
	To      State
	// Entry is the history entry to append; zero unless Outcome is OutcomeApplied.
	Entry          StatusEntry
	CanBeCancelled bool
	Effects        []Effect
	// Reason explains an already-applied or conflicting decision.
	Reason string
}

// Transition computes the effect of ev on cur. It has no side effects.
func Transition(cur State, ev Event, policy CancellationPolicy, now time.Time) Decision {
	d := Decision{Event: ev, From: cur, To: cur}

	switch ev.Kind {
	case EventPaymentConfirmed:
		switch {
		case cur.Payment == PaymentSucceeded:
			return d.already("payment already succeeded")
		case cur.Payment == PaymentFailed:
			return d.conflict("payment already failed")
		case cur.Order != StatusPending:
			return d.conflict(fmt.Sprintf("payment confirmed for %s order", cur.Order))
		}
		return d.apply(StatusProcessing, PaymentSucceeded, noteOr(ev.Note, "Payment confirmed"), policy, now, EffectConfirmation)

	case EventPaymentFailed:
		switch {
		case cur.Payment == PaymentFailed:
			return d.already("payment already failed")
		case cur.Payment == PaymentSucceeded:
			return d.conflict("payment already succeeded")
		case cur.Order == StatusCancelled:
			// cancelled while awaiting payment; record the failure, the customer was already told
			return d.apply(StatusCancelled, PaymentFailed, noteOr(ev.Note, "Payment failed"), policy, now)
		case cur.Order != StatusPending:
			return d.conflict(fmt.Sprintf("payment failed for %s order", cur.Order))
		}
		return d.apply(StatusCancelled, PaymentFailed, noteOr(ev.Note, "Payment failed"), policy, now, EffectCancellation)

	case EventShipmentRecorded:
		switch cur.Order {
		case StatusShipped, StatusDelivered:
			return d.already("shipment already recorded")
		case StatusProcessing:
			return d.apply(StatusShipped, cur.Payment, shipmentNote(ev), policy, now, EffectStatusChange)
		default:
			return d.conflict(fmt.Sprintf("cannot ship %s order", cur.Order))
		}

	case EventDeliveryRecorded:
		switch cur.Order {
		case StatusDelivered:
			return d.already("delivery already recorded")
		case StatusShipped:
			return d.apply(StatusDelivered, cur.Payment, noteOr(ev.Note, "Delivered"), policy, now, EffectStatusChange)
		default:
			return d.conflict(fmt.Sprintf("cannot deliver %s order", cur.Order))
		}

	case EventCancellationRequested:
		switch {
		case cur.Order == StatusCancelled:
			return d.already("order already cancelled")
		case !policy.Allows(cur.Order):
			return d.conflict(fmt.Sprintf("%s order cannot be cancelled under policy %s", cur.Order, policy))
		}
		return d.apply(StatusCancelled, cur.Payment, noteOr(ev.Note, "Cancelled by request"), policy, now, EffectCancellation)

	case EventStatusNote:
		if ev.Note == "" || ev.Note == cur.LastNote {
			return d.already("note already recorded")
		}
		return d.apply(cur.Order, cur.Payment, ev.Note, policy, now)
	}

	return d.conflict(fmt.Sprintf("unknown event kind %q", ev.Kind))
}

func (d Decision) apply(order OrderStatus, payment PaymentStatus, note string, policy CancellationPolicy, now time.Time, effects ...Effect) Decision {
	d.Outcome = OutcomeApplied
	d.To = State{Order: order, Payment: payment, LastNote: note}
	d.Entry = StatusEntry{Status: order, Timestamp: now.UTC(), Note: note}
	d.CanBeCancelled = policy.Allows(order)
	d.Effects = effects
	return d
}

func (d Decision) already(reason string) Decision {
	d.Outcome = OutcomeAlreadyApplied
	d.Reason = reason
	return d
}

func (d Decision) conflict(reason string) Decision {
	d.Outcome = OutcomeConflict
	d.Reason = reason
	return d
}

func noteOr(note, fallback string) string {
	if note != "" {
		return note
	}
	return fallback
}

func shipmentNote(ev Event) string {
	if ev.Note != "" {
		return ev.Note
	}
	switch {
	case ev.Carrier != "" && ev.TrackingNumber != "":
		return fmt.Sprintf("Shipped via %s (tracking %s)", ev.Carrier, ev.TrackingNumber)
	case ev.TrackingNumber != "":
		return fmt.Sprintf("Shipped (tracking %s)", ev.TrackingNumber)
	default:
		return "Shipped"
	}
}
