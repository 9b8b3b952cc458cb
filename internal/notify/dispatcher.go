package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"time"

	"github.com/imrishuroy/go-orderpay-reconciler/internal/aws"
	"github.com/imrishuroy/go-orderpay-reconciler/internal/orders"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.New("").Funcs(template.FuncMap{
	"money": func(m orders.Money, currency string) string { return m.Format(currency) },
	"date":  func(t time.Time) string { return t.UTC().Format("2 Jan 2006 15:04 MST") },
}).ParseFS(templateFS, "templates/*.html"))

// DispatcherConfig names the store in outgoing mail.
type DispatcherConfig struct {
	StoreName string
	// AdminAddress receives the new-order alert.
	AdminAddress string
}

// Dispatcher renders and sends the messages for one job.
type Dispatcher struct {
	sender  Sender
	cfg     DispatcherConfig
	metrics *aws.Metrics
	log     *slog.Logger
}

func NewDispatcher(sender Sender, cfg DispatcherConfig, metrics *aws.Metrics, log *slog.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, cfg: cfg, metrics: metrics, log: log}
}

type templateData struct {
	Order     orders.Order
	StoreName string
	Headline  string
	Note      string
}

// Dispatch makes one delivery attempt for every message the job implies. Failures are logged
// and counted, and returned wrapped in ErrDeliveryFailed for callers that want to know.
func (d *Dispatcher) Dispatch(ctx context.Context, job Job) error {
	msgs, err := d.render(job)
	if err != nil {
		d.fail(ctx, job, "render", err)
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}

	var errs []error
	for _, m := range msgs {
		if err := d.sender.Send(ctx, m); err != nil {
			d.fail(ctx, job, m.Subject, err)
			errs = append(errs, err)
			continue
		}
		d.log.Info("notification sent", "job_id", job.ID, "kind", string(job.Kind), "order_number", job.Order.OrderNumber, "subject", m.Subject)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, errors.Join(errs...))
	}
	return nil
}

func (d *Dispatcher) fail(ctx context.Context, job Job, what string, err error) {
	d.log.Error("notification failed",
		"job_id", job.ID, "kind", string(job.Kind), "order_number", job.Order.OrderNumber, "message", what, "err", err)
	if !errors.Is(err, ErrEmailDisabled) {
		d.metrics.Count(ctx, "NotificationDeliveryFailed", "Kind", string(job.Kind))
	}
}

func (d *Dispatcher) render(job Job) ([]Message, error) {
	o := job.Order
	data := templateData{Order: o, StoreName: d.cfg.StoreName}
	customer := func(subject, tmpl string) (Message, error) {
		html, err := execute(tmpl, data)
		return Message{To: o.Customer.Email, ToName: o.Customer.Name, Subject: subject, HTML: html}, err
	}

	switch job.Kind {
	case KindConfirmation:
		confirm, err := customer(fmt.Sprintf("Order Confirmation - #%s", o.OrderNumber), "confirmation.html")
		if err != nil {
			return nil, err
		}
		msgs := []Message{confirm}
		if d.cfg.AdminAddress != "" {
			html, err := execute("admin_alert.html", data)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, Message{
				To:      d.cfg.AdminAddress,
				ToName:  d.cfg.StoreName,
				Subject: fmt.Sprintf("New Order #%s - %s", o.OrderNumber, o.Amounts.Total.Format(o.Currency)),
				HTML:    html,
			})
		}
		return msgs, nil

	case KindStatusChange:
		var subject string
		switch o.Status {
		case orders.StatusProcessing:
			subject = fmt.Sprintf("Your order #%s is being processed", o.OrderNumber)
		case orders.StatusShipped:
			subject = fmt.Sprintf("Your order #%s has shipped", o.OrderNumber)
		case orders.StatusDelivered:
			subject = fmt.Sprintf("Your order #%s has been delivered", o.OrderNumber)
		default:
			return nil, fmt.Errorf("no status email for %s orders", o.Status)
		}
		data.Headline = subject
		m, err := customer(subject, "status_change.html")
		if err != nil {
			return nil, err
		}
		return []Message{m}, nil

	case KindCancellation:
		if n := len(o.StatusHistory); n > 0 {
			data.Note = o.StatusHistory[n-1].Note
		}
		m, err := customer(fmt.Sprintf("Your order #%s has been cancelled", o.OrderNumber), "cancellation.html")
		if err != nil {
			return nil, err
		}
		return []Message{m}, nil
	}
	return nil, fmt.Errorf("unknown job kind %q", job.Kind)
}

func execute(name string, data templateData) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
