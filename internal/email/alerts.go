// Package email delivers operator alerts for terminal pipeline failures
// over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"dealpulse_backend/internal/events"
	"dealpulse_backend/platform/config"
	"dealpulse_backend/platform/logger"

	gomail "github.com/wneessen/go-mail"
)

// AlertNotifier subscribes to pipeline failure events and mails them to the
// configured operator address. When alerting is not configured it drops
// events silently; failures still land in the logs and the queue's
// last_error column.
type AlertNotifier struct {
	cfg config.AlertConfig
	log *logger.Logger
}

func NewAlertNotifier(cfg config.AlertConfig, log *logger.Logger) *AlertNotifier {
	return &AlertNotifier{cfg: cfg, log: log}
}

// Subscribe registers the notifier on the bus. Delivery happens on the
// bus's async path so a slow SMTP server never blocks the pipeline.
func (n *AlertNotifier) Subscribe(bus events.Bus) {
	bus.Subscribe("intelligence.pipeline.failed", events.HandlerFunc(func(ctx context.Context, event events.Event) error {
		failure, ok := event.(events.PipelineFailed)
		if !ok {
			return nil
		}
		return n.notify(ctx, failure)
	}))
}

func (n *AlertNotifier) notify(ctx context.Context, failure events.PipelineFailed) error {
	if !n.cfg.IsAlertEnabled() {
		return nil
	}

	subject, body := renderFailureAlert(failure)
	if err := n.send(ctx, subject, body); err != nil {
		n.log.Error("failure alert not delivered",
			"opportunity_id", failure.OpportunityID.String(),
			"error", err)
		return err
	}
	return nil
}

func renderFailureAlert(failure events.PipelineFailed) (subject, body string) {
	kind := "activity pipeline"
	if failure.Batch {
		kind = "reprocessing sweep"
	}
	subject = fmt.Sprintf("[dealpulse] %s failed for opportunity %s", kind, failure.OpportunityID)

	var b strings.Builder
	fmt.Fprintf(&b, "A %s failed terminally and will not be retried.\n\n", kind)
	fmt.Fprintf(&b, "Opportunity: %s\n", failure.OpportunityID)
	if failure.ActivityID != nil {
		fmt.Fprintf(&b, "Activity:    %s\n", failure.ActivityID)
	}
	fmt.Fprintf(&b, "Occurred:    %s\n", failure.OccurredAt().Format(time.RFC3339))
	fmt.Fprintf(&b, "Reason:      %s\n", failure.Reason)
	return subject, b.String()
}

func (n *AlertNotifier) send(ctx context.Context, subject, body string) error {
	msg := gomail.NewMsg()
	if err := msg.From(n.cfg.GetAlertFromAddress()); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(n.cfg.GetAlertRecipient()); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, body)

	opts := []gomail.Option{
		gomail.WithPort(n.cfg.GetSMTPPort()),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15 * time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if n.cfg.GetSMTPUsername() != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(n.cfg.GetSMTPUsername()),
			gomail.WithPassword(n.cfg.GetSMTPPassword()),
		)
	}

	client, err := gomail.NewClient(n.cfg.GetSMTPHost(), opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
