// Package notification delivers out-of-band alert notifications.
package notification

import (
	"fmt"
	"net/smtp"
	"strings"

	"netsentry/internal/config"
	"netsentry/internal/model"
)

// EmailNotifier sends alert emails over SMTP. It is attached to the
// alert manager for severities at or above a configured floor.
type EmailNotifier struct {
	cfg  config.SMTPConfig
	auth smtp.Auth
}

// NewEmailNotifier creates a notifier from the SMTP configuration.
func NewEmailNotifier(cfg config.SMTPConfig) model.Notifier {
	// PlainAuth will not send credentials until the server identifies itself as a trusted one.
	auth := smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	return &EmailNotifier{cfg: cfg, auth: auth}
}

// Notify sends one email per alert to the configured recipients.
func (n *EmailNotifier) Notify(a *model.Alert) error {
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)
	recipients := strings.Split(n.cfg.To, ",")

	subject := fmt.Sprintf("[NetSentry] %s: %s from %s", strings.ToUpper(a.Severity), a.AttackType, a.SourceIP)
	msg := []byte("To: " + n.cfg.To + "\r\n" +
		"From: " + n.cfg.From + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n" +
		"\r\n" +
		body(a))

	if err := smtp.SendMail(addr, n.auth, n.cfg.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

func body(a *model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Alert ID:    %s\r\n", a.ID)
	fmt.Fprintf(&b, "Time:        %s\r\n", a.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Severity:    %s\r\n", a.Severity)
	fmt.Fprintf(&b, "Attack type: %s\r\n", a.AttackType)
	fmt.Fprintf(&b, "Confidence:  %.1f%%\r\n", a.Confidence*100)
	fmt.Fprintf(&b, "Flow:        %s\r\n", a.FlowKey)
	fmt.Fprintf(&b, "\r\n%s\r\n\r\nRecommended action: %s\r\n", a.Description, a.RecommendedAction)
	return b.String()
}
