// Package alert sends operator notifications when the sync pipeline stays
// broken. Scanners run unattended at venue entrances, so a stuck sync has to
// reach a human some other way than the dashboard.
package alert

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/inbucket/html2text"
	"github.com/wneessen/go-mail"
)

// Mailer delivers sync failure alerts over SMTP.
type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string

	scannerID string

	logger *slog.Logger
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string

	// Included in the alert so the operator knows which unit is failing.
	ScannerID string
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{
		host:      cfg.Host,
		port:      cfg.Port,
		username:  cfg.Username,
		password:  cfg.Password,
		from:      cfg.From,
		to:        cfg.To,
		scannerID: cfg.ScannerID,
		logger:    slog.With("component", "alert"),
	}
}

// SyncFailed sends one alert describing an ongoing sync outage.
func (m *Mailer) SyncFailed(ctx context.Context, consecutive int, lastErr string, pending int) error {
	subject := fmt.Sprintf("[%s] attendance sync failing (%d consecutive failures)", m.scannerID, consecutive)
	html := fmt.Sprintf(`<html><body>
<h2>Attendance sync is failing</h2>
<table>
<tr><td>Scanner</td><td>%s</td></tr>
<tr><td>Consecutive failures</td><td>%d</td></tr>
<tr><td>Pending records</td><td>%d</td></tr>
<tr><td>Last error</td><td>%s</td></tr>
<tr><td>Time</td><td>%s</td></tr>
</table>
<p>Records keep accumulating locally and will be delivered once the backend
is reachable again. No attendance data is lost while this alert is active.</p>
</body></html>`,
		m.scannerID, consecutive, pending, lastErr, time.Now().Format(time.RFC1123Z))

	text, err := html2text.FromString(html, html2text.Options{PrettyTables: true})
	if err != nil {
		return fmt.Errorf("render alert text: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := msg.To(m.to...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, text)
	msg.AddAlternativeString(mail.TypeTextHTML, html)

	opts := []mail.Option{mail.WithPort(m.port)}
	if m.username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.username),
			mail.WithPassword(m.password))
	}
	client, err := mail.NewClient(m.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send alert: %w", err)
	}

	m.logger.Info("sync failure alert sent", "recipients", len(m.to), "consecutive_failures", consecutive)
	return nil
}
