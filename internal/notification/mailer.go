package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net"
	"time"

	"leadflow_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

// Mailer delivers notification emails over SMTP.
type Mailer struct {
	host      string
	port      int
	username  string
	password  string
	fromEmail string
	recipient string
}

// NewMailer creates a mailer from the mail configuration. Returns nil when
// mail is disabled; a nil Mailer reports itself disabled.
func NewMailer(cfg config.MailConfig) *Mailer {
	if !cfg.IsMailEnabled() {
		return nil
	}
	return &Mailer{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromEmail: cfg.GetMailFromAddress(),
		recipient: cfg.GetManualMatchRecipient(),
	}
}

// Enabled reports whether email delivery is configured.
func (m *Mailer) Enabled() bool {
	return m != nil && m.recipient != ""
}

var manualMatchTemplate = template.Must(template.New("manual_match").Parse(`
<h2>Lead attributed by text similarity</h2>
<p>A new lead was matched to a campaign direction by first-message similarity
and needs a human confirmation.</p>
<table>
  <tr><td>Contact</td><td>{{.Contact}}</td></tr>
  <tr><td>Message</td><td>{{.MessageText}}</td></tr>
  <tr><td>Similarity</td><td>{{printf "%.2f" .Score}}</td></tr>
  <tr><td>Lead</td><td>{{.LeadID}}</td></tr>
</table>
<p>Review it in the portal under Leads &rarr; Pending matches.</p>
`))

// ManualMatchData is the payload of a manual-match review email.
type ManualMatchData struct {
	LeadID      string  `json:"leadId"`
	Contact     string  `json:"contact"`
	MessageText string  `json:"messageText"`
	Score       float64 `json:"score"`
}

// SendManualMatch emails the configured reviewer about a similarity match.
func (m *Mailer) SendManualMatch(ctx context.Context, data ManualMatchData) error {
	var body bytes.Buffer
	if err := manualMatchTemplate.Execute(&body, data); err != nil {
		return fmt.Errorf("render manual match email: %w", err)
	}
	return m.send(ctx, m.recipient, "Lead match needs review", body.String())
}

func (m *Mailer) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.From(m.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(m.host,
		gomail.WithPort(m.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(m.username),
		gomail.WithPassword(m.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
