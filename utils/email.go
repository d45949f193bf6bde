// utils/email.go
package utils

import (
	"fmt"
	"html"
	"net/smtp"
	"strings"

	jwemail "github.com/jordan-wright/email"
	"github.com/keighl/postmark"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	log "github.com/sirupsen/logrus"

	"proxy-admin/config"
)

// Mailer delivers one message through a provider
type Mailer interface {
	Send(to, subject, htmlBody, textBody string) error
}

// EmailService sends operator messages to clients
type EmailService struct {
	mailer Mailer
}

// NewEmailService picks the provider named in the configuration
func NewEmailService(cfg config.Email) (*EmailService, error) {
	var m Mailer
	switch strings.ToLower(cfg.Provider) {
	case "sendgrid":
		if cfg.SendGridAPIKey == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY is not set")
		}
		m = &sendGridMailer{client: sendgrid.NewSendClient(cfg.SendGridAPIKey), from: cfg.Sender}
	case "postmark":
		if cfg.PostmarkAPIToken == "" {
			return nil, fmt.Errorf("POSTMARK_API_TOKEN is not set")
		}
		m = &postmarkMailer{client: postmark.NewClient(cfg.PostmarkAPIToken, ""), from: cfg.Sender}
	case "smtp":
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("SMTP_HOST is not set")
		}
		m = &smtpMailer{host: cfg.SMTPHost, port: cfg.SMTPPort, user: cfg.SMTPUser, pass: cfg.SMTPPassword, from: cfg.Sender}
	case "", "none":
		m = logMailer{}
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Provider)
	}
	return NewEmailServiceWithMailer(m), nil
}

func NewEmailServiceWithMailer(m Mailer) *EmailService {
	return &EmailService{mailer: m}
}

// SendEmail sends a basic email to the specified recipient
func (es *EmailService) SendEmail(toEmail, subject, textContent string) error {
	htmlContent := strings.ReplaceAll(html.EscapeString(textContent), "\n", "<br>")
	if err := es.mailer.Send(toEmail, subject, htmlContent, textContent); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

type sendGridMailer struct {
	client *sendgrid.Client
	from   string
}

func (m *sendGridMailer) Send(to, subject, htmlBody, textBody string) error {
	msg := mail.NewSingleEmail(mail.NewEmail("", m.from), subject, mail.NewEmail("", to), textBody, htmlBody)
	resp, err := m.client.Send(msg)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

type postmarkMailer struct {
	client *postmark.Client
	from   string
}

func (m *postmarkMailer) Send(to, subject, htmlBody, textBody string) error {
	_, err := m.client.SendEmail(postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	})
	return err
}

type smtpMailer struct {
	host string
	port string
	user string
	pass string
	from string
}

func (m *smtpMailer) Send(to, subject, htmlBody, textBody string) error {
	e := jwemail.NewEmail()
	e.From = m.from
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(textBody)
	e.HTML = []byte(htmlBody)
	return e.Send(fmt.Sprintf("%s:%s", m.host, m.port), smtp.PlainAuth("", m.user, m.pass, m.host))
}

// logMailer only records the message; used when no provider is configured
type logMailer struct{}

func (logMailer) Send(to, subject, _, _ string) error {
	log.WithFields(log.Fields{"to": to, "subject": subject}).Info("Email provider disabled, message not delivered")
	return nil
}
