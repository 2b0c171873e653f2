package mailer

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/rs/zerolog"
)

// Config carries the SMTP settings. It is built at startup and injected;
// the mailer never reads the environment itself.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

type Mailer struct {
	cfg Config
	log *zerolog.Logger
}

func NewMailer(cfg Config, log *zerolog.Logger) *Mailer {
	return &Mailer{cfg: cfg, log: log}
}

func (m *Mailer) SendRegistrationConfirmation(to, eventTitle string, eventDate time.Time, wallClock string) error {
	eventTime := wallClock
	if t, err := time.Parse("15:04", wallClock); err == nil {
		eventTime = t.Format("03:04 PM")
	}

	subject := fmt.Sprintf("Registration Confirmed for: %s", eventTitle)
	body := fmt.Sprintf(
		"You have successfully registered for %s.\nDate: %s, Time: %s",
		eventTitle, eventDate.Format("1/2/2006"), eventTime,
	)
	return m.send(to, subject, body)
}

func (m *Mailer) SendPasswordReset(to, resetURL string) error {
	subject := "Your Password Reset Request for EventSphere"
	body := fmt.Sprintf("Click this link to reset your password: %s", resetURL)
	return m.send(to, subject, body)
}

func (m *Mailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		m.cfg.From, to, subject, body,
	)

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		m.log.Warn().Msgf("failed to send email to %s: %v", to, err)
		return fmt.Errorf("send email: %w", err)
	}

	m.log.Info().Msgf("Email sent to %s (subject: %s)", to, subject)
	return nil
}
