package services

import (
	"fmt"
	"net/smtp"
	"strings"
)

// EmailSender delivers transactional mail (credentials, OTPs).
type EmailSender interface {
	Send(to, subject, body string) error
}

// SMTPConfig holds SMTP transport configuration. Username authenticates
// against the server; From is the sender address on outgoing mail.
type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

// SMTPSender implements EmailSender over plain SMTP with auth.
type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Send(to, subject, body string) error {
	headers := []string{
		fmt.Sprintf("From: %s", s.cfg.From),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
	}
	msg := strings.Join(headers, "\r\n") + "\r\n\r\n" + body

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	addr := s.cfg.Host + ":" + s.cfg.Port
	if err := smtp.SendMail(addr, auth, s.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

// CredentialsEmailBody renders the delivery-boy welcome mail carrying the
// temporary password.
func CredentialsEmailBody(name, email, tempPassword string) string {
	return fmt.Sprintf(`<html><body>
<p>Hi %s,</p>
<p>A delivery account has been created for you.</p>
<p>Email: <b>%s</b><br>Temporary password: <b>%s</b></p>
<p>You will be asked to change this password on first login.</p>
</body></html>`, name, email, tempPassword)
}

// OTPEmailBody renders the password-reset mail.
func OTPEmailBody(code string, minutes int) string {
	return fmt.Sprintf(`<html><body>
<p>Your password reset code is <b>%s</b>.</p>
<p>It expires in %d minutes. If you did not request a reset, ignore this mail.</p>
</body></html>`, code, minutes)
}
