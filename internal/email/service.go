// Package email sends the password reset mail over SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("email not configured")

type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

type Service struct {
	config Config
	send   func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error
}

func NewService(config Config) *Service {
	return &Service{config: config, send: smtp.SendMail}
}

func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// buildMessage assembles a multipart/alternative message with a plain text
// part and an HTML part.
func (s *Service) buildMessage(to, subject, textBody, htmlBody string) []byte {
	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.config.FromName), s.config.From)
	}
	const boundary = "progress-alternative"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, textBody)
	fmt.Fprintf(&msg, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, htmlBody)
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

func (s *Service) deliver(to, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return ErrNotConfigured
	}
	if strings.ContainsAny(to, "\r\n") {
		return fmt.Errorf("invalid recipient %q", to)
	}
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}
	msg := s.buildMessage(to, subject, textBody, htmlBody)
	if err := s.send(s.config.Host+":"+s.config.Port, auth, s.config.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

type resetData struct {
	Name     string
	ResetURL string
}

func (s *Service) SendPasswordReset(to, name, resetURL string) error {
	if name == "" {
		name = to
	}
	var html bytes.Buffer
	if err := resetTemplate.Execute(&html, resetData{Name: name, ResetURL: resetURL}); err != nil {
		return fmt.Errorf("render password reset template: %w", err)
	}
	text := fmt.Sprintf("Hi %s,\r\n\r\nOpen this link within one hour to choose a new password:\r\n%s\r\n\r\nIf you did not ask for this, ignore this mail.", name, resetURL)
	return s.deliver(to, "Reset your Progress Tracker password", text, html.String())
}

var resetTemplate = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>Reset your password</title></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2>Password reset</h2>
  <p>Hi {{.Name}},</p>
  <p>Open the link below within one hour to choose a new password.</p>
  <p><a href="{{.ResetURL}}" style="display: inline-block; padding: 12px 24px; background: #2f6fde; color: #fff; text-decoration: none; border-radius: 4px;">Reset password</a></p>
  <p style="word-break: break-all;">{{.ResetURL}}</p>
  <p style="font-size: 12px; color: #666;">If you did not ask for this, ignore this mail. Your password stays unchanged.</p>
</body>
</html>`))
