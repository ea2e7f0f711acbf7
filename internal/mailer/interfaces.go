package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/diagnosis/cruise-bookings/pkg/config"
)

type Service interface {
	SendPasswordReset(ctx context.Context, toEmail, toName, resetURL string) error
}

// New picks the mailer for cfg: dev logging, MailerSend when an API key is
// set, otherwise SMTP.
func New(cfg config.EmailConfig) Service {
	switch {
	case cfg.DevMode:
		return NewDevMailer()
	case cfg.MailerSendKey != "":
		return NewMailerSend(cfg.MailerSendKey, cfg.FromName, cfg.FromEmail)
	default:
		return NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPFrom, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPUseTLS)
	}
}

const resetSubject = "Reset your OceanView Cruises password"

func resetBodies(toName, resetURL string) (text, html string) {
	name := strings.TrimSpace(toName)
	if name == "" {
		name = "there"
	}
	text = fmt.Sprintf("Hi %s,\n\nReset your password with this link: %s\n\nThe link expires in 2 hours. If you did not ask for a reset, ignore this email.", name, resetURL)
	html = fmt.Sprintf(`
		<h2>Password reset</h2>
		<p>Hi %s,</p>
		<p>Click the link below to choose a new password:</p>
		<p><a href="%s" style="background-color: #0B6E99; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px;">Reset Password</a></p>
		<p>This link will expire in 2 hours.</p>
		<p>If you didn't ask for a password reset, please ignore this email.</p>
	`, name, resetURL)
	return text, html
}
