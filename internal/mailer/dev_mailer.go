package mailer

import (
	"context"

	"github.com/diagnosis/cruise-bookings/pkg/logger"
)

// DevMailer writes reset links to the log instead of sending them.
type DevMailer struct{}

func NewDevMailer() *DevMailer {
	return &DevMailer{}
}

func (d *DevMailer) SendPasswordReset(ctx context.Context, toEmail, toName, resetURL string) error {
	logger.InfoContext(ctx, "[DEV MAIL] Password reset email",
		"to", toEmail,
		"name", toName,
		"subject", resetSubject,
		"reset_url", resetURL,
	)
	return nil
}
