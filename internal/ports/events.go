package ports

import "context"

const (
	NotificationPasswordReset     = "auth.password_reset_requested"
	NotificationEmailVerification = "auth.email_verification_requested"
	NotificationPasswordChanged   = "auth.password_changed"
	NotificationTwoFactorChanged  = "auth.two_factor_changed"
)

// Notification is an outbound message for the mail pipeline.
// Link carries a single-use token and must never be logged.
type Notification struct {
	Kind   string `json:"kind"`
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
	Link   string `json:"link,omitempty"`
}

// Notifier hands notifications to the delivery channel.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
