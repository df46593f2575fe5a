package otp

import "context"

// Provider delivers one-time codes to a destination and checks them.
// Both calls return the provider's raw status string; "approved" from Check
// is the only status that grants authorization.
type Provider interface {
	Send(ctx context.Context, destination string) (string, error)
	Check(ctx context.Context, destination, code string) (string, error)
	Name() string
}
