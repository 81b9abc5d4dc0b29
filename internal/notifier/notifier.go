// Package notifier pushes keeper outcomes to an operator chat.
package notifier

import "context"

// Notifier delivers a rendered message.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Noop discards every message.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, string) error { return nil }
