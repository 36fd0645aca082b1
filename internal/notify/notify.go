package notify

import (
	"context"
	"errors"
)

// Notifier delivers a plain-text message. recipient is channel specific
// (a Telegram chat id); channels bound to a fixed destination ignore it.
type Notifier interface {
	Notify(ctx context.Context, recipient, text string) error
}

// Multi fans a message out to every non-nil notifier and joins the errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, recipient, text string) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, recipient, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops every message. Used by tools that run the pipeline without
// alerting (cli one-shot checks).
type Nop struct{}

func (Nop) Notify(context.Context, string, string) error { return nil }
