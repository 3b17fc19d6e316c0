// Package notify delivers artifacts to users: reminder nudges and email
// reports. There is no retry contract here; the dispatcher retries at tick
// granularity when a send fails.
package notify

import (
	"context"
	"errors"
	"fmt"

	"inkwell/internal/domain"
	logx "inkwell/pkg/logx"
)

var ErrNoRoute = errors.New("notify: no delivery route for user")

// Message is one deliverable artifact.
type Message struct {
	Subject string
	Body    string
	HTML    bool
}

// Sender delivers one message to one user.
type Sender interface {
	Send(ctx context.Context, user domain.User, msg Message) error
}

// Router picks the concrete sender from the user's channel preference,
// falling back to email when the preferred channel has no coordinates.
type Router struct {
	Telegram Sender // nil when the bot is not configured
	Email    Sender
	Log      logx.Logger
}

func (r *Router) Send(ctx context.Context, user domain.User, msg Message) error {
	switch user.Channel {
	case domain.ChannelTelegram:
		if r.Telegram != nil && user.ChatID != 0 {
			return r.Telegram.Send(ctx, user, msg)
		}
		// fall through to email
	case domain.ChannelEmail:
	default:
		if !r.Log.IsZero() {
			r.Log.Debug("unknown channel, using email", logx.String("channel", user.Channel), logx.Int64("user", user.ID))
		}
	}
	if r.Email != nil && user.Email != "" {
		return r.Email.Send(ctx, user, msg)
	}
	return fmt.Errorf("%w: user %d", ErrNoRoute, user.ID)
}
