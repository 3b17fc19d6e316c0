package notify

import (
	"context"
	"errors"
	"testing"

	"inkwell/internal/domain"
	logx "inkwell/pkg/logx"
)

type recordingSender struct {
	sent int
	err  error
}

func (s *recordingSender) Send(_ context.Context, _ domain.User, _ Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent++
	return nil
}

func TestRouterPrefersTelegram(t *testing.T) {
	t.Parallel()
	tg, em := &recordingSender{}, &recordingSender{}
	r := &Router{Telegram: tg, Email: em, Log: logx.Nop()}

	u := domain.User{ID: 1, Channel: domain.ChannelTelegram, ChatID: 99, Email: "w@example.com"}
	if err := r.Send(context.Background(), u, Message{Body: "hi"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if tg.sent != 1 || em.sent != 0 {
		t.Fatalf("sent tg=%d em=%d, want telegram only", tg.sent, em.sent)
	}
}

func TestRouterFallsBackToEmail(t *testing.T) {
	t.Parallel()
	em := &recordingSender{}
	r := &Router{Email: em, Log: logx.Nop()}

	// Telegram preferred but no bot configured.
	u := domain.User{ID: 1, Channel: domain.ChannelTelegram, ChatID: 99, Email: "w@example.com"}
	if err := r.Send(context.Background(), u, Message{Body: "hi"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if em.sent != 1 {
		t.Fatal("expected email fallback")
	}

	// Telegram configured but the user has no chat id.
	tg := &recordingSender{}
	r = &Router{Telegram: tg, Email: em, Log: logx.Nop()}
	u.ChatID = 0
	if err := r.Send(context.Background(), u, Message{Body: "hi"}); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	if tg.sent != 0 || em.sent != 2 {
		t.Fatal("expected email fallback when chat id missing")
	}
}

func TestRouterNoRoute(t *testing.T) {
	t.Parallel()
	r := &Router{Log: logx.Nop()}
	u := domain.User{ID: 1, Channel: domain.ChannelEmail}
	err := r.Send(context.Background(), u, Message{Body: "hi"})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}
