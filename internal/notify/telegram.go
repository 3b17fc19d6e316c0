package notify

import (
	"context"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"inkwell/internal/domain"
	logx "inkwell/pkg/logx"
)

// TelegramConfig configures the chat-bot nudge channel.
type TelegramConfig struct {
	Token       string
	PollTimeout time.Duration // default 10s
	RatePerSec  int           // default 25 (bot API global limit is ~30)
}

// Telegram sends nudges through a telebot bot. The limiter keeps a burst of
// simultaneous reminders under the bot API's global send limit.
type Telegram struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger
}

func NewTelegram(cfg TelegramConfig, log logx.Logger) (*Telegram, error) {
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 10 * time.Second
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: poll},
	})
	if err != nil {
		return nil, err
	}
	rps := cfg.RatePerSec
	if rps <= 0 {
		rps = 25
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Telegram{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(rps), rps),
		log:     log,
	}, nil
}

func (t *Telegram) Send(ctx context.Context, user domain.User, msg Message) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	text := msg.Body
	if msg.Subject != "" {
		text = "*" + msg.Subject + "*\n\n" + text
	}
	_, err := t.bot.Send(&tele.Chat{ID: user.ChatID}, text, &tele.SendOptions{
		ParseMode:             tele.ModeMarkdown,
		DisableWebPagePreview: true,
	})
	if err != nil {
		t.log.Warn("telegram send failed", logx.Int64("chat_id", user.ChatID), logx.Err(err))
	}
	return err
}
