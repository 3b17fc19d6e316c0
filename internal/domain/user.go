package domain

import "time"

// Delivery channels for reminder nudges.
const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
)

// User carries the per-account fields the engine needs: timezone for local
// calendar math and delivery coordinates for nudges. Profile data lives
// elsewhere.
type User struct {
	ID        int64
	TZ        string // IANA name, e.g. "Europe/Berlin"
	Channel   string // preferred nudge channel
	ChatID    int64  // telegram chat, when Channel == ChannelTelegram
	Email     string
	CreatedAt time.Time
}
