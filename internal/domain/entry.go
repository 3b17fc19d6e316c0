package domain

import "time"

// EntryType values. TypeDigest is synthetic: one auto-aggregated entry per
// user per calendar day, built from that day's individual entries.
type EntryType string

const (
	TypeText   EntryType = "text"
	TypePhoto  EntryType = "photo"
	TypeAudio  EntryType = "audio"
	TypeVideo  EntryType = "video"
	TypeDigest EntryType = "digest"
)

// EntryFilter selects which entry population a subscription wants.
type EntryFilter string

const (
	FilterDaily      EntryFilter = "daily"      // digest entries only
	FilterIndividual EntryFilter = "individual" // everything except digests
	FilterBoth       EntryFilter = "both"
)

// Entry is collaborator data: the engine only selects entries by date range,
// it never mutates them.
type Entry struct {
	ID        int64
	UserID    int64
	Type      EntryType
	Body      string
	MediaRef  string // storage key for photo/audio/video payloads
	EntryDate time.Time
	CreatedAt time.Time
}

// IsDigest reports whether the entry is an auto-aggregated daily digest.
func (e Entry) IsDigest() bool { return e.Type == TypeDigest }

// MatchesFilter reports whether the entry belongs to the population selected
// by f. Unknown filters behave like FilterBoth.
func (e Entry) MatchesFilter(f EntryFilter) bool {
	switch f {
	case FilterDaily:
		return e.IsDigest()
	case FilterIndividual:
		return !e.IsDigest()
	default:
		return true
	}
}
