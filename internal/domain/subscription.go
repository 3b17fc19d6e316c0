package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Frequency is a subscription's period length.
type Frequency string

const (
	FreqWeekly    Frequency = "weekly"
	FreqMonthly   Frequency = "monthly"
	FreqQuarterly Frequency = "quarterly"
	FreqYearly    Frequency = "yearly"
)

var ErrUnknownFrequency = errors.New("unknown frequency")

// ValidFrequency reports whether f is one of the supported periods.
func ValidFrequency(f Frequency) bool {
	switch f {
	case FreqWeekly, FreqMonthly, FreqQuarterly, FreqYearly:
		return true
	}
	return false
}

// EmailSubscription is a recurring email report. NextEmailDate is the
// materialized next due calendar date; the dispatcher only compares it to
// "today" in the user's timezone.
type EmailSubscription struct {
	ID     int64
	UserID int64

	Frequency     Frequency
	Active        bool
	Filter        EntryFilter // which entries go into the report
	IncludeImages bool

	NextEmailDate *time.Time // date, midnight UTC canonical form
	LastEmailedAt *time.Time

	ConsecutiveFailures int
	NeedsReview         bool

	CreatedAt time.Time
}

func (s EmailSubscription) Validate() error {
	if !ValidFrequency(s.Frequency) {
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, s.Frequency)
	}
	switch s.Filter {
	case FilterDaily, FilterIndividual, FilterBoth:
		return nil
	}
	return fmt.Errorf("unknown entry filter %q", s.Filter)
}

// Address is a print shipping destination.
type Address struct {
	Name       string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	Country    string // ISO 3166-1 alpha-2
}

func (a Address) Validate() error {
	if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.Line1) == "" ||
		strings.TrimSpace(a.City) == "" || strings.TrimSpace(a.PostalCode) == "" {
		return errors.New("address needs name, line1, city and postal code")
	}
	if len(strings.TrimSpace(a.Country)) != 2 {
		return errors.New("address country must be a 2-letter code")
	}
	return nil
}

// Print color options.
const (
	ColorFull = "color"
	ColorBW   = "bw"
)

// PrintSubscription is a recurring physical-print order source.
type PrintSubscription struct {
	ID     int64
	UserID int64

	Frequency Frequency
	Active    bool
	Shipping  Address
	Color     string // ColorFull or ColorBW

	NextPrintDate *time.Time
	LastPrintedAt *time.Time

	ConsecutiveFailures int
	NeedsReview         bool

	CreatedAt time.Time
}

func (s PrintSubscription) Validate() error {
	if !ValidFrequency(s.Frequency) {
		return fmt.Errorf("%w: %q", ErrUnknownFrequency, s.Frequency)
	}
	if s.Color != ColorFull && s.Color != ColorBW {
		return fmt.Errorf("unknown color option %q", s.Color)
	}
	return s.Shipping.Validate()
}
