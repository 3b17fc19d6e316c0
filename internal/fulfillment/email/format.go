package email

import (
	"fmt"
	"strings"
	"time"

	"inkwell/internal/domain"
	"inkwell/internal/notify"
)

// PlainFormatter is the built-in report layout: a date-grouped plain-text
// digest. Anything fancier (HTML templates, inline images) plugs in behind
// the Formatter interface.
type PlainFormatter struct{}

func (PlainFormatter) Format(user domain.User, sub domain.EmailSubscription, entries []domain.Entry, start, end time.Time) notify.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Your journal, %s – %s\n\n",
		start.Format("Jan 2, 2006"), end.AddDate(0, 0, -1).Format("Jan 2, 2006"))

	var lastDay string
	for _, e := range entries {
		day := e.EntryDate.Format("Monday, Jan 2")
		if day != lastDay {
			fmt.Fprintf(&b, "%s\n", day)
			lastDay = day
		}
		switch {
		case e.IsDigest():
			fmt.Fprintf(&b, "  %s\n", e.Body)
		case e.Body != "":
			fmt.Fprintf(&b, "  - %s\n", e.Body)
		case sub.IncludeImages && e.MediaRef != "":
			fmt.Fprintf(&b, "  - [%s attachment]\n", e.Type)
		}
	}

	return notify.Message{
		Subject: fmt.Sprintf("Journal recap: %s", start.Format("Jan 2, 2006")),
		Body:    b.String(),
	}
}
