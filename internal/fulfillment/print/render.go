package print

import (
	"context"
	"fmt"
	"strings"

	"inkwell/internal/domain"
	"inkwell/internal/polish"
	logx "inkwell/pkg/logx"
)

// TextRenderer is the built-in plain-text book layout, good enough for the
// vendor's text-to-PDF intake. A real typesetting service plugs in behind
// the Renderer interface.
//
// When a Polisher is set, each entry body gets a best-effort polish pass
// before layout; a failed pass falls back to the raw text and never fails
// the render.
type TextRenderer struct {
	LinesPerPage int // default 40
	Polisher     polish.Polisher
	Style        polish.StyleOptions
	Log          logx.Logger
}

func (r TextRenderer) Render(ctx context.Context, user domain.User, entries []domain.Entry, _ string) ([]byte, int, error) {
	if len(entries) == 0 {
		return nil, 0, fmt.Errorf("render: empty entry set")
	}
	perPage := r.LinesPerPage
	if perPage <= 0 {
		perPage = 40
	}

	var b strings.Builder
	lines := 0
	var lastDay string
	for _, e := range entries {
		day := e.EntryDate.Format("January 2, 2006")
		if day != lastDay {
			fmt.Fprintf(&b, "\n== %s ==\n\n", day)
			lastDay = day
			lines += 3
		}
		body := e.Body
		if body == "" && e.MediaRef != "" {
			body = fmt.Sprintf("[%s: %s]", e.Type, e.MediaRef)
		} else {
			body = r.polish(ctx, body)
		}
		b.WriteString(body)
		b.WriteString("\n\n")
		lines += strings.Count(body, "\n") + 3
	}

	pages := (lines + perPage - 1) / perPage
	if pages < 1 {
		pages = 1
	}
	return []byte(b.String()), pages, nil
}

func (r TextRenderer) polish(ctx context.Context, raw string) string {
	if r.Polisher == nil || strings.TrimSpace(raw) == "" {
		return raw
	}
	out, err := r.Polisher.Polish(ctx, raw, r.Style)
	if err != nil {
		if !r.Log.IsZero() {
			r.Log.Debug("polish pass failed, using raw text", logx.Err(err))
		}
		return raw
	}
	return out
}
