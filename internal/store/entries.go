package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"inkwell/internal/domain"
)

func (s *Store) AddEntry(ctx context.Context, e domain.Entry) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO entries(user_id, type, body, media_ref, entry_date, created_at)
		 VALUES(?,?,?,?,?,?)`,
		e.UserID, string(e.Type), e.Body, e.MediaRef, msOf(e.EntryDate), msOf(e.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// EntriesInRange selects a user's entries with entry_date in [start, end),
// ordered by entry date ascending, honoring the subscription's filter.
func (s *Store) EntriesInRange(ctx context.Context, userID int64, start, end time.Time, filter domain.EntryFilter) ([]domain.Entry, error) {
	q := `SELECT id, user_id, type, body, media_ref, entry_date, created_at
	        FROM entries
	       WHERE user_id = ? AND entry_date >= ? AND entry_date < ?`
	args := []any{userID, msOf(start), msOf(end)}
	switch filter {
	case domain.FilterDaily:
		q += ` AND type = ?`
		args = append(args, string(domain.TypeDigest))
	case domain.FilterIndividual:
		q += ` AND type != ?`
		args = append(args, string(domain.TypeDigest))
	}
	q += ` ORDER BY entry_date ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var typ string
		var entryMS, createdMS int64
		if err := rows.Scan(&e.ID, &e.UserID, &typ, &e.Body, &e.MediaRef, &entryMS, &createdMS); err != nil {
			return nil, err
		}
		e.Type = domain.EntryType(typ)
		e.EntryDate = timeOf(entryMS)
		e.CreatedAt = timeOf(createdMS)
		out = append(out, e)
	}
	return out, rows.Err()
}

// LastEntryTimestamp is the instant of the user's most recent non-digest
// entry, or nil if they never journaled. Digests are machine-made and must
// not count as activity, so smart reminders ignore them.
func (s *Store) LastEntryTimestamp(ctx context.Context, userID int64) (*time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		`SELECT entry_date FROM entries
		  WHERE user_id = ? AND type != ?
		  ORDER BY entry_date DESC LIMIT 1`,
		userID, string(domain.TypeDigest)).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t := timeOf(ms)
	return &t, nil
}
