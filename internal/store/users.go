package store

import (
	"context"
	"database/sql"
	"errors"

	"inkwell/internal/domain"
)

func (s *Store) UpsertUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, tz, channel, chat_id, email, created_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   tz=excluded.tz, channel=excluded.channel,
		   chat_id=excluded.chat_id, email=excluded.email`,
		u.ID, u.TZ, u.Channel, u.ChatID, u.Email, msOf(u.CreatedAt))
	return err
}

func (s *Store) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tz, channel, chat_id, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.TZ, &u.Channel, &u.ChatID, &u.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	u.CreatedAt = timeOf(created)
	return u, nil
}
