package identity

import (
	"context"
	"database/sql"
	"errors"
)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

var _ Store = (*PGStore)(nil)

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

const userColumns = `id, email, name, coalesce(telegram_id,0), level, password_hash, status, created_at, updated_at`

func (s *PGStore) Create(ctx context.Context, u *User) error {
	var telegramID any
	if u.TelegramID != 0 {
		telegramID = u.TelegramID
	}
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, name, telegram_id, level, password_hash, status)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, u.ID, u.Email, u.Name, telegramID, u.Level, u.PasswordHash, u.Status)
	return err
}

func (s *PGStore) Find(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where id = $1`, id))
}

func (s *PGStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where email = $1`, email))
}

func (s *PGStore) FindByTelegramID(ctx context.Context, telegramID int64) (*User, error) {
	return s.scanOne(s.db.QueryRowContext(ctx,
		`select `+userColumns+` from users where telegram_id = $1`, telegramID))
}

func (s *PGStore) List(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`select `+userColumns+` from users order by created_at asc`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &u.TelegramID, &u.Level,
			&u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}

func (s *PGStore) SetLevel(ctx context.Context, id string, level int) error {
	return s.exec(ctx, `update users set level = $2, updated_at = now() where id = $1`, id, level)
}

func (s *PGStore) SetStatus(ctx context.Context, id, status string) error {
	return s.exec(ctx, `update users set status = $2, updated_at = now() where id = $1`, id, status)
}

func (s *PGStore) exec(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) scanOne(row *sql.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.TelegramID, &u.Level,
		&u.PasswordHash, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
