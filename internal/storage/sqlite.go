package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"feed_notifier/internal/model"
	"feed_notifier/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if dsn == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ListEnabledSubscribers returns every enabled subscriber ordered by chat ID.
func (s *SQLite) ListEnabledSubscribers(ctx context.Context) ([]model.Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT chat_id, enabled, filter, created_at, updated_at
		 FROM subscribers WHERE enabled = 1 ORDER BY chat_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscribers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var subs []model.Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// GetSubscriber returns the subscriber for a chat.
func (s *SQLite) GetSubscriber(ctx context.Context, chatID int64) (*model.Subscriber, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT chat_id, enabled, filter, created_at, updated_at
		 FROM subscribers WHERE chat_id = ?`, chatID,
	)
	sub, err := scanSubscriber(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return sub, err
}

// UpsertSubscriber inserts a subscriber or replaces the settings of an
// existing one. CreatedAt and UpdatedAt are populated from the database.
func (s *SQLite) UpsertSubscriber(ctx context.Context, sub *model.Subscriber) error {
	now := time.Now().UTC().Format(timeLayout)
	var created string
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscribers (chat_id, enabled, filter, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id) DO UPDATE
		   SET enabled = excluded.enabled, filter = excluded.filter, updated_at = excluded.updated_at
		 RETURNING created_at`,
		sub.ChatID, boolToInt(sub.Enabled), sub.Filter, now, now,
	).Scan(&created)
	if err != nil {
		return fmt.Errorf("upsert subscriber: %w", err)
	}
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	sub.UpdatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

// SetEnabled toggles delivery for an existing subscriber.
func (s *SQLite) SetEnabled(ctx context.Context, chatID int64, enabled bool) error {
	return s.update(ctx, "set enabled",
		`UPDATE subscribers SET enabled = ?, updated_at = ? WHERE chat_id = ?`,
		boolToInt(enabled), time.Now().UTC().Format(timeLayout), chatID,
	)
}

// SetFilter replaces the title filter of an existing subscriber.
// An empty filter restores the default pattern.
func (s *SQLite) SetFilter(ctx context.Context, chatID int64, filter string) error {
	return s.update(ctx, "set filter",
		`UPDATE subscribers SET filter = ?, updated_at = ? WHERE chat_id = ?`,
		filter, time.Now().UTC().Format(timeLayout), chatID,
	)
}

// DeleteSubscriber removes a subscriber.
func (s *SQLite) DeleteSubscriber(ctx context.Context, chatID int64) error {
	return s.update(ctx, "delete subscriber", `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
}

func (s *SQLite) update(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscriber(row scannable) (*model.Subscriber, error) {
	var sub model.Subscriber
	var enabled int
	var created, updated string
	err := row.Scan(&sub.ChatID, &enabled, &sub.Filter, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scan subscriber: %w", err)
	}
	sub.Enabled = enabled == 1
	sub.CreatedAt, _ = time.Parse(timeLayout, created)
	sub.UpdatedAt, _ = time.Parse(timeLayout, updated)
	return &sub, nil
}
