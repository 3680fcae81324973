package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dotcommander/pagekit/internal/models"
)

// DefaultListLimit caps listings when the caller passes no limit.
const DefaultListLimit = 50

// CreateSession records a started page. Recording the same id twice is a no-op.
func CreateSession(ctx context.Context, db *sql.DB, id, pageName string) error {
	return RetryWithBackoff(func() error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO sessions (id, page, started_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
			id, pageName, time.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		return nil
	})
}

// AppendRender stores one render of a session and returns its row id.
func AppendRender(ctx context.Context, db *sql.DB, r models.Render) (int64, error) {
	snapshot := r.Snapshot
	if len(snapshot) == 0 {
		snapshot = json.RawMessage("{}")
	}
	var id int64
	err := Transact(ctx, db, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions WHERE id = ?`, r.SessionID).Scan(&exists); err != nil {
			return fmt.Errorf("check session: %w", err)
		}
		if exists == 0 {
			return &SessionNotFoundError{SessionID: r.SessionID}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO renders (session_id, seq, trigger_kind, command, in_flight, snapshot, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.SessionID, r.Seq, r.Trigger, r.Command, r.InFlight, string(snapshot), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("insert render: %w", err)
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetSession returns a session with its render count.
func GetSession(ctx context.Context, db *sql.DB, id string) (*models.Session, error) {
	var s models.Session
	err := db.QueryRowContext(ctx, `
		SELECT s.id, s.page, s.started_at, COUNT(r.id)
		FROM sessions s LEFT JOIN renders r ON r.session_id = s.id
		WHERE s.id = ?
		GROUP BY s.id
	`, id).Scan(&s.ID, &s.Page, &s.StartedAt, &s.Renders)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &SessionNotFoundError{SessionID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &s, nil
}

// ListSessions returns the most recently started sessions first.
func ListSessions(ctx context.Context, db *sql.DB, limit int) ([]models.Session, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.page, s.started_at, COUNT(r.id)
		FROM sessions s LEFT JOIN renders r ON r.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.Session{}
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.Page, &s.StartedAt, &s.Renders); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RenderFilter narrows ListRenders. An empty SessionID lists every session.
type RenderFilter struct {
	SessionID string
	Trigger   string
	Limit     int
}

// ListRenders returns renders in journal order, oldest first, keeping the
// newest Limit rows.
func ListRenders(ctx context.Context, db *sql.DB, f RenderFilter) ([]models.Render, error) {
	limit, err := normalizeLimit(f.Limit)
	if err != nil {
		return nil, err
	}
	if f.SessionID != "" {
		if _, err := GetSession(ctx, db, f.SessionID); err != nil {
			return nil, err
		}
	}

	rows, err := db.QueryContext(ctx, `
		SELECT id, session_id, seq, trigger_kind, command, in_flight, snapshot, created_at FROM (
			SELECT * FROM renders
			WHERE (? = '' OR session_id = ?) AND (? = '' OR trigger_kind = ?)
			ORDER BY id DESC
			LIMIT ?
		) ORDER BY id ASC
	`, f.SessionID, f.SessionID, f.Trigger, f.Trigger, limit)
	if err != nil {
		return nil, fmt.Errorf("list renders: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []models.Render{}
	for rows.Next() {
		var r models.Render
		var snapshot string
		if err := rows.Scan(&r.ID, &r.SessionID, &r.Seq, &r.Trigger, &r.Command, &r.InFlight, &snapshot, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan render: %w", err)
		}
		r.Snapshot = json.RawMessage(snapshot)
		out = append(out, r)
	}
	return out, rows.Err()
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultListLimit, nil
	case limit < 0:
		return 0, ErrInvalidLimit
	default:
		return limit, nil
	}
}
