package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// BeginSession records the start of a run. Beginning an existing session is a no-op.
func (s *SQLiteStore) BeginSession(ctx context.Context, id string, startedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, started_at)
		VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to begin session: %w", err)
	}
	return nil
}

// EndSession stamps the end time of a run.
// Returns a wrapped sql.ErrNoRows if the session does not exist.
func (s *SQLiteStore) EndSession(ctx context.Context, id string, endedAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := s.db.ExecContext(ctx, `UPDATE sessions SET ended_at = ? WHERE id = ?`, endedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("no session %q: %w", id, sql.ErrNoRows)
	}
	return nil
}

// ListSessions returns every session, newest first, with its event count.
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.started_at, s.ended_at, COUNT(e.seq)
		FROM sessions s
		LEFT JOIN task_events e ON e.session_id = s.id
		GROUP BY s.id
		ORDER BY s.started_at DESC, s.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var sess Session
		var ended sql.NullTime
		if err := rows.Scan(&sess.ID, &sess.StartedAt, &ended, &sess.Events); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		if ended.Valid {
			t := ended.Time
			sess.EndedAt = &t
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}
	return sessions, nil
}
