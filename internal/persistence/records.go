package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AppendRecords writes a batch of records in one transaction.
func (s *SQLiteStore) AppendRecords(ctx context.Context, sessionID string, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// Begin transaction with serializable isolation (BEGIN IMMEDIATE)
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO task_events (session_id, task_id, task_name, task_type, kind, tick, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, sessionID, r.TaskID, r.TaskName, r.TaskType, r.Kind, r.Tick, r.Timestamp.UTC()); err != nil {
			return fmt.Errorf("failed to insert record for task %q: %w", r.TaskName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListRecords returns the records of a session in the order they were written.
func (s *SQLiteStore) ListRecords(ctx context.Context, sessionID string) ([]Record, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, session_id, task_id, task_name, task_type, kind, tick, created_at
		FROM task_events
		WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Seq, &r.SessionID, &r.TaskID, &r.TaskName, &r.TaskType, &r.Kind, &r.Tick, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
