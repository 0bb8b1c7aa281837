package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"intakeflow/pkg/schema"
)

// LibSQLStore implements the Store interface on libSQL (embedded SQLite
// fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path. The path should
// be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows, so QueryRow swallows both
	// shapes.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage (e.g. event log).
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate applies pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Step library ---

func (s *LibSQLStore) CreateStep(ctx context.Context, step *LibraryStep) error {
	components, err := json.Marshal(step.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	if step.Status == "" {
		step.Status = "active"
	}
	step.CreatedAt = timeOrNow(step.CreatedAt)
	step.UpdatedAt = timeOrNow(step.UpdatedAt)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO step (name, status, components, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		step.Name, step.Status, string(components), step.CreatedAt, step.UpdatedAt,
	)
	if err != nil {
		return err
	}
	step.ID, err = res.LastInsertId()
	return err
}

func (s *LibSQLStore) GetStep(ctx context.Context, id int64) (*LibraryStep, error) {
	step := &LibraryStep{}
	var components string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, status, components, created_at, updated_at FROM step WHERE id = ?`, id,
	).Scan(&step.ID, &step.Name, &step.Status, &components, &step.CreatedAt, &step.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("step", id)
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(components), &step.Components); err != nil {
		return nil, fmt.Errorf("decode components for step %d: %w", id, err)
	}
	return step, nil
}

func (s *LibSQLStore) UpdateStep(ctx context.Context, step *LibraryStep) error {
	components, err := json.Marshal(step.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}
	step.UpdatedAt = time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE step SET name = ?, status = ?, components = ?, updated_at = ? WHERE id = ?`,
		step.Name, step.Status, string(components), step.UpdatedAt, step.ID,
	)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "step", step.ID)
}

func (s *LibSQLStore) ListSteps(ctx context.Context) ([]*LibraryStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, status, components, created_at, updated_at FROM step ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var steps []*LibraryStep
	for rows.Next() {
		step := &LibraryStep{}
		var components string
		if err := rows.Scan(&step.ID, &step.Name, &step.Status, &components, &step.CreatedAt, &step.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(components), &step.Components); err != nil {
			return nil, fmt.Errorf("decode components for step %d: %w", step.ID, err)
		}
		steps = append(steps, step)
	}
	return steps, rows.Err()
}

func (s *LibSQLStore) DeleteStep(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM step WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "step", id)
}

// --- Workflows ---

// SaveWorkflow persists the workflow graph: the workflow row, one
// workflow_step row per canvas step and the routing rows, replacing any
// previous graph in a single transaction. A nil wf.ID inserts; a set ID
// updates in place.
func (s *LibSQLStore) SaveWorkflow(ctx context.Context, wf *schema.Workflow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	var id int64
	if wf.ID == nil {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO workflow (name, status, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			wf.Name, string(wf.Status), now, now)
		if err != nil {
			return 0, err
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, err
		}
	} else {
		id = *wf.ID
		res, err := tx.ExecContext(ctx,
			`UPDATE workflow SET name = ?, status = ?, updated_at = ? WHERE id = ?`,
			wf.Name, string(wf.Status), now, id)
		if err != nil {
			return 0, err
		}
		if err := checkRowsAffected(res, "workflow", id); err != nil {
			return 0, err
		}
	}

	for _, table := range []string{"workflow_step", "workflow_route", "workflow_route_option"} {
		if _, err := tx.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE workflow_id = ?`, table), id); err != nil {
			return 0, err
		}
	}

	startID := wf.StartStepID
	if startID == "" && len(wf.Steps) > 0 {
		startID = wf.Steps[0].ID
	}

	for pos, step := range wf.Steps {
		var backing any
		if step.StepID != nil {
			backing = *step.StepID
		}
		isStart := 0
		if step.ID == startID {
			isStart = 1
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_step (workflow_id, ui_id, step_id, name, position, is_start)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			id, step.ID, backing, step.Name, pos, isStart); err != nil {
			return 0, err
		}

		r := step.Routing
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_route (workflow_id, source_ui_id, mode, field_key, default_next_ui_id)
			 VALUES (?, ?, ?, ?, ?)`,
			id, step.ID, string(r.Mode), nullStr(r.FieldKey), nullStr(routeDefault(r))); err != nil {
			return 0, err
		}
		if r.Mode == schema.RouteByOption {
			for _, opt := range r.Options {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO workflow_route_option (workflow_id, source_ui_id, option_value, next_ui_id)
					 VALUES (?, ?, ?, ?)`,
					id, step.ID, opt, nullStr(r.Mapping[opt])); err != nil {
					return 0, err
				}
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	wf.ID = &id
	return id, nil
}

// routeDefault collapses the two successor slots into the single persisted
// column: linear routes store Next, byOption routes store DefaultNext.
func routeDefault(r schema.Routing) string {
	if r.Mode == schema.RouteLinear {
		return r.Next
	}
	return r.DefaultNext
}

func (s *LibSQLStore) GetWorkflow(ctx context.Context, id int64) (*schema.Workflow, error) {
	wf := &schema.Workflow{ID: &id}
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT name, status FROM workflow WHERE id = ?`, id,
	).Scan(&wf.Name, &status)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("workflow", id)
	}
	if err != nil {
		return nil, err
	}
	wf.Status = schema.WorkflowStatus(status)

	rows, err := s.db.QueryContext(ctx,
		`SELECT ui_id, step_id, name, is_start FROM workflow_step WHERE workflow_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	index := map[string]int{}
	for rows.Next() {
		var (
			step    schema.Step
			backing sql.NullInt64
			isStart int
		)
		if err := rows.Scan(&step.ID, &backing, &step.Name, &isStart); err != nil {
			return nil, err
		}
		if backing.Valid {
			v := backing.Int64
			step.StepID = &v
		}
		if isStart == 1 && wf.StartStepID == "" {
			wf.StartStepID = step.ID
		}
		index[step.ID] = len(wf.Steps)
		wf.Steps = append(wf.Steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	routeRows, err := s.db.QueryContext(ctx,
		`SELECT source_ui_id, mode, field_key, default_next_ui_id FROM workflow_route WHERE workflow_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer routeRows.Close()
	for routeRows.Next() {
		var (
			source, mode      string
			fieldKey, defNext sql.NullString
		)
		if err := routeRows.Scan(&source, &mode, &fieldKey, &defNext); err != nil {
			return nil, err
		}
		i, ok := index[source]
		if !ok {
			continue
		}
		r := schema.Routing{Mode: schema.RouteMode(mode), FieldKey: fieldKey.String}
		if r.Mode == schema.RouteLinear {
			r.Next = defNext.String
		} else {
			r.DefaultNext = defNext.String
			r.Mapping = map[string]string{}
		}
		wf.Steps[i].Routing = r
	}
	if err := routeRows.Err(); err != nil {
		return nil, err
	}

	optRows, err := s.db.QueryContext(ctx,
		`SELECT source_ui_id, option_value, next_ui_id FROM workflow_route_option WHERE workflow_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}
	defer optRows.Close()
	for optRows.Next() {
		var (
			source, value string
			next          sql.NullString
		)
		if err := optRows.Scan(&source, &value, &next); err != nil {
			return nil, err
		}
		i, ok := index[source]
		if !ok {
			continue
		}
		r := &wf.Steps[i].Routing
		r.Options = append(r.Options, value)
		if next.Valid && next.String != "" {
			if r.Mapping == nil {
				r.Mapping = map[string]string{}
			}
			r.Mapping[value] = next.String
		}
	}
	return wf, optRows.Err()
}

func (s *LibSQLStore) ListWorkflows(ctx context.Context, filter WorkflowFilter) ([]*WorkflowSummary, error) {
	query := `SELECT w.id, w.name, w.status, w.updated_at,
		(SELECT COUNT(*) FROM workflow_step ws WHERE ws.workflow_id = w.id)
		FROM workflow w`
	var args []any
	if filter.Status != "" {
		query += ` WHERE w.status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY w.id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*WorkflowSummary
	for rows.Next() {
		ws := &WorkflowSummary{}
		var status string
		if err := rows.Scan(&ws.ID, &ws.Name, &status, &ws.UpdatedAt, &ws.StepCount); err != nil {
			return nil, err
		}
		ws.Status = schema.WorkflowStatus(status)
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (s *LibSQLStore) DeleteWorkflow(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM workflow WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "workflow", id)
}

// --- Runtime schema cache ---

func (s *LibSQLStore) PutRuntimeSchema(ctx context.Context, workflowID int64, rs *schema.RuntimeSchema) error {
	doc, err := json.Marshal(rs)
	if err != nil {
		return fmt.Errorf("marshal runtime schema: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runtime_schema (workflow_id, document, compiled_at) VALUES (?, ?, ?)
		 ON CONFLICT(workflow_id) DO UPDATE SET document=excluded.document, compiled_at=excluded.compiled_at`,
		workflowID, string(doc), time.Now().UTC(),
	)
	return err
}

func (s *LibSQLStore) GetRuntimeSchema(ctx context.Context, workflowID int64) (*CompiledSchemaRecord, error) {
	record := &CompiledSchemaRecord{WorkflowID: workflowID}
	var doc string
	err := s.db.QueryRowContext(ctx,
		`SELECT document, compiled_at FROM runtime_schema WHERE workflow_id = ?`, workflowID,
	).Scan(&doc, &record.CompiledAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("runtime schema", workflowID)
	}
	if err != nil {
		return nil, err
	}
	record.Document = []byte(doc)
	record.Schema = &schema.RuntimeSchema{}
	if err := json.Unmarshal(record.Document, record.Schema); err != nil {
		return nil, fmt.Errorf("decode runtime schema for workflow %d: %w", workflowID, err)
	}
	return record, nil
}

// --- Events ---

func (s *LibSQLStore) GetEvents(ctx context.Context, workflowID int64, since int64) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, workflow_id, session_id, step_id, event_type, payload, timestamp, sequence
		 FROM events WHERE workflow_id = ? AND sequence > ? ORDER BY sequence ASC`,
		workflowID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (s *LibSQLStore) GetEventsByType(ctx context.Context, eventType string, filter EventFilter) ([]*Event, error) {
	query := `SELECT id, workflow_id, session_id, step_id, event_type, payload, timestamp, sequence
		 FROM events WHERE event_type = ?`
	args := []any{eventType}
	if filter.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, filter.SessionID)
	}
	query += ` ORDER BY timestamp DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]*Event, error) {
	var out []*Event
	for rows.Next() {
		e := &Event{}
		var sessionID, stepID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.WorkflowID, &sessionID, &stepID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		e.SessionID = sessionID.String
		e.StepID = stepID.String
		if payload.Valid && payload.String != "" {
			e.Payload = json.RawMessage(payload.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- helpers ---

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func storeNotFound(kind string, id int64) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %d not found", kind, id)
}

func checkRowsAffected(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

var _ Store = (*LibSQLStore)(nil)
