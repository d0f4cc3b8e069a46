package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/agentflow/agentflow/agent"
)

// SQLiteStore is a SQLite-backed Store implementation.
//
// It keeps the whole journal in a single-file database, which makes it a
// good fit for:
//   - development and testing with zero setup
//   - single-process deployments needing durable execution history
//   - prototyping before migrating to a server database
//
// The store enables WAL mode so status queries do not block the
// scheduler's journal writes, and foreign keys so deleting an execution
// cascades to its task records.
//
// Pass ":memory:" as the path for an in-memory database (lost on Close).
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// NewSQLiteStore opens (creating if needed) the journal database at path
// and runs schema migration.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite journal: %w", err)
	}

	// SQLite supports a single writer; a one-connection pool avoids
	// SQLITE_BUSY churn between the scheduler's concurrent task writes.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{
		db:   db,
		path: path,
		now:  func() time.Time { return time.Now().UTC() },
	}
	if err := s.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create journal tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) createTables(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS workflows (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			dag_definition TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'draft',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS workflow_executions (
			id TEXT PRIMARY KEY,
			workflow_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			input_data TEXT,
			output_data TEXT,
			error_message TEXT,
			started_at TEXT,
			completed_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS task_executions (
			id TEXT PRIMARY KEY,
			workflow_execution_id TEXT NOT NULL
				REFERENCES workflow_executions(id) ON DELETE CASCADE,
			agent_id TEXT,
			task_name TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			input_data TEXT,
			output_data TEXT,
			error_message TEXT,
			execution_time_ms INTEGER,
			cost_estimate_micros INTEGER,
			started_at TEXT,
			completed_at TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_task_executions_workflow
			ON task_executions(workflow_execution_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_workflow_executions_workflow
			ON workflow_executions(workflow_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// BeginWorkflow inserts the execution record at status running.
func (s *SQLiteStore) BeginWorkflow(ctx context.Context, executionID, workflowID string, input map[string]any) (*WorkflowExecution, error) {
	now := s.now()
	inputJSON, err := marshalJSONMap(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input_data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, status, input_data, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		executionID, workflowID, string(WorkflowRunning), inputJSON,
		formatTime(now), formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert workflow execution: %w", err)
	}
	return &WorkflowExecution{
		ID:         executionID,
		WorkflowID: workflowID,
		Status:     WorkflowRunning,
		InputData:  copyJSONMap(input),
		StartedAt:  now,
		CreatedAt:  now,
	}, nil
}

// EndWorkflow closes the execution. The guarded UPDATE only touches rows
// still in a non-terminal state, which makes duplicate and conflicting
// terminal writes no-ops (first terminal state wins).
func (s *SQLiteStore) EndWorkflow(ctx context.Context, executionID string, status WorkflowStatus, output map[string]any, errMsg string) error {
	outputJSON, err := marshalJSONMap(output)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE workflow_executions
		SET status = ?, output_data = ?, error_message = ?, completed_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'cancelled')`,
		string(status), outputJSON, nullString(errMsg), formatTime(s.now()), executionID)
	if err != nil {
		return fmt.Errorf("end workflow execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either already terminal (idempotent no-op) or unknown.
		var exists int
		row := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM workflow_executions WHERE id = ?`, executionID)
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// BeginTask inserts a task record at status running and returns its ID.
func (s *SQLiteStore) BeginTask(ctx context.Context, workflowExecutionID, taskName, agentID string, input map[string]any) (string, error) {
	now := s.now()
	inputJSON, err := marshalJSONMap(input)
	if err != nil {
		return "", fmt.Errorf("marshal input_data: %w", err)
	}
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_executions (id, workflow_execution_id, agent_id, task_name, status, input_data, started_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, workflowExecutionID, nullString(agentID), taskName,
		string(TaskRunning), inputJSON, formatTime(now), formatTime(now))
	if err != nil {
		return "", fmt.Errorf("insert task execution: %w", err)
	}
	return id, nil
}

// EndTask closes a task record, idempotently.
func (s *SQLiteStore) EndTask(ctx context.Context, taskExecutionID string, status TaskStatus, output map[string]any, errMsg string, executionTimeMs int64, cost agent.Cost) error {
	outputJSON, err := marshalJSONMap(output)
	if err != nil {
		return fmt.Errorf("marshal output_data: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE task_executions
		SET status = ?, output_data = ?, error_message = ?, execution_time_ms = ?,
		    cost_estimate_micros = ?, completed_at = ?
		WHERE id = ? AND status NOT IN ('completed', 'failed', 'skipped')`,
		string(status), outputJSON, nullString(errMsg), executionTimeMs,
		int64(cost), formatTime(s.now()), taskExecutionID)
	if err != nil {
		return fmt.Errorf("end task execution: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		var exists int
		row := s.db.QueryRowContext(ctx,
			`SELECT COUNT(1) FROM task_executions WHERE id = ?`, taskExecutionID)
		if err := row.Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// GetWorkflow returns the execution record.
func (s *SQLiteStore) GetWorkflow(ctx context.Context, executionID string) (*WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, workflow_id, status, input_data, output_data, error_message,
		       started_at, completed_at, created_at
		FROM workflow_executions WHERE id = ?`, executionID)

	var (
		exec                      WorkflowExecution
		status                    string
		inputJSON, outputJSON     sql.NullString
		errMsg                    sql.NullString
		startedAt, completedAt    sql.NullString
		createdAt                 string
	)
	err := row.Scan(&exec.ID, &exec.WorkflowID, &status, &inputJSON, &outputJSON,
		&errMsg, &startedAt, &completedAt, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow execution: %w", err)
	}

	exec.Status = WorkflowStatus(status)
	exec.ErrorMessage = errMsg.String
	if exec.InputData, err = unmarshalJSONMap(inputJSON); err != nil {
		return nil, err
	}
	if exec.OutputData, err = unmarshalJSONMap(outputJSON); err != nil {
		return nil, err
	}
	if exec.StartedAt, err = parseNullTime(startedAt); err != nil {
		return nil, err
	}
	if exec.CompletedAt, err = parseNullTimePtr(completedAt); err != nil {
		return nil, err
	}
	if exec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &exec, nil
}

// ListTasks returns all task records for an execution in creation order.
func (s *SQLiteStore) ListTasks(ctx context.Context, executionID string) ([]*TaskExecution, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workflow_execution_id, agent_id, task_name, status,
		       input_data, output_data, error_message, execution_time_ms,
		       cost_estimate_micros, started_at, completed_at, created_at
		FROM task_executions
		WHERE workflow_execution_id = ?
		ORDER BY created_at, id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query task executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*TaskExecution
	for rows.Next() {
		var (
			task                   TaskExecution
			agentID                sql.NullString
			status                 string
			inputJSON, outputJSON  sql.NullString
			errMsg                 sql.NullString
			execTimeMs, costMicros sql.NullInt64
			startedAt, completedAt sql.NullString
			createdAt              string
		)
		err := rows.Scan(&task.ID, &task.WorkflowExecutionID, &agentID,
			&task.TaskName, &status, &inputJSON, &outputJSON, &errMsg,
			&execTimeMs, &costMicros, &startedAt, &completedAt, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan task execution: %w", err)
		}
		task.AgentID = agentID.String
		task.Status = TaskStatus(status)
		task.ErrorMessage = errMsg.String
		task.ExecutionTimeMs = execTimeMs.Int64
		task.CostEstimate = agent.Cost(costMicros.Int64)
		if task.InputData, err = unmarshalJSONMap(inputJSON); err != nil {
			return nil, err
		}
		if task.OutputData, err = unmarshalJSONMap(outputJSON); err != nil {
			return nil, err
		}
		if task.StartedAt, err = parseNullTime(startedAt); err != nil {
			return nil, err
		}
		if task.CompletedAt, err = parseNullTimePtr(completedAt); err != nil {
			return nil, err
		}
		if task.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, &task)
	}
	return out, rows.Err()
}

// SaveWorkflow upserts a workflow definition record.
func (s *SQLiteStore) SaveWorkflow(ctx context.Context, w *Workflow) error {
	now := s.now()
	status := w.Status
	if status == "" {
		status = "draft"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (id, name, description, dag_definition, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			dag_definition = excluded.dag_definition,
			status = excluded.status,
			updated_at = excluded.updated_at`,
		w.ID, w.Name, w.Description, string(w.DAGDefinition), status,
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("save workflow: %w", err)
	}
	return nil
}

// GetWorkflowDefinition returns a stored workflow definition.
func (s *SQLiteStore) GetWorkflowDefinition(ctx context.Context, workflowID string) (*Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, dag_definition, status, created_at, updated_at
		FROM workflows WHERE id = ?`, workflowID)

	var (
		w                    Workflow
		description          sql.NullString
		dagDefinition        string
		createdAt, updatedAt string
	)
	err := row.Scan(&w.ID, &w.Name, &description, &dagDefinition, &w.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query workflow: %w", err)
	}
	w.Description = description.String
	w.DAGDefinition = []byte(dagDefinition)
	if w.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if w.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeleteExecution removes an execution; the task_executions foreign key
// cascades the delete to its task records.
func (s *SQLiteStore) DeleteExecution(ctx context.Context, executionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM workflow_executions WHERE id = ?`, executionID)
	if err != nil {
		return fmt.Errorf("delete execution: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const timeLayout = time.RFC3339Nano

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse journal timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseNullTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return parseTime(ns.String)
}

func parseNullTimePtr(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func marshalJSONMap(m map[string]any) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unmarshalJSONMap(ns sql.NullString) (map[string]any, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil, fmt.Errorf("decode journal JSON column: %w", err)
	}
	return m, nil
}
