package store

import (
	"context"
	"database/sql"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/runbookhq/runbookengine/internal/rberrors"
	"github.com/runbookhq/runbookengine/internal/rbtypes"
)

// SQLiteStore is the default durable Store, backed by the pure-Go
// modernc.org/sqlite driver. Writers are serialized through mu in
// addition to sqlite's own file locking, matching spec.md §4.1's
// "tolerates concurrent readers... serializes writers via its own
// locking" with an explicit in-process mutex since a single process is
// the only writer spec.md's scope ever has.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if necessary) the sqlite database at path and
// brings its schema up to date.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, &rberrors.StoreError{Op: "open", Cause: err}
	}
	db.SetMaxOpenConns(1) // sqlite + our own mutex: avoid SQLITE_BUSY entirely

	if err := migrate(db); err != nil {
		db.Close()
		return nil, &rberrors.StoreError{Op: "migrate", Cause: err}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) CreateRun(ctx context.Context, workflowName string, trigger rbtypes.Trigger, variablesJSON, runbookDigest string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &rberrors.StoreError{Op: "create_run", Cause: err}
	}
	defer tx.Rollback()

	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(run_id) FROM runs WHERE workflow_name = ?`, workflowName).Scan(&maxID); err != nil {
		return 0, &rberrors.StoreError{Op: "create_run", Cause: err}
	}
	runID := maxID.Int64 + 1

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (workflow_name, run_id, start_time, status, trigger, variables_json, runbook_digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		workflowName, runID, now, string(rbtypes.RunRunning), string(trigger), variablesJSON, runbookDigest)
	if err != nil {
		return 0, &rberrors.StoreError{Op: "create_run", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &rberrors.StoreError{Op: "create_run", Cause: err}
	}
	return runID, nil
}

func (s *SQLiteStore) LatestRunFor(ctx context.Context, workflowName string) (*rbtypes.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_name, run_id, start_time, end_time, status, trigger, nodes_ok, nodes_nok, nodes_skipped, variables_json, runbook_digest
		FROM runs WHERE workflow_name = ? ORDER BY run_id DESC LIMIT 1`, workflowName)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &rberrors.StoreError{Op: "latest_run_for", Cause: err}
	}
	return run, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, workflowName string, runID int64) (*rbtypes.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_name, run_id, start_time, end_time, status, trigger, nodes_ok, nodes_nok, nodes_skipped, variables_json, runbook_digest
		FROM runs WHERE workflow_name = ? AND run_id = ?`, workflowName, runID)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &rberrors.StoreError{Op: "get_run", Cause: err}
	}
	return run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, workflowName string, runID int64, status rbtypes.RunStatus, nodesOK, nodesNOK, nodesSkipped int, endTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var endStr any
	if endTime != nil {
		endStr = endTime.UTC().Format(time.RFC3339Nano)
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, nodes_ok = ?, nodes_nok = ?, nodes_skipped = ?, end_time = ?
		WHERE workflow_name = ? AND run_id = ?`,
		string(status), nodesOK, nodesNOK, nodesSkipped, endStr, workflowName, runID)
	if err != nil {
		return &rberrors.StoreError{Op: "update_run_status", Cause: err}
	}
	return nil
}

func (s *SQLiteStore) SetRunStatus(ctx context.Context, workflowName string, runID int64, status rbtypes.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE runs SET status = ? WHERE workflow_name = ? AND run_id = ?`, string(status), workflowName, runID)
	if err != nil {
		return &rberrors.StoreError{Op: "set_run_status", Cause: err}
	}
	return nil
}

func (s *SQLiteStore) BeginAttempt(ctx context.Context, workflowName string, runID int64, nodeID string, startTime time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, &rberrors.StoreError{Op: "begin_attempt", Cause: err}
	}
	defer tx.Rollback()

	var maxAttempt sql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(attempt) FROM executions WHERE workflow_name = ? AND run_id = ? AND node_id = ?`,
		workflowName, runID, nodeID).Scan(&maxAttempt); err != nil {
		return 0, &rberrors.StoreError{Op: "begin_attempt", Cause: err}
	}
	attempt := int(maxAttempt.Int64) + 1

	_, err = tx.ExecContext(ctx, `
		INSERT INTO executions (workflow_name, run_id, node_id, attempt, start_time, status, operator_decision, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`,
		workflowName, runID, nodeID, attempt, startTime.UTC().Format(time.RFC3339Nano), string(rbtypes.NodePending), string(rbtypes.DecisionNone))
	if err != nil {
		return 0, &rberrors.StoreError{Op: "begin_attempt", Cause: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &rberrors.StoreError{Op: "begin_attempt", Cause: err}
	}
	return attempt, nil
}

func (s *SQLiteStore) FinishAttempt(ctx context.Context, key rbtypes.ExecutionKey, status rbtypes.NodeStatus, decision rbtypes.OperatorDecision, resultText string, exitCode *int, exception, stdout, stderr string, endTime time.Time, durationMS int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET end_time = ?, status = ?, operator_decision = ?, result_text = ?, exit_code = ?, exception = ?, stdout = ?, stderr = ?, duration_ms = ?
		WHERE workflow_name = ? AND run_id = ? AND node_id = ? AND attempt = ?`,
		endTime.UTC().Format(time.RFC3339Nano), string(status), string(decision), resultText, exitCode, nullableString(exception), nullableString(stdout), nullableString(stderr), durationMS,
		key.WorkflowName, key.RunID, key.NodeID, key.Attempt)
	if err != nil {
		return &rberrors.StoreError{Op: "finish_attempt", Cause: err}
	}
	return nil
}

func (s *SQLiteStore) SetOperatorDecision(ctx context.Context, key rbtypes.ExecutionKey, decision rbtypes.OperatorDecision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		UPDATE executions SET operator_decision = ?
		WHERE workflow_name = ? AND run_id = ? AND node_id = ? AND attempt = ?`,
		string(decision), key.WorkflowName, key.RunID, key.NodeID, key.Attempt)
	if err != nil {
		return &rberrors.StoreError{Op: "set_operator_decision", Cause: err}
	}
	return nil
}

func (s *SQLiteStore) LatestAttempt(ctx context.Context, workflowName string, runID int64, nodeID string) (*rbtypes.NodeExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx, `
		SELECT workflow_name, run_id, node_id, attempt, start_time, end_time, status, operator_decision, result_text, exit_code, exception, stdout, stderr, duration_ms
		FROM executions WHERE workflow_name = ? AND run_id = ? AND node_id = ? ORDER BY attempt DESC LIMIT 1`,
		workflowName, runID, nodeID)
	exec, err := scanExecution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, &rberrors.StoreError{Op: "latest_attempt", Cause: err}
	}
	return exec, nil
}

func (s *SQLiteStore) ExecutionsFor(ctx context.Context, workflowName string, runID int64) ([]rbtypes.NodeExecution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT workflow_name, run_id, node_id, attempt, start_time, end_time, status, operator_decision, result_text, exit_code, exception, stdout, stderr, duration_ms
		FROM executions WHERE workflow_name = ? AND run_id = ? ORDER BY node_id, attempt`, workflowName, runID)
	if err != nil {
		return nil, &rberrors.StoreError{Op: "executions_for", Cause: err}
	}
	defer rows.Close()

	var out []rbtypes.NodeExecution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, &rberrors.StoreError{Op: "executions_for", Cause: err}
		}
		out = append(out, *exec)
	}
	if err := rows.Err(); err != nil {
		return nil, &rberrors.StoreError{Op: "executions_for", Cause: err}
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*rbtypes.Run, error) {
	var r rbtypes.Run
	var start string
	var end sql.NullString
	var status, trigger string
	if err := row.Scan(&r.WorkflowName, &r.RunID, &start, &end, &status, &trigger, &r.NodesOK, &r.NodesNOK, &r.NodesSkipped, &r.VariablesJSON, &r.RunbookDigest); err != nil {
		return nil, err
	}
	r.Status = rbtypes.RunStatus(status)
	r.Trigger = rbtypes.Trigger(trigger)
	r.StartTime, _ = time.Parse(time.RFC3339Nano, start)
	if end.Valid {
		t, _ := time.Parse(time.RFC3339Nano, end.String)
		r.EndTime = &t
	}
	return &r, nil
}

func scanExecution(row scanner) (*rbtypes.NodeExecution, error) {
	var e rbtypes.NodeExecution
	var start string
	var end, exception, stdout, stderr sql.NullString
	var exitCode sql.NullInt64
	var status, decision string
	if err := row.Scan(&e.WorkflowName, &e.RunID, &e.NodeID, &e.Attempt, &start, &end, &status, &decision, &e.ResultText, &exitCode, &exception, &stdout, &stderr, &e.DurationMS); err != nil {
		return nil, err
	}
	e.Status = rbtypes.NodeStatus(status)
	e.OperatorDecision = rbtypes.OperatorDecision(decision)
	e.StartTime, _ = time.Parse(time.RFC3339Nano, start)
	if end.Valid {
		t, _ := time.Parse(time.RFC3339Nano, end.String)
		e.EndTime = &t
	}
	if exitCode.Valid {
		code := int(exitCode.Int64)
		e.ExitCode = &code
	}
	e.Exception = exception.String
	e.Stdout = stdout.String
	e.Stderr = stderr.String
	return &e, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
