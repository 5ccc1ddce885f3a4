package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nidhogg/astro/internal/orchestrator"
)

// TaskRecord is one journal row.
type TaskRecord struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	AgentType   string     `json:"agent_type"`
	Status      string     `json:"status"`
	ParentID    string     `json:"parent_id,omitempty"`
	Success     bool       `json:"success"`
	Output      string     `json:"output,omitempty"`
	Error       string     `json:"error,omitempty"`
	ExecutorID  string     `json:"executor_id,omitempty"`
	DurationMS  int64      `json:"duration_ms,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RecordFromSnapshot flattens an orchestrator snapshot into a journal row.
func RecordFromSnapshot(snap *orchestrator.TaskSnapshot) *TaskRecord {
	r := &TaskRecord{
		ID:          snap.ID,
		Description: snap.Description,
		AgentType:   snap.AgentType,
		Status:      string(snap.Status),
		ParentID:    snap.ParentID,
		CreatedAt:   snap.CreatedAt,
		StartedAt:   snap.StartedAt,
		CompletedAt: snap.CompletedAt,
	}
	if snap.Result != nil {
		r.Success = snap.Result.Success
		r.Output = snap.Result.Output
		r.Error = snap.Result.Error
		r.ExecutorID = snap.Result.Metadata["executor_id"]
		r.DurationMS = snap.Result.Duration.Milliseconds()
	}
	return r
}

func scanRecord(scanner interface {
	Scan(dest ...any) error
}) (*TaskRecord, error) {
	r := &TaskRecord{}
	var parentID, output, errMsg, executorID *string
	var success *bool
	var durationMS *int64
	err := scanner.Scan(&r.ID, &r.Description, &r.AgentType, &r.Status,
		&parentID, &success, &output, &errMsg, &executorID, &durationMS,
		&r.CreatedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	if parentID != nil {
		r.ParentID = *parentID
	}
	if success != nil {
		r.Success = *success
	}
	if output != nil {
		r.Output = *output
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	if executorID != nil {
		r.ExecutorID = *executorID
	}
	if durationMS != nil {
		r.DurationMS = *durationMS
	}
	return r, nil
}

// SaveTask upserts a journal row.
func (s *Store) SaveTask(r *TaskRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO tasks (id, description, agent_type, status, parent_id,
			success, output, error, executor_id, duration_ms,
			created_at, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			success = excluded.success,
			output = excluded.output,
			error = excluded.error,
			executor_id = excluded.executor_id,
			duration_ms = excluded.duration_ms,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at`,
		r.ID, r.Description, r.AgentType, r.Status, r.ParentID,
		r.Success, r.Output, r.Error, r.ExecutorID, r.DurationMS,
		r.CreatedAt, r.StartedAt, r.CompletedAt)
	if err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// GetTask returns a journal row, or nil when the id is unknown.
func (s *Store) GetTask(id string) (*TaskRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, description, agent_type, status, parent_id,
		       success, output, error, executor_id, duration_ms,
		       created_at, started_at, completed_at
		FROM tasks WHERE id = ?`, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return r, nil
}

// ListTasks returns journal rows, newest first, optionally filtered by
// status.
func (s *Store) ListTasks(status string) ([]TaskRecord, error) {
	query := `
		SELECT id, description, agent_type, status, parent_id,
		       success, output, error, executor_id, duration_ms,
		       created_at, started_at, completed_at
		FROM tasks`
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []TaskRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}
