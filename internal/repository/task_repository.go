package repository

import (
	"database/sql"
	"fmt"

	"github.com/sokolovdp/finmars-core-sub005/internal/apperrors"
	"github.com/sokolovdp/finmars-core-sub005/internal/model"
)

// TaskRepository persists background task records. Running tasks write
// progress through this repository; pollers read the same row.
type TaskRepository struct {
	db *sql.DB
}

// NewTaskRepository creates a new TaskRepository with the provided database connection.
func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// Create inserts a new task row in pending state.
func (s *TaskRepository) Create(t *model.Task) error {
	_, err := s.db.Exec(`
		INSERT INTO task (
			id, master_user_id, worker_task_id, type, status,
			progress_current, progress_total, progress_percent, progress_description,
			options_object, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.ID, t.MasterUserID, NullStr(t.WorkerTaskID), t.Type, string(t.Status),
		t.Progress.Current, t.Progress.Total, t.Progress.Percent, NullStr(t.Progress.Description),
		NullStr(t.OptionsObject), NullStr(t.Notes),
	)
	if err != nil {
		return fmt.Errorf("failed to insert into task table: %w", err)
	}
	return nil
}

// Get retrieves one task row.
func (s *TaskRepository) Get(taskID string) (*model.Task, error) {
	var t model.Task
	var workerTaskID, description, options, result, errorMessage, notes sql.NullString
	var createdAt, updatedAt sql.NullString

	err := s.db.QueryRow(`
		SELECT id, master_user_id, worker_task_id, type, status,
		       progress_current, progress_total, progress_percent, progress_description,
		       options_object, result_object, error_message, notes, created_at, updated_at
		FROM task
		WHERE id = ?
	`, taskID).Scan(
		&t.ID, &t.MasterUserID, &workerTaskID, &t.Type, &t.Status,
		&t.Progress.Current, &t.Progress.Total, &t.Progress.Percent, &description,
		&options, &result, &errorMessage, &notes, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task table results: %w", err)
	}

	t.WorkerTaskID = StrOrEmpty(workerTaskID)
	t.Progress.Description = StrOrEmpty(description)
	t.OptionsObject = StrOrEmpty(options)
	t.ResultObject = StrOrEmpty(result)
	t.ErrorMessage = StrOrEmpty(errorMessage)
	t.Notes = StrOrEmpty(notes)
	if createdAt.Valid {
		if t.CreatedAt, err = ParseTime(createdAt.String); err != nil {
			return nil, err
		}
	}
	if updatedAt.Valid {
		if t.UpdatedAt, err = ParseTime(updatedAt.String); err != nil {
			return nil, err
		}
	}

	return &t, nil
}

// UpdateStatus transitions a task and records the outcome fields.
func (s *TaskRepository) UpdateStatus(taskID string, status model.TaskStatus, resultObject, errorMessage string) error {
	_, err := s.db.Exec(`
		UPDATE task
		SET status = ?, result_object = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, string(status), NullStr(resultObject), NullStr(errorMessage), taskID)
	if err != nil {
		return fmt.Errorf("failed to update task table: %w", err)
	}
	return nil
}

// UpdateProgress writes the progress object of a running task.
func (s *TaskRepository) UpdateProgress(taskID string, p model.TaskProgress) error {
	_, err := s.db.Exec(`
		UPDATE task
		SET progress_current = ?, progress_total = ?, progress_percent = ?,
		    progress_description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, p.Current, p.Total, p.Percent, NullStr(p.Description), taskID)
	if err != nil {
		return fmt.Errorf("failed to update task table: %w", err)
	}
	return nil
}

// GetStatus reads only the status column, used by running tasks to detect
// external cancellation at progress-update points.
func (s *TaskRepository) GetStatus(taskID string) (model.TaskStatus, error) {
	var status string
	err := s.db.QueryRow(`SELECT status FROM task WHERE id = ?`, taskID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", apperrors.ErrTaskNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to query task table: %w", err)
	}
	return model.TaskStatus(status), nil
}
