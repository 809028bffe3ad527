package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/spigell/talent-outreach/internal/model"
)

const taskSelectColumns = `id, organization_id, campaign_id, candidate_id, task_type, channel, status, stage,
	attempt_number, subject, content, metadata, sent_at, created_at, updated_at`

const taskInsertQuery = `INSERT INTO outreach_tasks
	(id, organization_id, campaign_id, candidate_id, task_type, channel, status, stage,
	 attempt_number, subject, content, metadata, sent_at, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT DO NOTHING`

// ListSentTasks returns sent tasks with a send time, oldest first. An empty campaignID means every campaign.
func (s *Store) ListSentTasks(ctx context.Context, organizationID, campaignID string) ([]model.OutreachTask, error) {
	query := `SELECT ` + taskSelectColumns + ` FROM outreach_tasks
		WHERE organization_id = ? AND status = ? AND sent_at IS NOT NULL`
	args := []any{organizationID, model.TaskStatusSent}

	if campaignID != "" {
		query += ` AND campaign_id = ?`
		args = append(args, campaignID)
	}
	query += ` ORDER BY sent_at, id`

	tasks := []model.OutreachTask{}
	if err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("select sent tasks: %w", err)
	}
	return tasks, nil
}

func (s *Store) ListCandidateTasks(ctx context.Context, organizationID, candidateID string) ([]model.OutreachTask, error) {
	query := `SELECT ` + taskSelectColumns + ` FROM outreach_tasks
		WHERE organization_id = ? AND candidate_id = ? ORDER BY created_at, id`

	tasks := []model.OutreachTask{}
	if err := s.db.SelectContext(ctx, &tasks, s.db.Rebind(query), organizationID, candidateID); err != nil {
		return nil, fmt.Errorf("select candidate tasks: %w", err)
	}
	return tasks, nil
}

// GetFollowUp returns the candidate's task of the given type, or nil when there is none.
func (s *Store) GetFollowUp(ctx context.Context, organizationID, candidateID, taskType string) (*model.OutreachTask, error) {
	query := `SELECT ` + taskSelectColumns + ` FROM outreach_tasks
		WHERE organization_id = ? AND candidate_id = ? AND task_type = ?
		ORDER BY created_at DESC, id LIMIT 1`

	var task model.OutreachTask
	err := s.db.GetContext(ctx, &task, s.db.Rebind(query), organizationID, candidateID, taskType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select follow-up: %w", err)
	}
	return &task, nil
}

// HasReply reports whether any task of the candidate has been replied to.
func (s *Store) HasReply(ctx context.Context, organizationID, candidateID string) (bool, error) {
	query := `SELECT COUNT(*) FROM outreach_tasks WHERE organization_id = ? AND candidate_id = ? AND status = ?`

	var count int
	if err := s.db.GetContext(ctx, &count, s.db.Rebind(query), organizationID, candidateID, model.TaskStatusReplied); err != nil {
		return false, fmt.Errorf("count replies: %w", err)
	}
	return count > 0, nil
}

// InsertTasks inserts the tasks in one transaction. Rows rejected by a unique index
// are returned as conflicts instead of failing the batch.
func (s *Store) InsertTasks(ctx context.Context, tasks []model.OutreachTask) (inserted, conflicts []model.OutreachTask, err error) {
	if len(tasks) == 0 {
		return nil, nil, nil
	}

	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		inserted, conflicts = nil, nil
		for _, task := range tasks {
			ok, err := insertTask(ctx, tx, task)
			if err != nil {
				return err
			}
			if ok {
				inserted = append(inserted, task)
			} else {
				conflicts = append(conflicts, task)
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return inserted, conflicts, nil
}

// CreateTask inserts a single task. It fails when the task conflicts with an existing one.
func (s *Store) CreateTask(ctx context.Context, task model.OutreachTask) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		ok, err := insertTask(ctx, tx, task)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("task %s conflicts with an existing task", task.ID)
		}
		return nil
	})
}

func insertTask(ctx context.Context, tx *sqlx.Tx, task model.OutreachTask) (bool, error) {
	created := utc(task.CreatedAt)
	updated := task.UpdatedAt
	if updated.IsZero() {
		updated = created
	}
	var sentAt *time.Time
	if task.SentAt != nil {
		t := task.SentAt.UTC()
		sentAt = &t
	}
	if task.Metadata == nil {
		task.Metadata = model.JSONMap{}
	}

	res, err := tx.ExecContext(ctx, tx.Rebind(taskInsertQuery),
		task.ID, task.OrganizationID, task.CampaignID, task.CandidateID, task.TaskType, task.Channel,
		task.Status, task.Stage, task.AttemptNumber, task.Subject, task.Content, task.Metadata,
		sentAt, created, updated.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("insert outreach task: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// UpdateTaskStatus sets the status of a task and stamps sent_at when it moves to sent.
func (s *Store) UpdateTaskStatus(ctx context.Context, organizationID, taskID, status string, at time.Time) error {
	at = utc(at)
	query := `UPDATE outreach_tasks SET status = ?, updated_at = ? WHERE id = ? AND organization_id = ?`
	args := []any{status, at, taskID, organizationID}
	if status == model.TaskStatusSent {
		query = `UPDATE outreach_tasks SET status = ?, sent_at = ?, updated_at = ? WHERE id = ? AND organization_id = ?`
		args = []any{status, at, at, taskID, organizationID}
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	return requireRows(res, fmt.Errorf("task %s: %w", taskID, ErrNotFound))
}

// ListOrganizationsWithSentTasks returns the organizations the periodic scheduler visits.
func (s *Store) ListOrganizationsWithSentTasks(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT organization_id FROM outreach_tasks
		WHERE status = ? AND sent_at IS NOT NULL ORDER BY organization_id`

	ids := []string{}
	if err := s.db.SelectContext(ctx, &ids, s.db.Rebind(query), model.TaskStatusSent); err != nil {
		return nil, fmt.Errorf("select organizations: %w", err)
	}
	return ids, nil
}

// LatestSchedulerRun returns the newest scheduler run marker or nil when there is none.
func (s *Store) LatestSchedulerRun(ctx context.Context, organizationID string) (*model.SchedulerRun, error) {
	query := `SELECT id, organization_id, event_type, metadata, created_at FROM system_logs
		WHERE organization_id = ? AND event_type = ? ORDER BY created_at DESC LIMIT 1`

	var run model.SchedulerRun
	err := s.db.GetContext(ctx, &run, s.db.Rebind(query), organizationID, model.EventSchedulerRun)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select latest scheduler run: %w", err)
	}
	return &run, nil
}

func (s *Store) AppendSchedulerRun(ctx context.Context, run model.SchedulerRun) error {
	if run.EventType == "" {
		run.EventType = model.EventSchedulerRun
	}
	if run.Metadata == nil {
		run.Metadata = model.JSONMap{}
	}

	query := `INSERT INTO system_logs (id, organization_id, event_type, metadata, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(query),
		run.ID, run.OrganizationID, run.EventType, run.Metadata, utc(run.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert scheduler run: %w", err)
	}
	return nil
}

// FirstUserID returns the oldest user of the organization, or "" when it has none.
func (s *Store) FirstUserID(ctx context.Context, organizationID string) (string, error) {
	query := `SELECT id FROM users WHERE organization_id = ? ORDER BY created_at, id LIMIT 1`

	var id string
	err := s.db.GetContext(ctx, &id, s.db.Rebind(query), organizationID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("select user: %w", err)
	}
	return id, nil
}
