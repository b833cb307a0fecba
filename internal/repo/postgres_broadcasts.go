package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/LeventeLantos/health-assistant/internal/model"
)

const jobColumns = `id, kind, priority, body, filter, status, targeted, succeeded, failed,
	failed_recipients, created_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*model.BroadcastJob, error) {
	var j model.BroadcastJob
	var kind, priority, status string
	var filter, failed []byte
	var completedAt sql.NullTime

	if err := row.Scan(
		&j.ID,
		&kind,
		&priority,
		&j.Body,
		&filter,
		&status,
		&j.Targeted,
		&j.Succeeded,
		&j.Failed,
		&failed,
		&j.CreatedAt,
		&completedAt,
	); err != nil {
		return nil, err
	}

	j.Kind = model.AlertKind(kind)
	j.Priority = model.Priority(priority)
	j.Status = model.JobStatus(status)
	if err := json.Unmarshal(filter, &j.Filter); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(failed, &j.FailedRecipients); err != nil {
		return nil, err
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return &j, nil
}

func (r *PostgresStore) SaveJob(ctx context.Context, job *model.BroadcastJob) error {
	filter, err := json.Marshal(job.Filter)
	if err != nil {
		return err
	}
	failed, err := json.Marshal(nonNilFailures(job.FailedRecipients))
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO broadcast_jobs (id, kind, priority, body, filter, status,
			targeted, succeeded, failed, failed_recipients, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, job.ID, string(job.Kind), string(job.Priority), job.Body, filter, string(job.Status),
		job.Targeted, job.Succeeded, job.Failed, failed, job.CreatedAt, job.CompletedAt)
	return err
}

func (r *PostgresStore) FinalizeJob(ctx context.Context, job *model.BroadcastJob) error {
	failed, err := json.Marshal(nonNilFailures(job.FailedRecipients))
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE broadcast_jobs
		SET status = $2,
		    targeted = $3,
		    succeeded = $4,
		    failed = $5,
		    failed_recipients = $6,
		    completed_at = $7
		WHERE id = $1 AND completed_at IS NULL
	`, job.ID, string(job.Status), job.Targeted, job.Succeeded, job.Failed, failed, job.CompletedAt)
	if err != nil {
		return err
	}

	if err := expectRow(res); errors.Is(err, ErrNotFound) {
		if _, lookupErr := r.JobByID(ctx, job.ID); lookupErr != nil {
			return lookupErr
		}
		return ErrAlreadyFinalized
	} else if err != nil {
		return err
	}
	return nil
}

func (r *PostgresStore) JobByID(ctx context.Context, id string) (*model.BroadcastJob, error) {
	j, err := scanJob(r.db.QueryRowContext(ctx, `
		SELECT `+jobColumns+`
		FROM broadcast_jobs
		WHERE id = $1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

func (r *PostgresStore) ListJobs(ctx context.Context, limit int) ([]model.BroadcastJob, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM broadcast_jobs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BroadcastJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func nonNilFailures(f []model.FailedRecipient) []model.FailedRecipient {
	if f == nil {
		return []model.FailedRecipient{}
	}
	return f
}
