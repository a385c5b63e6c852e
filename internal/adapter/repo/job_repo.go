package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"vidluxe/internal/domain"
	"vidluxe/internal/infra"
	"vidluxe/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobStore with one row per job.
type JobRepositoryPG struct {
	db *infra.SQLRunner
}

func NewJobRepository(db *infra.SQLRunner) *JobRepositoryPG {
	return &JobRepositoryPG{db: db}
}

func (r *JobRepositoryPG) LoadJobs(ctx context.Context) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QSelectJobs)
	if err != nil {
		return nil, fmt.Errorf("repo: select jobs: %w", err)
	}
	defer rows.Close()

	var out []domain.Job
	for rows.Next() {
		var (
			job       domain.Job
			status    string
			input     []byte
			result    []byte
			startedAt *time.Time
		)
		if err := rows.Scan(
			&job.ID,
			&status,
			&job.Progress,
			&job.StageLabel,
			&input,
			&result,
			&job.Error,
			&job.CreatedAt,
			&job.UpdatedAt,
			&startedAt,
		); err != nil {
			return nil, fmt.Errorf("repo: scan job: %w", err)
		}
		job.Status = domain.JobStatus(status)
		job.StartedAt = startedAt
		if err := json.Unmarshal(input, &job.Input); err != nil {
			return nil, fmt.Errorf("repo: decode input for %s: %w", job.ID, err)
		}
		if len(result) > 0 {
			job.Result = &domain.JobResult{}
			if err := json.Unmarshal(result, job.Result); err != nil {
				return nil, fmt.Errorf("repo: decode result for %s: %w", job.ID, err)
			}
		}
		out = append(out, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo: iterate jobs: %w", err)
	}
	return out, nil
}

// SaveJobs replaces the table: rows not in jobs are removed and the rest
// upserted, all in one transaction.
func (r *JobRepositoryPG) SaveJobs(ctx context.Context, jobs []domain.Job) error {
	ids := make([]string, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	return r.db.InTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QDeleteJobsExcept, ids); err != nil {
			return fmt.Errorf("repo: prune jobs: %w", err)
		}
		for _, job := range jobs {
			if err := upsertJob(ctx, tx, job); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *JobRepositoryPG) PutJob(ctx context.Context, job domain.Job) error {
	return upsertJob(ctx, r.db, job)
}

func (r *JobRepositoryPG) DeleteJob(ctx context.Context, id string) error {
	if _, err := r.db.Exec(ctx, sqlinline.QDeleteJob, id); err != nil {
		return fmt.Errorf("repo: delete job %s: %w", id, err)
	}
	return nil
}

func upsertJob(ctx context.Context, db infra.SQLExecutor, job domain.Job) error {
	input, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("repo: encode input for %s: %w", job.ID, err)
	}
	var result []byte
	if job.Result != nil {
		if result, err = json.Marshal(job.Result); err != nil {
			return fmt.Errorf("repo: encode result for %s: %w", job.ID, err)
		}
	}
	if _, err := db.Exec(ctx, sqlinline.QUpsertJob,
		job.ID,
		job.Input.UserID,
		string(job.Status),
		job.Progress,
		job.StageLabel,
		input,
		result,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
		job.StartedAt,
	); err != nil {
		return fmt.Errorf("repo: upsert job %s: %w", job.ID, err)
	}
	return nil
}
