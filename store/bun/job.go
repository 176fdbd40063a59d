package bunstore

import (
	"context"
	"fmt"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/job"
)

// SaveJob persists a job, inserting or overwriting by ID.
func (s *Store) SaveJob(ctx context.Context, j *job.Job) error {
	m, err := toJobModel(j)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (id) DO UPDATE").
		Set("state = EXCLUDED.state").
		Set("rescue_count = EXCLUDED.rescue_count").
		Set("history = EXCLUDED.history").
		Set("fingerprints = EXCLUDED.fingerprints").
		Set("completed_at = EXCLUDED.completed_at").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	m := new(jobModel)
	err := s.db.NewSelect().Model(m).
		Where("id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrJobNotFound
		}
		return nil, fmt.Errorf("draftgate/bun: get job: %w", err)
	}
	return fromJobModel(m)
}

// ListJobsByState returns jobs matching the given state, newest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	var models []jobModel
	q := s.db.NewSelect().Model(&models).
		Where("state = ?", string(state)).
		Order("created_at DESC")

	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("draftgate/bun: list jobs by state: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/bun: list convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
