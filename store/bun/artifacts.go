package bunstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/runlog"
)

// SaveArticle persists the article produced by a job, overwriting any
// previous version (the rescue pass saves twice).
func (s *Store) SaveArticle(ctx context.Context, jobID id.JobID, a *article.Article) error {
	m := &articleModel{
		JobID:     jobID.String(),
		HTML:      a.HTML,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.NewInsert().Model(m).
		On("CONFLICT (job_id) DO UPDATE").
		Set("html = EXCLUDED.html").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: save article: %w", err)
	}
	return nil
}

// GetArticle retrieves the article for a job.
func (s *Store) GetArticle(ctx context.Context, jobID id.JobID) (*article.Article, error) {
	m := new(articleModel)
	err := s.db.NewSelect().Model(m).
		Where("job_id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrArticleNotFound
		}
		return nil, fmt.Errorf("draftgate/bun: get article: %w", err)
	}
	return article.Parse(m.HTML)
}

// SaveReport persists the quality report for a job.
func (s *Store) SaveReport(ctx context.Context, r *qc.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("draftgate/bun: marshal report: %w", err)
	}
	m := &reportModel{
		JobID:     r.JobID.String(),
		Report:    data,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (job_id) DO UPDATE").
		Set("report = EXCLUDED.report").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: save report: %w", err)
	}
	return nil
}

// GetReport retrieves the quality report for a job.
func (s *Store) GetReport(ctx context.Context, jobID id.JobID) (*qc.Report, error) {
	m := new(reportModel)
	err := s.db.NewSelect().Model(m).
		Where("job_id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrReportNotFound
		}
		return nil, fmt.Errorf("draftgate/bun: get report: %w", err)
	}

	var r qc.Report
	if err := json.Unmarshal(m.Report, &r); err != nil {
		return nil, fmt.Errorf("draftgate/bun: unmarshal report: %w", err)
	}
	return &r, nil
}

// SaveRunLog persists the execution log snapshot for a job.
func (s *Store) SaveRunLog(ctx context.Context, snap *runlog.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("draftgate/bun: marshal run log: %w", err)
	}
	m := &runlogModel{
		JobID:     snap.JobID.String(),
		Snapshot:  data,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.NewInsert().Model(m).
		On("CONFLICT (job_id) DO UPDATE").
		Set("snapshot = EXCLUDED.snapshot").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("draftgate/bun: save run log: %w", err)
	}
	return nil
}

// GetRunLog retrieves the execution log snapshot for a job.
func (s *Store) GetRunLog(ctx context.Context, jobID id.JobID) (*runlog.Snapshot, error) {
	m := new(runlogModel)
	err := s.db.NewSelect().Model(m).
		Where("job_id = ?", jobID.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrRunLogNotFound
		}
		return nil, fmt.Errorf("draftgate/bun: get run log: %w", err)
	}

	var snap runlog.Snapshot
	if err := json.Unmarshal(m.Snapshot, &snap); err != nil {
		return nil, fmt.Errorf("draftgate/bun: unmarshal run log: %w", err)
	}
	return &snap, nil
}
