package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/runlog"
)

// SaveArticle persists the article produced by a job, overwriting any
// previous version (the rescue pass saves twice).
func (s *Store) SaveArticle(ctx context.Context, jobID id.JobID, a *article.Article) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO draftgate_articles (job_id, html, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_id) DO UPDATE SET html = EXCLUDED.html, updated_at = NOW()`,
		jobID.String(), a.HTML,
	)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: save article: %w", err)
	}
	return nil
}

// GetArticle retrieves the article for a job.
func (s *Store) GetArticle(ctx context.Context, jobID id.JobID) (*article.Article, error) {
	var html string
	err := s.pool.QueryRow(ctx,
		`SELECT html FROM draftgate_articles WHERE job_id = $1`,
		jobID.String(),
	).Scan(&html)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrArticleNotFound
		}
		return nil, fmt.Errorf("draftgate/postgres: get article: %w", err)
	}
	return article.Parse(html)
}

// SaveReport persists the quality report for a job.
func (s *Store) SaveReport(ctx context.Context, r *qc.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal report: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO draftgate_reports (job_id, report, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_id) DO UPDATE SET report = EXCLUDED.report, updated_at = NOW()`,
		r.JobID.String(), data,
	)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: save report: %w", err)
	}
	return nil
}

// GetReport retrieves the quality report for a job.
func (s *Store) GetReport(ctx context.Context, jobID id.JobID) (*qc.Report, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT report FROM draftgate_reports WHERE job_id = $1`,
		jobID.String(),
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrReportNotFound
		}
		return nil, fmt.Errorf("draftgate/postgres: get report: %w", err)
	}

	var r qc.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: unmarshal report: %w", err)
	}
	return &r, nil
}

// SaveRunLog persists the execution log snapshot for a job.
func (s *Store) SaveRunLog(ctx context.Context, snap *runlog.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: marshal run log: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO draftgate_runlogs (job_id, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (job_id) DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = NOW()`,
		snap.JobID.String(), data,
	)
	if err != nil {
		return fmt.Errorf("draftgate/postgres: save run log: %w", err)
	}
	return nil
}

// GetRunLog retrieves the execution log snapshot for a job.
func (s *Store) GetRunLog(ctx context.Context, jobID id.JobID) (*runlog.Snapshot, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT snapshot FROM draftgate_runlogs WHERE job_id = $1`,
		jobID.String(),
	).Scan(&data)
	if err != nil {
		if isNoRows(err) {
			return nil, draftgate.ErrRunLogNotFound
		}
		return nil, fmt.Errorf("draftgate/postgres: get run log: %w", err)
	}

	var snap runlog.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("draftgate/postgres: unmarshal run log: %w", err)
	}
	return &snap, nil
}
