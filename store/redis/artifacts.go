package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/runlog"
)

// SaveArticle persists the article for a job as a plain string value.
func (s *Store) SaveArticle(ctx context.Context, jobID id.JobID, a *article.Article) error {
	if err := s.client.Set(ctx, articleKey(jobID.String()), a.HTML, 0).Err(); err != nil {
		return fmt.Errorf("draftgate/redis: save article: %w", err)
	}
	return nil
}

// GetArticle retrieves the article for a job.
func (s *Store) GetArticle(ctx context.Context, jobID id.JobID) (*article.Article, error) {
	html, err := s.client.Get(ctx, articleKey(jobID.String())).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, draftgate.ErrArticleNotFound
		}
		return nil, fmt.Errorf("draftgate/redis: get article: %w", err)
	}
	return article.Parse(html)
}

// SaveReport persists the quality report for a job as JSON.
func (s *Store) SaveReport(ctx context.Context, r *qc.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("draftgate/redis: marshal report: %w", err)
	}
	if err := s.client.Set(ctx, reportKey(r.JobID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("draftgate/redis: save report: %w", err)
	}
	return nil
}

// GetReport retrieves the quality report for a job.
func (s *Store) GetReport(ctx context.Context, jobID id.JobID) (*qc.Report, error) {
	data, err := s.client.Get(ctx, reportKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, draftgate.ErrReportNotFound
		}
		return nil, fmt.Errorf("draftgate/redis: get report: %w", err)
	}

	var r qc.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("draftgate/redis: unmarshal report: %w", err)
	}
	return &r, nil
}

// SaveRunLog persists the execution log snapshot for a job as JSON.
func (s *Store) SaveRunLog(ctx context.Context, snap *runlog.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("draftgate/redis: marshal run log: %w", err)
	}
	if err := s.client.Set(ctx, runlogKey(snap.JobID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("draftgate/redis: save run log: %w", err)
	}
	return nil
}

// GetRunLog retrieves the execution log snapshot for a job.
func (s *Store) GetRunLog(ctx context.Context, jobID id.JobID) (*runlog.Snapshot, error) {
	data, err := s.client.Get(ctx, runlogKey(jobID.String())).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, draftgate.ErrRunLogNotFound
		}
		return nil, fmt.Errorf("draftgate/redis: get run log: %w", err)
	}

	var snap runlog.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("draftgate/redis: unmarshal run log: %w", err)
	}
	return &snap, nil
}
