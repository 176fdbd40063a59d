package mongo

import (
	"context"
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

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
		UpdatedAt: now(),
	}
	_, err := s.db.Collection(colArticles).ReplaceOne(ctx,
		bson.M{"_id": m.JobID}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: save article: %w", err)
	}
	return nil
}

// GetArticle retrieves the article for a job.
func (s *Store) GetArticle(ctx context.Context, jobID id.JobID) (*article.Article, error) {
	var m articleModel
	err := s.db.Collection(colArticles).
		FindOne(ctx, bson.M{"_id": jobID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, draftgate.ErrArticleNotFound
		}
		return nil, fmt.Errorf("draftgate/mongo: get article: %w", err)
	}
	return article.Parse(m.HTML)
}

// SaveReport persists the quality report for a job.
func (s *Store) SaveReport(ctx context.Context, r *qc.Report) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: marshal report: %w", err)
	}
	m := &reportModel{
		JobID:     r.JobID.String(),
		Report:    data,
		UpdatedAt: now(),
	}
	_, err = s.db.Collection(colReports).ReplaceOne(ctx,
		bson.M{"_id": m.JobID}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: save report: %w", err)
	}
	return nil
}

// GetReport retrieves the quality report for a job.
func (s *Store) GetReport(ctx context.Context, jobID id.JobID) (*qc.Report, error) {
	var m reportModel
	err := s.db.Collection(colReports).
		FindOne(ctx, bson.M{"_id": jobID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, draftgate.ErrReportNotFound
		}
		return nil, fmt.Errorf("draftgate/mongo: get report: %w", err)
	}

	var r qc.Report
	if err := json.Unmarshal(m.Report, &r); err != nil {
		return nil, fmt.Errorf("draftgate/mongo: unmarshal report: %w", err)
	}
	return &r, nil
}

// SaveRunLog persists the execution log snapshot for a job.
func (s *Store) SaveRunLog(ctx context.Context, snap *runlog.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: marshal run log: %w", err)
	}
	m := &runlogModel{
		JobID:     snap.JobID.String(),
		Snapshot:  data,
		UpdatedAt: now(),
	}
	_, err = s.db.Collection(colRunLogs).ReplaceOne(ctx,
		bson.M{"_id": m.JobID}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: save run log: %w", err)
	}
	return nil
}

// GetRunLog retrieves the execution log snapshot for a job.
func (s *Store) GetRunLog(ctx context.Context, jobID id.JobID) (*runlog.Snapshot, error) {
	var m runlogModel
	err := s.db.Collection(colRunLogs).
		FindOne(ctx, bson.M{"_id": jobID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, draftgate.ErrRunLogNotFound
		}
		return nil, fmt.Errorf("draftgate/mongo: get run log: %w", err)
	}

	var snap runlog.Snapshot
	if err := json.Unmarshal(m.Snapshot, &snap); err != nil {
		return nil, fmt.Errorf("draftgate/mongo: unmarshal run log: %w", err)
	}
	return &snap, nil
}
