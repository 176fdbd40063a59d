package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

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
	_, err = s.db.Collection(colJobs).ReplaceOne(ctx,
		bson.M{"_id": m.ID}, m,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: save job: %w", err)
	}
	return nil
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	var m jobModel
	err := s.db.Collection(colJobs).
		FindOne(ctx, bson.M{"_id": jobID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, draftgate.ErrJobNotFound
		}
		return nil, fmt.Errorf("draftgate/mongo: get job: %w", err)
	}
	return fromJobModel(&m)
}

// ListJobsByState returns jobs matching the given state, newest first.
func (s *Store) ListJobsByState(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colJobs).
		Find(ctx, bson.M{"state": string(state)}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: list jobs by state: %w", err)
	}
	defer cursor.Close(ctx)

	var models []jobModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("draftgate/mongo: list jobs decode: %w", err)
	}

	jobs := make([]*job.Job, 0, len(models))
	for i := range models {
		j, convErr := fromJobModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/mongo: list jobs convert: %w", convErr)
		}
		jobs = append(jobs, j)
	}
	return jobs, nil
}
