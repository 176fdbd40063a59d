package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/request"
)

// EnqueueRequest persists a new request in pending state.
func (s *Store) EnqueueRequest(ctx context.Context, r *request.Request) error {
	m, err := toRequestModel(r)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colRequests).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return draftgate.ErrRequestAlreadyExists
		}
		return fmt.Errorf("draftgate/mongo: enqueue request: %w", err)
	}
	return nil
}

// DequeueRequests atomically claims up to limit due pending requests from
// the given queues. Uses FindOneAndUpdate for atomic claim to prevent
// double-delivery.
func (s *Store) DequeueRequests(ctx context.Context, queues []string, workerID id.WorkerID, limit int) ([]*request.Request, error) {
	t := now()
	col := s.db.Collection(colRequests)
	requests := make([]*request.Request, 0, limit)

	for i := 0; i < limit; i++ {
		filter := bson.M{
			"state":  string(request.StatePending),
			"queue":  bson.M{"$in": queues},
			"run_at": bson.M{"$lte": t},
		}

		update := bson.M{
			"$set": bson.M{
				"state":      string(request.StateRunning),
				"worker_id":  workerID.String(),
				"started_at": t,
				"updated_at": t,
			},
		}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{
				{Key: "priority", Value: -1},
				{Key: "run_at", Value: 1},
			})

		var m requestModel
		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}
			return nil, fmt.Errorf("draftgate/mongo: dequeue requests: %w", err)
		}

		r, convErr := fromRequestModel(&m)
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/mongo: dequeue convert: %w", convErr)
		}
		requests = append(requests, r)
	}

	return requests, nil
}

// GetRequest retrieves a request by ID.
func (s *Store) GetRequest(ctx context.Context, requestID id.RequestID) (*request.Request, error) {
	var m requestModel
	err := s.db.Collection(colRequests).
		FindOne(ctx, bson.M{"_id": requestID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, draftgate.ErrRequestNotFound
		}
		return nil, fmt.Errorf("draftgate/mongo: get request: %w", err)
	}
	return fromRequestModel(&m)
}

// UpdateRequest persists changes to an existing request.
func (s *Store) UpdateRequest(ctx context.Context, r *request.Request) error {
	m, err := toRequestModel(r)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	res, err := s.db.Collection(colRequests).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: update request: %w", err)
	}
	if res.MatchedCount == 0 {
		return draftgate.ErrRequestNotFound
	}
	return nil
}

// DeleteRequest removes a request by ID.
func (s *Store) DeleteRequest(ctx context.Context, requestID id.RequestID) error {
	res, err := s.db.Collection(colRequests).
		DeleteOne(ctx, bson.M{"_id": requestID.String()})
	if err != nil {
		return fmt.Errorf("draftgate/mongo: delete request: %w", err)
	}
	if res.DeletedCount == 0 {
		return draftgate.ErrRequestNotFound
	}
	return nil
}

// ListRequestsByState returns requests matching the given state, newest
// first.
func (s *Store) ListRequestsByState(ctx context.Context, state request.State, opts request.ListOpts) ([]*request.Request, error) {
	filter := bson.M{"state": string(state)}
	if opts.Queue != "" {
		filter["queue"] = opts.Queue
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		findOpts.SetSkip(int64(opts.Offset))
	}

	cursor, err := s.db.Collection(colRequests).Find(ctx, filter, findOpts)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: list requests by state: %w", err)
	}
	defer cursor.Close(ctx)

	var models []requestModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("draftgate/mongo: list requests decode: %w", err)
	}

	requests := make([]*request.Request, 0, len(models))
	for i := range models {
		r, convErr := fromRequestModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/mongo: list requests convert: %w", convErr)
		}
		requests = append(requests, r)
	}
	return requests, nil
}

// CountRequests returns the number of requests matching the options.
func (s *Store) CountRequests(ctx context.Context, opts request.CountOpts) (int64, error) {
	filter := bson.M{}
	if opts.Queue != "" {
		filter["queue"] = opts.Queue
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}

	count, err := s.db.Collection(colRequests).CountDocuments(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("draftgate/mongo: count requests: %w", err)
	}
	return count, nil
}
