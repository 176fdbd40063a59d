package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/draftgate/draftgate"
	"github.com/draftgate/draftgate/id"
	"github.com/draftgate/draftgate/schedule"
)

// RegisterSchedule persists a new recurring entry. Entry names are unique.
func (s *Store) RegisterSchedule(ctx context.Context, e *schedule.Entry) error {
	m, err := toScheduleModel(e)
	if err != nil {
		return err
	}
	_, err = s.db.Collection(colSchedules).InsertOne(ctx, m)
	if err != nil {
		if isDuplicateKey(err) {
			return draftgate.ErrDuplicateSchedule
		}
		return fmt.Errorf("draftgate/mongo: register schedule: %w", err)
	}
	return nil
}

// GetSchedule retrieves an entry by ID.
func (s *Store) GetSchedule(ctx context.Context, entryID id.ScheduleID) (*schedule.Entry, error) {
	var m scheduleModel
	err := s.db.Collection(colSchedules).
		FindOne(ctx, bson.M{"_id": entryID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, draftgate.ErrScheduleNotFound
		}
		return nil, fmt.Errorf("draftgate/mongo: get schedule: %w", err)
	}
	return fromScheduleModel(&m)
}

// ListSchedules returns all entries ordered by name.
func (s *Store) ListSchedules(ctx context.Context) ([]*schedule.Entry, error) {
	findOpts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}})
	cursor, err := s.db.Collection(colSchedules).Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, fmt.Errorf("draftgate/mongo: list schedules: %w", err)
	}
	defer cursor.Close(ctx)

	var models []scheduleModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("draftgate/mongo: list schedules decode: %w", err)
	}

	entries := make([]*schedule.Entry, 0, len(models))
	for i := range models {
		e, convErr := fromScheduleModel(&models[i])
		if convErr != nil {
			return nil, fmt.Errorf("draftgate/mongo: list schedules convert: %w", convErr)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// UpdateSchedule persists changes to an existing entry.
func (s *Store) UpdateSchedule(ctx context.Context, e *schedule.Entry) error {
	m, err := toScheduleModel(e)
	if err != nil {
		return err
	}
	m.UpdatedAt = now()
	res, err := s.db.Collection(colSchedules).ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("draftgate/mongo: update schedule: %w", err)
	}
	if res.MatchedCount == 0 {
		return draftgate.ErrScheduleNotFound
	}
	return nil
}

// DeleteSchedule removes an entry by ID.
func (s *Store) DeleteSchedule(ctx context.Context, entryID id.ScheduleID) error {
	res, err := s.db.Collection(colSchedules).
		DeleteOne(ctx, bson.M{"_id": entryID.String()})
	if err != nil {
		return fmt.Errorf("draftgate/mongo: delete schedule: %w", err)
	}
	if res.DeletedCount == 0 {
		return draftgate.ErrScheduleNotFound
	}
	return nil
}
