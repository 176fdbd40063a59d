package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/runlog"
	"github.com/draftgate/draftgate/schedule"
)

// Collection name constants.
const (
	colRequests  = "draftgate_requests"
	colJobs      = "draftgate_jobs"
	colArticles  = "draftgate_articles"
	colReports   = "draftgate_reports"
	colRunLogs   = "draftgate_runlogs"
	colSchedules = "draftgate_schedules"
)

// Ensure Store implements all subsystem interfaces at compile time.
var (
	_ request.Store  = (*Store)(nil)
	_ job.Store      = (*Store)(nil)
	_ article.Store  = (*Store)(nil)
	_ qc.Store       = (*Store)(nil)
	_ runlog.Store   = (*Store)(nil)
	_ schedule.Store = (*Store)(nil)
)

// Store is a MongoDB implementation of store.Store. The caller owns the
// client lifecycle; Store never disconnects it.
type Store struct {
	db     *mongod.Database
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a new MongoDB store on the given database. The caller owns the
// client lifecycle — the Store will not disconnect it on Close().
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Database returns the underlying *mongo.Database for advanced usage.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Migrate creates indexes for all draftgate collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}

		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("draftgate/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close is a no-op because the caller owns the client lifecycle.
func (s *Store) Close() error {
	return nil
}

// ── helpers ──────────────────────────────────────────────────────

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// isDuplicateKey checks if a MongoDB error is a duplicate key violation.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	return mongod.IsDuplicateKeyError(err) || strings.Contains(err.Error(), "E11000")
}

// migrationIndexes returns the index definitions for all draftgate
// collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRequests: {
			// Dequeue index: queue + state + priority + run_at.
			{Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "state", Value: 1},
				{Key: "priority", Value: -1},
				{Key: "run_at", Value: 1},
			}},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colJobs: {
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "request_id", Value: 1}}},
		},
		colSchedules: {
			// Unique name index.
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			// Next run index for enabled entries.
			{Keys: bson.D{
				{Key: "enabled", Value: 1},
				{Key: "next_run_at", Value: 1},
			}},
		},
	}
}
