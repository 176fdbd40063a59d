// Package store defines the aggregate persistence interface. Each subsystem
// (request, job, article, qc, runlog, schedule) defines its own store
// interface; the composite Store composes them all. Backends: Postgres,
// Bun, Redis, Mongo, and Memory.
package store

import (
	"context"

	"github.com/draftgate/draftgate/article"
	"github.com/draftgate/draftgate/job"
	"github.com/draftgate/draftgate/qc"
	"github.com/draftgate/draftgate/request"
	"github.com/draftgate/draftgate/runlog"
	"github.com/draftgate/draftgate/schedule"
)

// Store is the aggregate persistence interface. Each subsystem store is a
// composable interface; a single backend implements all of them.
type Store interface {
	request.Store
	job.Store
	article.Store
	qc.Store
	runlog.Store
	schedule.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks backend connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
