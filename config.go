package draftgate

import "time"

// Config holds configuration for the Pipeline.
type Config struct {
	// Concurrency is the maximum number of requests processed concurrently.
	// Each request is driven by exactly one worker; jobs never share state.
	Concurrency int

	// Queues is the list of queues the pipeline will poll.
	Queues []string

	// PollInterval is how often idle workers poll for due requests.
	PollInterval time.Duration

	// RunTimeout bounds a single end-to-end request run, covering the
	// generator and research collaborators. Zero disables the bound.
	RunTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     4,
		Queues:          []string{"default"},
		PollInterval:    1 * time.Second,
		RunTimeout:      5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}
