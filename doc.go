// Package draftgate provides a deterministic, quality-gated content
// pipeline for Go. It turns one content-generation request into a terminal
// outcome — delivered, blocked for human review, or aborted — through a
// bounded state machine, an eight-criterion quality gate, and a single-shot
// automatic remediation pass.
//
// Draftgate is designed as a library, not a service. Import it, configure a
// store and a content generator, and run requests through the engine.
//
// # Quick Start
//
//	p, err := draftgate.New(
//	    draftgate.WithStore(memStore),
//	    draftgate.WithConcurrency(4),
//	)
//
// # Architecture
//
// Draftgate follows a composable store pattern where each subsystem
// (request, job, article, qc, runlog, schedule) defines its own store
// interface. A single backend implements all of them.
//
// The execution core is pure: the job state machine and the quality gate
// perform no I/O and never suspend. All slow collaborators — the generator,
// the research providers, the store — are awaited only at the engine
// boundary, so every job run is single-owner and lock-free.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based,
// compile-time safe identifiers.
package draftgate
