package draftgate

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("draftgate: no store configured")
	ErrStoreClosed     = errors.New("draftgate: store closed")
	ErrMigrationFailed = errors.New("draftgate: migration failed")

	// Not found errors.
	ErrRequestNotFound  = errors.New("draftgate: request not found")
	ErrJobNotFound      = errors.New("draftgate: job not found")
	ErrArticleNotFound  = errors.New("draftgate: article not found")
	ErrReportNotFound   = errors.New("draftgate: qc report not found")
	ErrRunLogNotFound   = errors.New("draftgate: run log not found")
	ErrScheduleNotFound = errors.New("draftgate: schedule entry not found")

	// Conflict errors.
	ErrRequestAlreadyExists = errors.New("draftgate: request already exists")
	ErrDuplicateSchedule    = errors.New("draftgate: duplicate schedule entry")

	// State machine errors. These are orchestration-terminal: the engine
	// converts them into an aborted outcome, never a retry.
	ErrInvalidTransition = errors.New("draftgate: invalid state transition")
	ErrRescueLimit       = errors.New("draftgate: rescue limit exceeded")
	ErrLoopDetected      = errors.New("draftgate: content loop detected")

	// Brief errors.
	ErrBriefInvalid = errors.New("draftgate: invalid brief")
)
