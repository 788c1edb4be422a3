package dispatch

import "errors"

var (
	// Store errors.
	ErrNoStore         = errors.New("dispatch: no store configured")
	ErrStoreClosed     = errors.New("dispatch: store closed")
	ErrMigrationFailed = errors.New("dispatch: migration failed")

	// Not found errors.
	ErrJobNotFound  = errors.New("dispatch: job not found")
	ErrCronNotFound = errors.New("dispatch: cron definition not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("dispatch: job already exists")
	ErrDuplicateCron    = errors.New("dispatch: duplicate cron definition")
	ErrCronConflict     = errors.New("dispatch: cron definition changed concurrently")

	// State errors.
	ErrInvalidState  = errors.New("dispatch: invalid state transition")
	ErrJobNotPending = errors.New("dispatch: job is not pending")
	ErrClaimLost     = errors.New("dispatch: claim no longer held")

	// Validation errors.
	ErrInvalidSchedule = errors.New("dispatch: invalid cron expression")
	ErrInvalidPriority = errors.New("dispatch: invalid priority")
	ErrEmptyJobType    = errors.New("dispatch: job type is required")
	ErrEmptyCronName   = errors.New("dispatch: cron name is required")

	// Broker errors.
	ErrBrokerClosed = errors.New("dispatch: broker closed")
)
