package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when registering work on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrAlreadyRunning is returned by a second Start
	ErrAlreadyRunning = errors.New("scheduler already running")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
