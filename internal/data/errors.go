package data

import (
	"errors"

	"github.com/target/creative-dispatch/internal/domain/model"
)

// Shared sentinel errors for data-layer repositories.
var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = model.ErrJobNotFound
	// ErrJobIDRequired is returned when an operation is called without a job id.
	ErrJobIDRequired = errors.New("job_id is required")
	// ErrStateKeyRequired is returned when a system state key is blank.
	ErrStateKeyRequired = errors.New("system state key is required")
)
