package service

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	domainjob "github.com/target/creative-dispatch/internal/domain/job"
	"github.com/target/creative-dispatch/internal/domain/model"
)

// HandlerRegistry maps job types to the handlers that execute them.
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[model.JobType]domainjob.Handler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[model.JobType]domainjob.Handler)}
}

// Register adds h for jobType. Registering a type twice is an error.
func (r *HandlerRegistry) Register(jobType model.JobType, h domainjob.Handler) error {
	if !jobType.Valid() {
		return fmt.Errorf("invalid job type %q", jobType)
	}
	if h == nil {
		return errors.New("handler is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[jobType]; ok {
		return fmt.Errorf("handler for job type %q already registered", jobType)
	}
	r.handlers[jobType] = h
	return nil
}

// MustRegister is Register for startup wiring.
func (r *HandlerRegistry) MustRegister(jobType model.JobType, h domainjob.Handler) {
	if err := r.Register(jobType, h); err != nil {
		//nolint:forbidigo // handler registration happens once during startup
		panic(err)
	}
}

// Get returns the handler registered for jobType.
func (r *HandlerRegistry) Get(jobType model.JobType) (domainjob.Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	return h, ok
}

// Types lists the registered job types in sorted order.
func (r *HandlerRegistry) Types() []model.JobType {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.JobType, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}
