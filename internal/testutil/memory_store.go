package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/target/creative-dispatch/internal/core"
	"github.com/target/creative-dispatch/internal/domain/model"
)

// MemoryStore is an in-memory JobRepository, JobEventRepository, SystemStateRepository and
// ReaperRepository with the same guarded-transition semantics as the Postgres repositories.
// It lets service tests run whole dispatcher scenarios without a database.
type MemoryStore struct {
	mu     sync.Mutex
	clock  *TestTimeProvider
	jobs   map[string]*model.Job
	events []*model.JobEvent
	state  map[string]*model.SystemState
	nextEv int64
	seq    int

	enqueued chan struct{}

	// ClaimErr, when set, is returned by ClaimNext instead of claiming.
	ClaimErr error
	// AfterClaim runs after a job is claimed and before ClaimNext returns.
	AfterClaim func(j *model.Job)
	// DefaultMaxRetries applies when a request leaves MaxRetries unset.
	DefaultMaxRetries int
}

var (
	_ core.JobRepository         = (*MemoryStore)(nil)
	_ core.JobEventRepository    = (*MemoryStore)(nil)
	_ core.SystemStateRepository = (*MemoryStore)(nil)
	_ core.ReaperRepository      = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty store whose clock starts at start.
func NewMemoryStore(start time.Time) *MemoryStore {
	return &MemoryStore{
		clock:             NewTestTimeProvider(start),
		jobs:              make(map[string]*model.Job),
		state:             make(map[string]*model.SystemState),
		enqueued:          make(chan struct{}, 1),
		DefaultMaxRetries: model.DefaultMaxRetries,
	}
}

// Clock exposes the store's clock so tests can advance time.
func (s *MemoryStore) Clock() *TestTimeProvider { return s.clock }

// Now returns the store clock's current time.
func (s *MemoryStore) Now() time.Time { return s.clock.Now() }

// Create inserts a pending job.
func (s *MemoryStore) Create(_ context.Context, req *model.CreateJobRequest) (*model.Job, error) {
	if req == nil {
		return nil, errors.New("create job request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	payload := json.RawMessage(`{}`)
	if len(req.Payload) > 0 {
		payload = slices.Clone(req.Payload)
	}
	// created_at ties are broken by id, so ids sort in insertion order.
	s.seq++
	id := uuid.NewString()
	j := &model.Job{
		ID:         id,
		Type:       req.Type,
		Status:     model.JobStatusPending,
		Payload:    payload,
		MaxRetries: req.ResolvedMaxRetries(s.DefaultMaxRetries),
		CreatedAt:  now.Add(time.Duration(s.seq) * time.Microsecond),
		UpdatedAt:  now,
	}
	if req.RunAt != nil {
		j.NextRunAt = TimePtr(req.RunAt.UTC())
	}
	s.jobs[id] = j
	s.signalLocked()
	return copyJob(j), nil
}

// Seed stores j as-is, for tests that need a job in a specific state.
func (s *MemoryStore) Seed(j *model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = copyJob(j)
}

// GetByID returns a copy of the job.
func (s *MemoryStore) GetByID(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, model.ErrJobNotFound
	}
	return copyJob(j), nil
}

// GetStatus returns the job's current status.
func (s *MemoryStore) GetStatus(_ context.Context, id string) (model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return "", model.ErrJobNotFound
	}
	return j.Status, nil
}

// List returns jobs newest first.
func (s *MemoryStore) List(_ context.Context, opts model.JobListOptions) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*model.Job
	for _, j := range s.sortedLocked() {
		if opts.Status != nil && j.Status != *opts.Status {
			continue
		}
		if opts.Type != nil && j.Type != *opts.Type {
			continue
		}
		out = append(out, copyJob(j))
	}
	slices.Reverse(out)
	return page(out, opts.Limit, opts.Offset), nil
}

// Stats counts jobs per status.
func (s *MemoryStore) Stats(context.Context) (*model.JobStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := &model.JobStats{}
	for _, j := range s.jobs {
		switch j.Status {
		case model.JobStatusPending:
			st.Pending++
		case model.JobStatusRunning:
			st.Running++
		case model.JobStatusCompleted:
			st.Completed++
		case model.JobStatusFailed:
			st.Failed++
		case model.JobStatusDead:
			st.Dead++
		case model.JobStatusCancelled:
			st.Cancelled++
		}
	}
	return st, nil
}

// ClaimNext moves the oldest due pending job to running.
func (s *MemoryStore) ClaimNext(context.Context) (*model.Job, error) {
	s.mu.Lock()
	if s.ClaimErr != nil {
		err := s.ClaimErr
		s.mu.Unlock()
		return nil, err
	}

	now := s.clock.Now()
	var claimed *model.Job
	for _, j := range s.sortedLocked() {
		if j.Status != model.JobStatusPending {
			continue
		}
		if j.NextRunAt != nil && j.NextRunAt.After(now) {
			continue
		}
		j.Status = model.JobStatusRunning
		j.StartedAt = TimePtr(now)
		j.HeartbeatAt = TimePtr(now)
		j.ClaimToken = optionalString(uuid.NewString())
		j.UpdatedAt = now
		claimed = copyJob(j)
		break
	}
	hook := s.AfterClaim
	s.mu.Unlock()

	if claimed == nil {
		return nil, model.ErrNoJobsAvailable
	}
	if hook != nil {
		hook(copyJob(claimed))
	}
	return claimed, nil
}

// transitionLocked applies mutate when the job is in one of from, then appends the event.
func (s *MemoryStore) transitionLocked(id string, from []model.JobStatus, ev *model.NewJobEvent, mutate func(j *model.Job, now time.Time)) (bool, error) {
	if strings.TrimSpace(id) == "" {
		return false, errors.New("job_id is required")
	}
	j, ok := s.jobs[id]
	if !ok || !slices.Contains(from, j.Status) {
		return false, nil
	}
	now := s.clock.Now()
	if ev != nil {
		e := *ev
		if e.JobID == "" {
			e.JobID = id
		}
		if _, err := s.appendLocked(e, now); err != nil {
			return false, err
		}
	}
	mutate(j, now)
	j.UpdatedAt = now
	return true, nil
}

var onlyRunning = []model.JobStatus{model.JobStatusRunning}

// ownedLocked reports whether id is running under claimToken. An empty token matches an unclaimed row.
func (s *MemoryStore) ownedLocked(id, claimToken string) bool {
	j, ok := s.jobs[id]
	return ok && j.Status == model.JobStatusRunning && j.Token() == claimToken
}

// releaseClaim clears the ownership fields once a job leaves running.
func releaseClaim(j *model.Job) {
	j.ClaimToken = nil
	j.HeartbeatAt = nil
}

func (s *MemoryStore) ownedTransitionLocked(id, claimToken string, ev *model.NewJobEvent, mutate func(j *model.Job, now time.Time)) (bool, error) {
	if strings.TrimSpace(id) != "" && !s.ownedLocked(id, claimToken) {
		return false, nil
	}
	return s.transitionLocked(id, onlyRunning, ev, func(j *model.Job, now time.Time) {
		mutate(j, now)
		releaseClaim(j)
	})
}

// MarkCompleted stores the result on a running job.
func (s *MemoryStore) MarkCompleted(_ context.Context, p core.CompleteJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedTransitionLocked(p.ID, p.ClaimToken, p.Event, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusCompleted
		j.Result = slices.Clone(p.Result)
		if p.Progress != nil {
			j.Progress = *p.Progress
		}
		if p.Total != nil {
			j.Total = *p.Total
		}
		j.FinishedAt = TimePtr(now)
		j.NextRunAt = nil
	})
}

// ScheduleRetry returns a running job to pending.
func (s *MemoryStore) ScheduleRetry(_ context.Context, p core.RetryJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedTransitionLocked(p.ID, p.ClaimToken, p.Event, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusPending
		j.RetryCount++
		j.NextRunAt = TimePtr(p.NextRunAt.UTC())
		j.Error = optionalString(p.Error)
		j.ErrorType = optionalString(p.ErrorType)
		j.LastErrorAt = TimePtr(now)
	})
}

// MoveToDeadLetter parks a running job.
func (s *MemoryStore) MoveToDeadLetter(_ context.Context, p core.DeadLetterParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedTransitionLocked(p.ID, p.ClaimToken, p.Event, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusDead
		j.Error = optionalString(p.Error)
		j.ErrorType = optionalString(p.ErrorType)
		j.DeadLetteredAt = TimePtr(now)
		j.FinishedAt = TimePtr(now)
		j.LastErrorAt = TimePtr(now)
	})
}

// MarkFailed terminates a running job.
func (s *MemoryStore) MarkFailed(_ context.Context, p core.FailJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownedTransitionLocked(p.ID, p.ClaimToken, p.Event, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusFailed
		j.Error = optionalString(p.Error)
		j.ErrorType = optionalString(p.ErrorType)
		j.FinishedAt = TimePtr(now)
		j.LastErrorAt = TimePtr(now)
	})
}

// MarkCancelled stamps finished_at on a cancelled job.
func (s *MemoryStore) MarkCancelled(_ context.Context, id string, ev *model.NewJobEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, []model.JobStatus{model.JobStatusCancelled}, ev, func(j *model.Job, now time.Time) {
		if j.FinishedAt == nil {
			j.FinishedAt = TimePtr(now)
		}
	})
}

// Release returns an interrupted running job to pending without counting a retry.
func (s *MemoryStore) Release(_ context.Context, p core.ReleaseJobParams) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.ownedTransitionLocked(p.ID, p.ClaimToken, p.Event, func(j *model.Job, _ time.Time) {
		j.Status = model.JobStatusPending
		j.NextRunAt = nil
	})
	if ok {
		s.signalLocked()
	}
	return ok, err
}

// Heartbeat refreshes heartbeat_at while claimToken still owns the job.
func (s *MemoryStore) Heartbeat(_ context.Context, id, claimToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ownedLocked(id, claimToken) {
		return false, nil
	}
	s.jobs[id].HeartbeatAt = TimePtr(s.clock.Now())
	return true, nil
}

// UpdateProgress records progress on a job still owned by claimToken.
func (s *MemoryStore) UpdateProgress(_ context.Context, id, claimToken string, progress, total int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownedLocked(id, claimToken) {
		j := s.jobs[id]
		j.Progress = progress
		j.Total = total
		j.UpdatedAt = s.clock.Now()
	}
	return nil
}

// Replay returns a dead or failed job to pending.
func (s *MemoryStore) Replay(_ context.Context, id string, ev *model.NewJobEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok, err := s.transitionLocked(id, []model.JobStatus{model.JobStatusDead, model.JobStatusFailed}, ev, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusPending
		j.ReplayCount++
		j.LastReplayAt = TimePtr(now)
		j.RetryCount = 0
		j.Progress = 0
		j.Total = 0
		j.Result = nil
		j.NextRunAt = nil
		j.StartedAt = nil
		j.FinishedAt = nil
		j.DeadLetteredAt = nil
	})
	if ok {
		s.signalLocked()
	}
	return ok, err
}

// Cancel moves a pending or running job to cancelled.
func (s *MemoryStore) Cancel(_ context.Context, id string, ev *model.NewJobEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transitionLocked(id, []model.JobStatus{model.JobStatusPending, model.JobStatusRunning}, ev, func(j *model.Job, now time.Time) {
		j.Status = model.JobStatusCancelled
		j.FinishedAt = TimePtr(now)
		j.NextRunAt = nil
		releaseClaim(j)
	})
}

// CountDeadLetteredSince counts dead jobs whose dead_lettered_at is at or after since.
func (s *MemoryStore) CountDeadLetteredSince(_ context.Context, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, j := range s.jobs {
		if j.Status == model.JobStatusDead && j.DeadLetteredAt != nil && !j.DeadLetteredAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ListStaleRunning returns running jobs last seen before lastSeenBefore, oldest first.
func (s *MemoryStore) ListStaleRunning(_ context.Context, lastSeenBefore time.Time, limit int) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Job
	for _, j := range s.jobs {
		if seen := lastSeen(j); j.Status == model.JobStatusRunning && seen != nil && seen.Before(lastSeenBefore) {
			out = append(out, copyJob(j))
		}
	}
	sort.Slice(out, func(a, b int) bool {
		sa, sb := lastSeen(out[a]), lastSeen(out[b])
		if !sa.Equal(*sb) {
			return sa.Before(*sb)
		}
		return out[a].ID < out[b].ID
	})
	return page(out, limit, 0), nil
}

// WaitForEnqueue blocks until Create or Replay signals or ctx ends.
func (s *MemoryStore) WaitForEnqueue(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.enqueued:
		return nil
	}
}

// DeleteOldJobs removes terminal jobs in the given statuses. Events are kept.
func (s *MemoryStore) DeleteOldJobs(_ context.Context, p core.DeleteOldJobsParams) (int64, error) {
	if len(p.Statuses) == 0 || p.BatchSize <= 0 || p.MaxAge <= 0 {
		return 0, errors.New("invalid delete params")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.clock.Now().Add(-p.MaxAge)
	var deleted int64
	for _, j := range s.sortedLocked() {
		if deleted >= int64(p.BatchSize) {
			break
		}
		if !slices.Contains(p.Statuses, j.Status) {
			continue
		}
		ref := j.UpdatedAt
		if j.FinishedAt != nil {
			ref = *j.FinishedAt
		}
		if ref.Before(cutoff) {
			delete(s.jobs, j.ID)
			deleted++
		}
	}
	return deleted, nil
}

// Append adds an event to the log.
func (s *MemoryStore) Append(_ context.Context, ev model.NewJobEvent) (*model.JobEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(ev, s.clock.Now())
}

func (s *MemoryStore) appendLocked(ev model.NewJobEvent, at time.Time) (*model.JobEvent, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	data, err := ev.EncodeData()
	if err != nil {
		return nil, err
	}
	s.nextEv++
	e := &model.JobEvent{
		ID:        s.nextEv,
		JobID:     ev.JobID,
		Type:      ev.Type,
		Message:   ev.MessagePtr(),
		Data:      data,
		CreatedAt: at,
	}
	s.events = append(s.events, e)
	cp := *e
	return &cp, nil
}

// ListByJob returns a job's events in append order.
func (s *MemoryStore) ListByJob(_ context.Context, opts model.JobEventListOptions) ([]*model.JobEvent, error) {
	if strings.TrimSpace(opts.JobID) == "" {
		return nil, errors.New("job_id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.JobEvent
	for _, e := range s.events {
		if e.JobID == opts.JobID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return page(out, opts.Limit, opts.Offset), nil
}

// EventTypes returns the types of a job's events in order.
func (s *MemoryStore) EventTypes(jobID string) []model.JobEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.JobEventType
	for _, e := range s.events {
		if e.JobID == jobID {
			out = append(out, e.Type)
		}
	}
	return out
}

// Get returns the state entry or nil.
func (s *MemoryStore) Get(_ context.Context, key string) (*model.SystemState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.state[key]
	if !ok {
		return nil, nil //nolint:nilnil // missing key is not an error
	}
	cp := *st
	cp.Value = slices.Clone(st.Value)
	return &cp, nil
}

// Set upserts a state entry.
func (s *MemoryStore) Set(_ context.Context, key string, value json.RawMessage) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("state key is required")
	}
	if !json.Valid(value) {
		return errors.New("state value must be valid JSON")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[key] = &model.SystemState{Key: key, Value: slices.Clone(value), UpdatedAt: s.clock.Now()}
	return nil
}

func (s *MemoryStore) signalLocked() {
	select {
	case s.enqueued <- struct{}{}:
	default:
	}
}

func (s *MemoryStore) sortedLocked() []*model.Job {
	out := make([]*model.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if !out[a].CreatedAt.Equal(out[b].CreatedAt) {
			return out[a].CreatedAt.Before(out[b].CreatedAt)
		}
		return out[a].ID < out[b].ID
	})
	return out
}

func page[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func lastSeen(j *model.Job) *time.Time {
	if j.HeartbeatAt != nil {
		return j.HeartbeatAt
	}
	return j.StartedAt
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func copyJob(j *model.Job) *model.Job {
	cp := *j
	cp.Payload = slices.Clone(j.Payload)
	cp.Result = slices.Clone(j.Result)
	return &cp
}
