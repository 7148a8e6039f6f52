// Package mocks provides gomock implementations of the repository ports in internal/core.
//
// To regenerate mocks after interface changes, run:
//
//	go generate ./internal/mocks
//
// Usage in tests:
//
//	ctrl := gomock.NewController(t)
//	repo := mocks.NewMockJobRepository(ctrl)
//	repo.EXPECT().ClaimNext(gomock.Any()).Return(job, nil)
package mocks

// Job store: enqueue, atomic claim, transitions, replay/cancel and breaker counting.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_repository_mock.go github.com/target/creative-dispatch/internal/core JobRepository

// Append-only job event log.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=job_event_repository_mock.go github.com/target/creative-dispatch/internal/core JobEventRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=system_state_repository_mock.go github.com/target/creative-dispatch/internal/core SystemStateRepository

//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=reaper_repository_mock.go github.com/target/creative-dispatch/internal/core ReaperRepository

// Alert dedup cache.
//go:generate go run go.uber.org/mock/mockgen@v0.6.0 -package=mocks -destination=cache_repository_mock.go github.com/target/creative-dispatch/internal/core CacheRepository
