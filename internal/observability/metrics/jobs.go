// Package metrics emits the dispatcher's standard job and run metrics onto a statsd.Sink.
package metrics

import (
	"maps"
	"time"

	"github.com/target/creative-dispatch/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Transition names used as the "transition" tag.
const (
	TransitionClaimed    = "claimed"
	TransitionCompleted  = "completed"
	TransitionRetry      = "retry_scheduled"
	TransitionDead       = "dead_lettered"
	TransitionFailed     = "failed"
	TransitionCancelled  = "cancelled"
	TransitionReplayed   = "replayed"
	TransitionCancelReq  = "cancel_requested"
	TransitionRecovered  = "recovered"
	TransitionReleased   = "released"
	TransitionEnqueued   = "enqueued"
	TransitionQueuePause = "queue_paused"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	JobType    string
	Transition string
	Result     string
	// ErrorKind is the classifier's category for a failed attempt.
	ErrorKind string
	Duration  time.Duration
}

// EmitJobLifecycle emits standardised job lifecycle metrics.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"job_type":   in.JobType,
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.ErrorKind != "" {
		tags["error_kind"] = in.ErrorKind
	}

	sink.Count("job.transition", 1, tags)

	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// RunMetric summarises one dispatcher invocation.
type RunMetric struct {
	Result    string
	Paused    bool
	Processed int
	Duration  time.Duration
}

// EmitDispatcherRun emits the per-invocation counters and timing.
func EmitDispatcherRun(sink statsd.Sink, in RunMetric) {
	if sink == nil {
		return
	}
	result := in.Result
	if in.Paused {
		result = ResultNoop
	}
	tags := map[string]string{"result": result}
	sink.Count("dispatcher.run", 1, tags)
	sink.Count("dispatcher.processed", int64(in.Processed), CloneTags(tags))
	if in.Duration > 0 {
		sink.Timing("dispatcher.run_duration", in.Duration, CloneTags(tags))
	}
}

// EmitQueuePaused sets the queue pause gauge.
func EmitQueuePaused(sink statsd.Sink, paused bool) {
	if sink == nil {
		return
	}
	v := 0.0
	if paused {
		v = 1
	}
	sink.Gauge("queue.paused", v, nil)
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}

// MultiSink fans every metric out to each non-nil sink.
type MultiSink []statsd.Sink

var _ statsd.Sink = MultiSink(nil)

// NewMultiSink drops nil sinks and returns statsd.Discard when none remain.
func NewMultiSink(sinks ...statsd.Sink) statsd.Sink {
	var out MultiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	switch len(out) {
	case 0:
		return statsd.Discard
	case 1:
		return out[0]
	default:
		return out
	}
}

func (m MultiSink) Count(name string, value int64, tags map[string]string) {
	for _, s := range m {
		s.Count(name, value, CloneTags(tags))
	}
}

func (m MultiSink) Gauge(name string, value float64, tags map[string]string) {
	for _, s := range m {
		s.Gauge(name, value, CloneTags(tags))
	}
}

func (m MultiSink) Timing(name string, value time.Duration, tags map[string]string) {
	for _, s := range m {
		s.Timing(name, value, CloneTags(tags))
	}
}
