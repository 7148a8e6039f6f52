package job

import (
	"math"
	"math/rand/v2"
	"time"
)

const (
	// JitterFraction is the symmetric spread applied around the computed delay.
	JitterFraction = 0.10
	// MinDelayMinutes floors every scheduled retry delay.
	MinDelayMinutes = 0.1
)

// RandSource yields uniform values in [0, 1).
type RandSource interface {
	Float64() float64
}

// RandSourceFunc adapts a function to RandSource.
type RandSourceFunc func() float64

func (f RandSourceFunc) Float64() float64 { return f() }

type globalRand struct{}

func (globalRand) Float64() float64 { return rand.Float64() } //nolint:gosec // jitter does not need crypto randomness

// NoJitter is a RandSource that always lands on the unjittered delay.
var NoJitter RandSource = RandSourceFunc(func() float64 { return 0.5 })

// RetryPolicy turns a classified failure into a retry or dead-letter decision.
type RetryPolicy struct {
	rand RandSource
}

// NewRetryPolicy builds a policy around src. A nil src uses math/rand/v2.
func NewRetryPolicy(src RandSource) *RetryPolicy {
	if src == nil {
		src = globalRand{}
	}
	return &RetryPolicy{rand: src}
}

// RetryInput describes the attempt that just failed.
type RetryInput struct {
	Kind       ErrorKind
	RetryCount int
	MaxRetries int
	Now        time.Time
}

// RetryDecision is the outcome of RetryPolicy.Decide.
type RetryDecision struct {
	Retry     bool
	Delay     time.Duration
	NextRunAt time.Time
	// FinalAttempt is true when the scheduled retry is the last one the budget allows.
	FinalAttempt bool
}

// ShouldRetry reports whether a failure of kind may be retried at retryCount.
func ShouldRetry(kind ErrorKind, retryCount, maxRetries int) bool {
	info := kind.Info()
	if !info.Retryable || info.BaseDelayMinutes <= 0 {
		return false
	}
	return retryCount < maxRetries
}

// BaseDelay returns the unjittered delay for the given attempt.
func BaseDelay(kind ErrorKind, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	minutes := kind.Info().BaseDelayMinutes * math.Pow(2, float64(retryCount))
	return minutesToDuration(minutes)
}

// Decide applies the retry rule and, when retrying, computes the jittered delay.
func (p *RetryPolicy) Decide(in RetryInput) RetryDecision {
	if !ShouldRetry(in.Kind, in.RetryCount, in.MaxRetries) {
		return RetryDecision{}
	}
	delay := p.Delay(in.Kind, in.RetryCount)
	return RetryDecision{
		Retry:        true,
		Delay:        delay,
		NextRunAt:    in.Now.Add(delay),
		FinalAttempt: in.RetryCount == in.MaxRetries-1,
	}
}

// Delay returns base*2^retryCount with ±10% jitter, floored at MinDelayMinutes.
func (p *RetryPolicy) Delay(kind ErrorKind, retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	minutes := kind.Info().BaseDelayMinutes * math.Pow(2, float64(retryCount))
	r := p.source().Float64()
	// r in [0,1) maps onto a factor in [0.9, 1.1).
	minutes *= 1 + JitterFraction*(2*r-1)
	if minutes < MinDelayMinutes {
		minutes = MinDelayMinutes
	}
	return minutesToDuration(minutes)
}

func (p *RetryPolicy) source() RandSource {
	if p == nil || p.rand == nil {
		return globalRand{}
	}
	return p.rand
}

func minutesToDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
