// Package job holds the dispatcher's pure domain logic: the error taxonomy, the retry
// policy, and the contract every job handler implements.
package job

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorKind is one category of the closed error taxonomy.
type ErrorKind string

const (
	KindNetwork        ErrorKind = "network"
	KindTimeout        ErrorKind = "timeout"
	KindRateLimit      ErrorKind = "rate_limit"
	KindExternalAPI    ErrorKind = "external_api"
	KindDataCorruption ErrorKind = "data_corruption"
	KindPermission     ErrorKind = "permission"
	KindSystem         ErrorKind = "system"
	KindUnknown        ErrorKind = "unknown"
)

// Severity ranks how loudly a failure should be reported.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// KindInfo is the fixed behaviour attached to an ErrorKind.
type KindInfo struct {
	Retryable bool
	// BaseDelayMinutes is the first retry delay before exponential growth.
	BaseDelayMinutes float64
	Severity         Severity
}

var taxonomy = map[ErrorKind]KindInfo{
	KindNetwork:        {Retryable: true, BaseDelayMinutes: 1, Severity: SeverityWarning},
	KindTimeout:        {Retryable: true, BaseDelayMinutes: 2, Severity: SeverityWarning},
	KindRateLimit:      {Retryable: true, BaseDelayMinutes: 10, Severity: SeverityWarning},
	KindExternalAPI:    {Retryable: true, BaseDelayMinutes: 5, Severity: SeverityError},
	KindDataCorruption: {Retryable: false, Severity: SeverityCritical},
	KindPermission:     {Retryable: false, Severity: SeverityCritical},
	KindSystem:         {Retryable: true, BaseDelayMinutes: 5, Severity: SeverityError},
	KindUnknown:        {Retryable: true, BaseDelayMinutes: 5, Severity: SeverityError},
}

// Info returns the taxonomy entry for k. Unrecognised kinds behave as KindUnknown.
func (k ErrorKind) Info() KindInfo {
	if info, ok := taxonomy[k]; ok {
		return info
	}
	return taxonomy[KindUnknown]
}

// Valid reports whether k is part of the taxonomy.
func (k ErrorKind) Valid() bool {
	_, ok := taxonomy[k]
	return ok
}

// Kinds lists the taxonomy in a stable order.
func Kinds() []ErrorKind {
	return []ErrorKind{
		KindNetwork, KindTimeout, KindRateLimit, KindExternalAPI,
		KindDataCorruption, KindPermission, KindSystem, KindUnknown,
	}
}

// Error lets a handler state the kind of its failure explicitly.
type Error struct {
	Kind ErrorKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with an explicit kind.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Errorf formats a message and tags it with kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// HTTPStatusError reports a non-success response from an external API.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	URL        string
}

func (e *HTTPStatusError) Error() string {
	status := e.Status
	if status == "" {
		status = http.StatusText(e.StatusCode)
	}
	if e.URL == "" {
		return fmt.Sprintf("unexpected status %d %s", e.StatusCode, status)
	}
	return fmt.Sprintf("unexpected status %d %s from %s", e.StatusCode, status, e.URL)
}

// Classification is the result of mapping an error onto the taxonomy.
type Classification struct {
	Kind     ErrorKind
	Message  string
	Severity Severity
	// Retryable mirrors the taxonomy entry for Kind.
	Retryable bool
}

// Classify maps an arbitrary error onto the taxonomy. It is pure and never fails;
// a nil error classifies as unknown with an empty message.
func Classify(err error) Classification {
	kind := classifyKind(err)
	info := kind.Info()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Classification{
		Kind:      kind,
		Message:   msg,
		Severity:  info.Severity,
		Retryable: info.Retryable,
	}
}

func classifyKind(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}

	var tagged *Error
	if errors.As(err, &tagged) && tagged.Kind.Valid() {
		return tagged.Kind
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return kindForStatus(statusErr.StatusCode)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return kindForPgCode(pgErr.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	if errors.As(err, &opErr) || errors.As(err, &dnsErr) {
		return KindNetwork
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return KindNetwork
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return KindDataCorruption
	}

	return kindFromMessage(err.Error())
}

func kindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusTooManyRequests:
		return KindRateLimit
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindPermission
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindExternalAPI
	}
}

func kindForPgCode(code string) ErrorKind {
	switch {
	case code == pgerrcode.InsufficientPrivilege:
		return KindPermission
	case code == pgerrcode.QueryCanceled || code == pgerrcode.LockNotAvailable:
		return KindTimeout
	case pgerrcode.IsConnectionException(code):
		return KindNetwork
	case pgerrcode.IsDataException(code) || pgerrcode.IsIntegrityConstraintViolation(code):
		return KindDataCorruption
	default:
		return KindSystem
	}
}

// Message heuristics, checked in order. The first group to match wins.
var messageRules = []struct {
	kind    ErrorKind
	needles []string
}{
	{KindRateLimit, []string{"rate limit", "too many requests", "429"}},
	{KindTimeout, []string{"timeout", "timed out", "deadline exceeded"}},
	{KindPermission, []string{"permission denied", "unauthorized", "forbidden", "access denied"}},
	{KindNetwork, []string{"connection refused", "connection reset", "econnrefused", "econnreset", "no such host", "network", "broken pipe"}},
	{KindDataCorruption, []string{"invalid json", "unexpected end of json", "malformed", "corrupt", "invalid character"}},
	{KindExternalAPI, []string{"bad gateway", "service unavailable", "upstream", "api error", "status code"}},
	{KindSystem, []string{"out of memory", "no space left", "database", "sql"}},
}

func kindFromMessage(msg string) ErrorKind {
	lower := strings.ToLower(msg)
	for _, rule := range messageRules {
		for _, needle := range rule.needles {
			if strings.Contains(lower, needle) {
				return rule.kind
			}
		}
	}
	return KindUnknown
}
