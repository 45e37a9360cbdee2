package resilience

import "errors"

// ErrorKind classifies a failure for the retry policy's benefit.
// RobustCall only retries a failure whose kind appears in the policy's
// RetriableKinds; anything else ends the retry loop immediately after it
// is logged to the monitor, and RobustCall returns the fallback's result
// (when one is given) or the error.
type ErrorKind string

const (
	KindTransient       ErrorKind = "transient"
	KindTimeout         ErrorKind = "timeout"
	KindRateLimit       ErrorKind = "rate_limit"
	KindInvalidResponse ErrorKind = "invalid_response"
	KindBreakerOpen     ErrorKind = "breaker_open"
	KindToolValidation  ErrorKind = "tool_validation"
	KindUnknownTool     ErrorKind = "unknown_tool"
	KindModelError      ErrorKind = "model_error"
	KindInvalidTicker   ErrorKind = "invalid_ticker"
	KindGraphStuck      ErrorKind = "graph_stuck"
	KindCancelled       ErrorKind = "cancelled"
	KindFatal           ErrorKind = "fatal"
)

type kindedError struct {
	kind ErrorKind
	err  error
}

func (k *kindedError) Error() string { return k.err.Error() }
func (k *kindedError) Unwrap() error { return k.err }

// WithKind tags err with an ErrorKind so a Policy's RetriableKinds can
// gate whether RobustCall retries it.
func WithKind(err error, kind ErrorKind) error {
	if err == nil {
		return nil
	}
	return &kindedError{kind: kind, err: err}
}

// Kind extracts the ErrorKind tagged onto err via WithKind. A ModelError
// surfaces as InvalidResponse for retry purposes. An
// untagged error defaults to Transient, the overwhelmingly common case
// for a call this package wraps (a network or provider round trip).
func Kind(err error) ErrorKind {
	var ke *kindedError
	if errors.As(err, &ke) {
		if ke.kind == KindModelError {
			return KindInvalidResponse
		}
		return ke.kind
	}
	if errors.Is(err, ErrBreakerOpen) {
		return KindBreakerOpen
	}
	return KindTransient
}
