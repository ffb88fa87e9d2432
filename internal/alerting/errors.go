package alerting

import "errors"

var (
	// ErrInvalidParameters marks malformed or out-of-range client input.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrUpstreamUnavailable marks a failing time-series or relational store.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
