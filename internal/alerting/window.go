package alerting

import (
	"fmt"
	"regexp"
	"strconv"

	"alert-service/internal/models"
)

var windowPattern = regexp.MustCompile(`^\d+[mhd]$`)

// WindowValidator parses lookback windows and enforces the synchronous ceiling.
type WindowValidator struct {
	maxDays int
}

// NewWindowValidator returns a validator whose bounded mode accepts at most maxDays.
func NewWindowValidator(maxDays int) WindowValidator {
	return WindowValidator{maxDays: maxDays}
}

// ParseWindow checks the syntax of s and returns the parsed window.
// Zero and magnitudes that do not fit an int are rejected.
func ParseWindow(s string) (models.Window, error) {
	if !windowPattern.MatchString(s) {
		return models.Window{}, fmt.Errorf("%w: malformed window %q", ErrInvalidParameters, s)
	}
	amount, err := strconv.Atoi(s[:len(s)-1])
	if err != nil {
		return models.Window{}, fmt.Errorf("%w: window %q out of range", ErrInvalidParameters, s)
	}
	if amount <= 0 {
		return models.Window{}, fmt.Errorf("%w: window %q must be positive", ErrInvalidParameters, s)
	}
	return models.Window{Amount: amount, Unit: s[len(s)-1]}, nil
}

// Unbounded accepts any syntactically valid window.
func (v WindowValidator) Unbounded(s string) (models.Window, error) {
	return ParseWindow(s)
}

// Bounded accepts a valid window no longer than the configured ceiling.
func (v WindowValidator) Bounded(s string) (models.Window, error) {
	w, err := ParseWindow(s)
	if err != nil {
		return models.Window{}, err
	}
	if w.Amount > v.limit(w.Unit) {
		return models.Window{}, fmt.Errorf("%w: window %q exceeds %d days", ErrInvalidParameters, s, v.maxDays)
	}
	return w, nil
}

// MaxMinutes is the ceiling expressed in minutes.
func (v WindowValidator) MaxMinutes() int {
	return v.maxDays * 24 * 60
}

// limit returns the ceiling in the window's own unit so the comparison cannot overflow.
func (v WindowValidator) limit(unit byte) int {
	switch unit {
	case 'm':
		return v.MaxMinutes()
	case 'h':
		return v.maxDays * 24
	default:
		return v.maxDays
	}
}
