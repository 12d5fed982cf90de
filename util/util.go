// Package util contains misc internal utilities.
package util

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidParameter is generated when a commanded value is outside the
// domain a device or algorithm accepts.  It is always returned before any
// hardware is touched.
var ErrInvalidParameter = errors.New("invalid parameter")

// Limiter holds a closed interval [Min, Max]
type Limiter struct {
	Min float64 `yaml:"Min"`
	Max float64 `yaml:"Max"`
}

// Check returns true if f is inside the limits.  NaN is never inside.
func (l Limiter) Check(f float64) bool {
	return f >= l.Min && f <= l.Max
}

// Validate returns nil if f is inside the limits, otherwise an error wrapping
// ErrInvalidParameter that names the quantity
func (l Limiter) Validate(name string, f float64) error {
	if l.Check(f) {
		return nil
	}
	return fmt.Errorf("%w: %s %g outside [%g, %g]", ErrInvalidParameter, name, f, l.Min, l.Max)
}

// Clamp limits the input to the range [low, high]
func Clamp(input, low, high float64) float64 {
	return math.Max(math.Min(input, high), low)
}

// SecsToDuration converts a floating point number of seconds to a time.Duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * 1e9))
}

// MillisToDuration converts a floating point number of milliseconds to a time.Duration
func MillisToDuration(ms float64) time.Duration {
	return time.Duration(math.Round(ms * 1e6))
}
