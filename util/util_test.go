package util_test

import (
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/nasa-jpl/ddsgen/util"
)

func ExampleLimiter_Validate() {
	l := util.Limiter{Min: 0, Max: 100}
	fmt.Println(l.Validate("amplitude", 150))
	// Output: invalid parameter: amplitude 150 outside [0, 100]
}

func TestClampHigh(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = 20.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != high {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestClampLow(t *testing.T) {
	var (
		low   = 0.
		high  = 10.
		input = -1.
	)
	clamped := util.Clamp(input, low, high)
	if clamped != low {
		t.Errorf("expected out of range value %f to be clipped to %f < x < %f, got %f", input, low, high, clamped)
	}
}

func TestLimiterEdgesAreInclusive(t *testing.T) {
	l := util.Limiter{Min: 0, Max: 1}
	for _, f := range []float64{0, 0.5, 1} {
		if err := l.Validate("depth", f); err != nil {
			t.Errorf("expected %f to be accepted, got %v", f, err)
		}
	}
}

func TestLimiterRejectsNaN(t *testing.T) {
	l := util.Limiter{Min: math.Inf(-1), Max: math.Inf(1)}
	err := l.Validate("frequency", math.NaN())
	if !errors.Is(err, util.ErrInvalidParameter) {
		t.Errorf("expected NaN to be rejected with ErrInvalidParameter, got %v", err)
	}
}

func TestSecsToDuration(t *testing.T) {
	var dur time.Duration = 123456789
	secs := dur.Seconds()
	out := util.SecsToDuration(secs)
	if out != dur {
		t.Errorf("expected SecsToDuration to round trip, output %v != expected %v", out, dur)
	}
}

func TestMillisToDuration(t *testing.T) {
	out := util.MillisToDuration(5000)
	if out != 5*time.Second {
		t.Errorf("expected 5000 ms to be 5s, got %v", out)
	}
}
