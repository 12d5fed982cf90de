package analogdevices

import (
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/nasa-jpl/ddsgen/util"
)

// SweepType is the interpolation used between the endpoints of a sweep
type SweepType int

const (
	// Linear sweeps change frequency at a constant rate in Hz/s
	Linear SweepType = iota

	// Logarithmic sweeps change frequency at a constant rate in decades/s
	Logarithmic
)

func (s SweepType) String() string {
	switch s {
	case Linear:
		return "LINEAR"
	case Logarithmic:
		return "LOGARITHMIC"
	default:
		return fmt.Sprintf("SweepType(%d)", int(s))
	}
}

// ParseSweepType converts a case-insensitive name to a SweepType
func ParseSweepType(s string) (SweepType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LINEAR", "LIN", "":
		return Linear, nil
	case "LOGARITHMIC", "LOG":
		return Logarithmic, nil
	}
	return Linear, fmt.Errorf("%w: sweep type %q not one of LINEAR, LOGARITHMIC", util.ErrInvalidParameter, s)
}

// SweepState is the phase of the sweep engine
type SweepState int

const (
	// SweepIdle means no sweep is attached to the driver
	SweepIdle SweepState = iota

	// SweepRunning means ticks are moving the frequency
	SweepRunning

	// SweepCompleted means the end frequency is applied and ticks do nothing
	SweepCompleted
)

func (s SweepState) String() string {
	switch s {
	case SweepRunning:
		return "running"
	case SweepCompleted:
		return "completed"
	default:
		return "idle"
	}
}

// Sweep moves the output frequency from Start to End over Duration
type Sweep struct {
	Start    float64
	End      float64
	Duration time.Duration
	Type     SweepType

	began     time.Time
	completed bool
}

// validate checks the sweep against the chip's frequency range
func (s *Sweep) validate(refclk float64) error {
	lim := FrequencyLimits(refclk)
	if err := lim.Validate("sweep start frequency (Hz)", s.Start); err != nil {
		return err
	}
	if err := lim.Validate("sweep end frequency (Hz)", s.End); err != nil {
		return err
	}
	if s.Duration <= 0 {
		return fmt.Errorf("%w: sweep duration %v must be positive", util.ErrInvalidParameter, s.Duration)
	}
	if s.Type == Logarithmic && (s.Start <= 0 || s.End <= 0) {
		return fmt.Errorf("%w: logarithmic sweep endpoints %g Hz, %g Hz must be positive", util.ErrInvalidParameter, s.Start, s.End)
	}
	if s.Type != Linear && s.Type != Logarithmic {
		return fmt.Errorf("%w: unknown %v", util.ErrInvalidParameter, s.Type)
	}
	return nil
}

// Fraction is the elapsed share of the sweep at now, in [0, 1]
func (s *Sweep) Fraction(now time.Time) float64 {
	return util.Clamp(float64(now.Sub(s.began))/float64(s.Duration), 0, 1)
}

// FrequencyAt returns the interpolated frequency at fraction t
func (s *Sweep) FrequencyAt(t float64) float64 {
	if t >= 1 {
		return s.End
	}
	if s.Type == Logarithmic {
		return s.Start * math.Pow(s.End/s.Start, t)
	}
	return s.Start + t*(s.End-s.Start)
}

// State returns SweepRunning or SweepCompleted
func (s *Sweep) State() SweepState {
	if s.completed {
		return SweepCompleted
	}
	return SweepRunning
}

func (s *Sweep) tick(d *AD9833, now time.Time) error {
	if s.completed {
		return nil
	}
	t := s.Fraction(now)
	if err := d.swapFrequency(s.FrequencyAt(t)); err != nil {
		return err
	}
	if t >= 1 {
		s.completed = true
		log.Printf("ad9833: sweep complete at %.2f Hz", s.End)
	}
	return nil
}

func (s *Sweep) String() string {
	return fmt.Sprintf("%s sweep %.2f Hz -> %.2f Hz over %v", s.Type, s.Start, s.End, s.Duration)
}
