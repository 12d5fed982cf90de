package analogdevices

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/nasa-jpl/ddsgen/util"
)

// ModulationType selects what the modulation engine varies
type ModulationType int

const (
	// ModNone is no modulation
	ModNone ModulationType = iota

	// ModAM varies the digipot wiper around the amplitude in effect at start
	ModAM

	// ModFM varies the frequency around the carrier in effect at start
	ModFM

	// ModFSK switches between two stored frequencies on command
	ModFSK
)

var modulationNames = map[ModulationType]string{
	ModNone: "NONE",
	ModAM:   "AM",
	ModFM:   "FM",
	ModFSK:  "FSK",
}

func (m ModulationType) String() string {
	if s, ok := modulationNames[m]; ok {
		return s
	}
	return fmt.Sprintf("ModulationType(%d)", int(m))
}

// ParseModulationType converts a case-insensitive name to a ModulationType
func ParseModulationType(s string) (ModulationType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for m, name := range modulationNames {
		if name == s {
			return m, nil
		}
	}
	return ModNone, fmt.Errorf("%w: modulation type %q not one of NONE, AM, FM, FSK", util.ErrInvalidParameter, s)
}

var depthLimits = util.Limiter{Min: 0, Max: 1}

// Modulation is the state of an active modulation
type Modulation struct {
	Type ModulationType

	// Frequency is the modulating frequency in Hz (AM, FM)
	Frequency float64

	// Depth is the fractional modulation depth in [0, 1] (AM, FM)
	Depth float64

	// base is the amplitude percent (AM) or carrier Hz (FM) at start
	base  float64
	began time.Time

	// fskState is the selected FSK frequency, false for the first
	fskState bool
}

// validate checks the modulating frequency and depth
func (m *Modulation) validate() error {
	if !(m.Frequency > 0) || math.IsInf(m.Frequency, 1) {
		return fmt.Errorf("%w: modulation frequency %g Hz must be positive", util.ErrInvalidParameter, m.Frequency)
	}
	return depthLimits.Validate("modulation depth", m.Depth)
}

// signal is the modulating sinusoid at now
func (m *Modulation) signal(now time.Time) float64 {
	secs := now.Sub(m.began).Seconds()
	return math.Sin(2 * math.Pi * m.Frequency * secs)
}

// AmplitudeAt is the AM envelope at now, in percent.  It swings between
// base*(1-depth) and base.
func (m *Modulation) AmplitudeAt(now time.Time) float64 {
	half := m.Depth / 2
	return m.base * (1 - half + half*m.signal(now))
}

// FrequencyAt is the FM instantaneous frequency at now, in Hz
func (m *Modulation) FrequencyAt(now time.Time) float64 {
	return m.base + m.base*m.Depth*m.signal(now)
}

func (m *Modulation) tick(d *AD9833, now time.Time) error {
	switch m.Type {
	case ModAM:
		return d.writeAmplitude(m.AmplitudeAt(now))
	case ModFM:
		return d.swapFrequency(m.FrequencyAt(now))
	}
	// FSK moves only on SetFSKState
	return nil
}

func (m *Modulation) String() string {
	switch m.Type {
	case ModAM, ModFM:
		return fmt.Sprintf("%s modulation at %.2f Hz, depth %.2f", m.Type, m.Frequency, m.Depth)
	}
	return fmt.Sprintf("%s modulation", m.Type)
}
