package analogdevices

import (
	"fmt"
	"math"
	"strings"

	"github.com/nasa-jpl/ddsgen/util"
)

const (
	// DefaultRefClock is the 25 MHz crystal fitted to most AD9833 modules
	DefaultRefClock = 25e6

	// register address bits, the top bits of every 16-bit word
	regControl uint16 = 0x0000
	regFreq0   uint16 = 0x4000
	regFreq1   uint16 = 0x8000
	regPhase0  uint16 = 0xC000
	regPhase1  uint16 = 0xE000

	// control register bits
	ctrlB28      uint16 = 0x2000
	ctrlHLB      uint16 = 0x1000
	ctrlFSelect  uint16 = 0x0800
	ctrlPSelect  uint16 = 0x0400
	ctrlReset    uint16 = 0x0100
	ctrlSleep1   uint16 = 0x0080
	ctrlSleep12  uint16 = 0x0040
	ctrlOpBitEn  uint16 = 0x0020
	ctrlDiv2     uint16 = 0x0008
	ctrlMode     uint16 = 0x0002
	ctrlAddrMask uint16 = 0xC000

	halfMask  = 0x3FFF // one 14-bit half of a frequency word
	phaseMask = 0x0FFF

	freqResolution  = 1 << 28
	phaseResolution = 1 << 12
)

// Waveform is the output shape of the DDS
type Waveform int

const (
	// Sine is the DAC driven through the sine lookup table
	Sine Waveform = iota

	// Triangle is the DAC driven directly by the phase accumulator
	Triangle

	// Square is the phase accumulator MSB/2 on VOUT, DAC bypassed
	Square
)

var waveformNames = map[Waveform]string{
	Sine:     "SINE",
	Triangle: "TRIANGLE",
	Square:   "SQUARE",
}

func (w Waveform) String() string {
	if s, ok := waveformNames[w]; ok {
		return s
	}
	return fmt.Sprintf("Waveform(%d)", int(w))
}

// ParseWaveform converts a case-insensitive name to a Waveform
func ParseWaveform(s string) (Waveform, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	for w, name := range waveformNames {
		if name == s {
			return w, nil
		}
	}
	return Sine, fmt.Errorf("%w: waveform %q not one of SINE, TRIANGLE, SQUARE", util.ErrInvalidParameter, s)
}

// FrequencyLimits is the usable output range for a reference clock, [0, refclk/2]
func FrequencyLimits(refclk float64) util.Limiter {
	return util.Limiter{Min: 0, Max: refclk / 2}
}

// Quantum is the frequency step of one LSB of the tuning word
func Quantum(refclk float64) float64 {
	return refclk / freqResolution
}

// FrequencyWord computes the 28-bit tuning word for hz.  Frequencies outside
// FrequencyLimits are rejected, not clamped.
func FrequencyWord(hz, refclk float64) (uint32, error) {
	if err := FrequencyLimits(refclk).Validate("frequency (Hz)", hz); err != nil {
		return 0, err
	}
	return uint32(math.Round(hz * freqResolution / refclk)), nil
}

// EncodeFrequency returns the two writes that load hz into frequency
// register reg (0 or 1), least significant half first.  The control register
// must have B28 set for the chip to take them as one word.
func EncodeFrequency(hz, refclk float64, reg int) ([]uint16, error) {
	word, err := FrequencyWord(hz, refclk)
	if err != nil {
		return nil, err
	}
	addr := regFreq0
	if reg == 1 {
		addr = regFreq1
	}
	lsb := uint16(word & halfMask)
	msb := uint16((word >> 14) & halfMask)
	return []uint16{addr | lsb, addr | msb}, nil
}

// JoinFrequency reassembles a tuning word from the two writes produced by
// EncodeFrequency
func JoinFrequency(lsb, msb uint16) uint32 {
	return uint32(lsb&halfMask) | uint32(msb&halfMask)<<14
}

// DecodeFrequency converts a tuning word back to Hz
func DecodeFrequency(word uint32, refclk float64) float64 {
	return float64(word) * refclk / freqResolution
}

// WrapPhase reduces deg into [0, 360).  NaN and infinities are rejected.
func WrapPhase(deg float64) (float64, error) {
	if math.IsNaN(deg) || math.IsInf(deg, 0) {
		return 0, fmt.Errorf("%w: phase %g (deg) is not a finite angle", util.ErrInvalidParameter, deg)
	}
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	// a tiny negative input wraps to exactly 360
	if deg >= 360 {
		deg = 0
	}
	return deg, nil
}

// PhaseWord computes the 12-bit phase offset for deg, wrapped modulo 360
func PhaseWord(deg float64) uint16 {
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return uint16(int(math.Round(deg/360*phaseResolution)) % phaseResolution)
}

// EncodePhase returns the write that loads deg into phase register reg (0 or 1)
func EncodePhase(deg float64, reg int) uint16 {
	addr := regPhase0
	if reg == 1 {
		addr = regPhase1
	}
	return addr | PhaseWord(deg)
}

// DecodePhase converts a phase word back to degrees
func DecodePhase(word uint16) float64 {
	return float64(word&phaseMask) * 360 / phaseResolution
}

// Control is the content of the control register
type Control struct {
	Waveform Waveform

	// FreqReg and PhaseReg select the registers driving the output, 0 or 1
	FreqReg  int
	PhaseReg int

	Reset bool

	// Sleep powers down the DAC
	Sleep bool
}

// Word encodes the control register.  B28 is always set so every frequency
// update is a consecutive LSB, MSB pair.
func (c Control) Word() uint16 {
	w := regControl | ctrlB28
	if c.FreqReg == 1 {
		w |= ctrlFSelect
	}
	if c.PhaseReg == 1 {
		w |= ctrlPSelect
	}
	if c.Reset {
		w |= ctrlReset
	}
	if c.Sleep {
		w |= ctrlSleep12
	}
	switch c.Waveform {
	case Triangle:
		w |= ctrlMode
	case Square:
		w |= ctrlOpBitEn | ctrlDiv2
	}
	return w
}

// DecodeControl is the inverse of Control.Word for the bits this package writes
func DecodeControl(w uint16) Control {
	c := Control{
		Reset: w&ctrlReset != 0,
		Sleep: w&ctrlSleep12 != 0,
	}
	if w&ctrlFSelect != 0 {
		c.FreqReg = 1
	}
	if w&ctrlPSelect != 0 {
		c.PhaseReg = 1
	}
	switch {
	case w&ctrlOpBitEn != 0:
		c.Waveform = Square
	case w&ctrlMode != 0:
		c.Waveform = Triangle
	}
	return c
}

// IsControl returns true if w addresses the control register
func IsControl(w uint16) bool {
	return w&ctrlAddrMask == regControl
}
