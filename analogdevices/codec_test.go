package analogdevices

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/nasa-jpl/ddsgen/util"
)

func ExampleEncodeFrequency() {
	words, _ := EncodeFrequency(1000, DefaultRefClock, 0)
	fmt.Printf("%04X %04X\n", words[0], words[1])
	// Output: 69F1 4000
}

func TestFrequencyRoundTripWithinQuantum(t *testing.T) {
	q := Quantum(DefaultRefClock)
	for _, hz := range []float64{0, q / 3, 1, 100, 1000, 12345.678, 1e6, DefaultRefClock / 2} {
		words, err := EncodeFrequency(hz, DefaultRefClock, 1)
		if err != nil {
			t.Fatalf("%g Hz: %v", hz, err)
		}
		got := DecodeFrequency(JoinFrequency(words[0], words[1]), DefaultRefClock)
		if math.Abs(got-hz) > q {
			t.Errorf("%g Hz came back as %g Hz, more than one quantum (%g) off", hz, got, q)
		}
	}
}

func TestFrequencyWordsAreTaggedLSBFirst(t *testing.T) {
	// 2^14 + 1 quanta puts a 1 in the low bit of each half
	hz := DecodeFrequency(1<<14|1, DefaultRefClock)
	words, _ := EncodeFrequency(hz, DefaultRefClock, 1)
	if words[0] != 0x8001 || words[1] != 0x8001 {
		t.Errorf("expected 8001 8001, got %04X %04X", words[0], words[1])
	}
	hz = DecodeFrequency(1<<14, DefaultRefClock)
	words, _ = EncodeFrequency(hz, DefaultRefClock, 0)
	if words[0] != 0x4000 || words[1] != 0x4001 {
		t.Errorf("expected 4000 4001, got %04X %04X", words[0], words[1])
	}
}

func TestFrequencyOutOfRangeIsRejected(t *testing.T) {
	for _, hz := range []float64{-1, DefaultRefClock/2 + 1, math.NaN(), math.Inf(1)} {
		_, err := EncodeFrequency(hz, DefaultRefClock, 0)
		if !errors.Is(err, util.ErrInvalidParameter) {
			t.Errorf("%g Hz: expected invalid parameter, got %v", hz, err)
		}
	}
}

func TestPhaseIsPeriodic(t *testing.T) {
	for _, deg := range []float64{0, 1, 45, 90.5, 180, 359.9} {
		want := EncodePhase(deg, 0)
		for _, k := range []float64{-3, -1, 1, 2, 10} {
			if got := EncodePhase(deg+360*k, 0); got != want {
				t.Errorf("%g + 360*%g deg: got %04X, want %04X", deg, k, got, want)
			}
		}
	}
}

func TestPhaseWordValues(t *testing.T) {
	cases := []struct {
		deg  float64
		word uint16
	}{
		{0, 0},
		{90, 1024},
		{180, 2048},
		{-90, 3072},
		{360, 0},
		{359.99, 0},
	}
	for _, c := range cases {
		if got := PhaseWord(c.deg); got != c.word {
			t.Errorf("%g deg: got %d, want %d", c.deg, got, c.word)
		}
	}
	if w := EncodePhase(90, 1); w != 0xE400 {
		t.Errorf("expected PHASE1 write E400, got %04X", w)
	}
}

func TestWrapPhase(t *testing.T) {
	cases := []struct {
		deg, wrapped float64
	}{
		{0, 0},
		{450, 90},
		{-30, 330},
		{720, 0},
		{-1e-300, 0},
	}
	for _, c := range cases {
		got, err := WrapPhase(c.deg)
		if err != nil || got != c.wrapped {
			t.Errorf("%g deg: got %g (%v), want %g", c.deg, got, err, c.wrapped)
		}
	}
	if _, err := WrapPhase(math.NaN()); !errors.Is(err, util.ErrInvalidParameter) {
		t.Errorf("expected NaN to be invalid, got %v", err)
	}
}

func TestControlWord(t *testing.T) {
	cases := []struct {
		ctl  Control
		word uint16
	}{
		{Control{Waveform: Sine}, 0x2000},
		{Control{Waveform: Triangle}, 0x2002},
		{Control{Waveform: Square}, 0x2028},
		{Control{Waveform: Sine, Reset: true}, 0x2100},
		{Control{Waveform: Sine, FreqReg: 1}, 0x2800},
		{Control{Waveform: Sine, PhaseReg: 1}, 0x2400},
		{Control{Waveform: Sine, Sleep: true}, 0x2040},
	}
	for _, c := range cases {
		w := c.ctl.Word()
		if w != c.word {
			t.Errorf("%+v: got %04X, want %04X", c.ctl, w, c.word)
		}
		if !IsControl(w) {
			t.Errorf("%04X not recognized as a control write", w)
		}
		if back := DecodeControl(w); back != c.ctl {
			t.Errorf("%04X decoded to %+v, want %+v", w, back, c.ctl)
		}
	}
}

func TestParseNames(t *testing.T) {
	if w, err := ParseWaveform(" triangle"); err != nil || w != Triangle {
		t.Errorf("triangle: got %v, %v", w, err)
	}
	if _, err := ParseWaveform("sawtooth"); !errors.Is(err, util.ErrInvalidParameter) {
		t.Errorf("sawtooth: expected invalid parameter, got %v", err)
	}
	if s, err := ParseSweepType("log"); err != nil || s != Logarithmic {
		t.Errorf("log: got %v, %v", s, err)
	}
	if m, err := ParseModulationType("fsk"); err != nil || m != ModFSK {
		t.Errorf("fsk: got %v, %v", m, err)
	}
}

func TestRegisterPairSwapsOnlyOnSuccess(t *testing.T) {
	var p RegisterPair
	p.reset(10)
	err := p.WriteThenSwap(20, func(slot int) error {
		if slot != 1 {
			t.Errorf("expected write to slot 1, got %d", slot)
		}
		return errors.New("bus fault")
	})
	if err == nil || p.Active() != 0 || p.Value() != 10 {
		t.Errorf("failed write changed the pair: active=%d value=%g", p.Active(), p.Value())
	}
	p.WriteThenSwap(30, func(int) error { return nil })
	if p.Active() != 1 || p.Value() != 30 {
		t.Errorf("expected slot 1 = 30, got slot %d = %g", p.Active(), p.Value())
	}
	p.WriteThenSwap(40, func(slot int) error {
		if slot != 0 {
			t.Errorf("expected write back to slot 0, got %d", slot)
		}
		return nil
	})
}

func TestSweepInterpolation(t *testing.T) {
	lin := Sweep{Start: 100, End: 10000, Type: Linear}
	log := Sweep{Start: 100, End: 10000, Type: Logarithmic}
	cases := []struct {
		s    Sweep
		t    float64
		want float64
	}{
		{lin, 0, 100},
		{lin, 0.5, 5050},
		{lin, 1, 10000},
		{log, 0, 100},
		{log, 0.5, 1000},
		{log, 1, 10000},
	}
	for _, c := range cases {
		if got := c.s.FrequencyAt(c.t); math.Abs(got-c.want) > 1e-9 {
			t.Errorf("%v at %g: got %g, want %g", &c.s, c.t, got, c.want)
		}
	}
}

func TestSweepValidation(t *testing.T) {
	bad := []Sweep{
		{Start: -1, End: 100, Duration: 1, Type: Linear},
		{Start: 1, End: DefaultRefClock, Duration: 1, Type: Linear},
		{Start: 1, End: 100, Duration: 0, Type: Linear},
		{Start: 0, End: 100, Duration: 1, Type: Logarithmic},
		{Start: 1, End: 100, Duration: 1, Type: SweepType(7)},
	}
	for _, s := range bad {
		if err := s.validate(DefaultRefClock); !errors.Is(err, util.ErrInvalidParameter) {
			t.Errorf("%v: expected invalid parameter, got %v", &s, err)
		}
	}
	ok := Sweep{Start: 0, End: 100, Duration: 1, Type: Linear}
	if err := ok.validate(DefaultRefClock); err != nil {
		t.Errorf("linear sweep from 0 Hz rejected: %v", err)
	}
}
