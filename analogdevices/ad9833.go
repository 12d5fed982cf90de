/*Package analogdevices provides an interface to Analog Devices AD9833 direct
digital synthesis waveform generators.

The chip is write-only and double buffered: it has two frequency and two phase
registers, and a selector bit in the control register picks which of each
drives the output.  This package hides register selection entirely.  Every
frequency or phase change is written to the idle register and then made live
with one control write, so the output never glitches through a half-loaded
tuning word.

Frequency sweeps and AM/FM modulation are time driven.  The driver does not
own a goroutine; call Tick from a timer, or Run to have one made for you.
A sweep and a modulation never coexist, starting either replaces the other.

Basic usage is as followed:
 bus := &comm.Bus{}
 dds, _, err := comm.ConnectSPI(bus, comm.SPIConfig{Port: "/dev/spidev0.0", Mode: 2, MaxSpeed: 1000000})
 if err != nil {
 	log.Fatal(err)
 }
 gen, err := analogdevices.NewAD9833(dds, nil, analogdevices.DefaultConfig())
 if err != nil {
 	log.Fatal(err)
 }
 go gen.Run(ctx, 10*time.Millisecond)
 gen.SetWaveform(analogdevices.Triangle)
 gen.StartSweep(100, 10000, 5*time.Second, analogdevices.Logarithmic)
*/
package analogdevices

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nasa-jpl/ddsgen/comm"
	"github.com/nasa-jpl/ddsgen/util"
)

var (
	// ErrNoAmplitudeControl is generated when an amplitude operation is issued
	// to a generator built without a digital potentiometer
	ErrNoAmplitudeControl = errors.New("no digital potentiometer configured for amplitude control")

	amplitudeLimits = util.Limiter{Min: 0, Max: 100}
)

// AmplitudeController sets the output level of the generator, typically a
// digital potentiometer after the DAC
type AmplitudeController interface {
	// SetAmplitude sets the level in percent of full scale, [0, 100]
	SetAmplitude(float64) error

	// SetWiper sets the raw wiper code
	SetWiper(uint8) error

	// Amplitude returns the level in percent as quantized by the wiper
	Amplitude() float64
}

// Config holds the construction parameters of an AD9833
type Config struct {
	// RefClock is the master clock in Hz; zero selects DefaultRefClock
	RefClock float64

	// Frequency is the power-on output frequency in Hz
	Frequency float64

	// Waveform is the power-on output shape
	Waveform Waveform

	// Phase is the power-on phase offset in degrees
	Phase float64

	// Amplitude is the power-on level in percent, used only with an AmplitudeController
	Amplitude float64

	// FSK holds the two frequencies SetFSKState selects between until
	// SetFSKFrequencies is called
	FSK [2]float64

	// Clock returns the current time; nil selects time.Now
	Clock func() time.Time

	// OnTickError, if not nil, is called by Run with every failed tick
	OnTickError func(error)
}

// DefaultConfig returns the power-on configuration: a 1 kHz sine at 50%
// on a 25 MHz reference
func DefaultConfig() Config {
	return Config{
		RefClock:  DefaultRefClock,
		Frequency: 1000,
		Waveform:  Sine,
		Phase:     0,
		Amplitude: 50,
		FSK:       [2]float64{1000, 2000},
	}
}

// engine is a time-driven behavior attached to the driver, *Sweep or *Modulation
type engine interface {
	tick(d *AD9833, now time.Time) error
}

// AD9833 is an AD9833 DDS with an optional amplitude controller.
//
// it is concurrent safe; operations and ticks are serialized on one lock and
// so behave as if issued from a single scheduling context.
type AD9833 struct {
	mu sync.Mutex

	conn   comm.SPIWriter
	amp    AmplitudeController
	refclk float64
	now    func() time.Time
	onErr  func(error)

	freq      RegisterPair
	phase     RegisterPair
	waveform  Waveform
	sleeping  bool
	amplitude float64
	fsk       [2]float64

	// engine is nil when idle
	engine engine
}

// NewAD9833 creates a new AD9833 and performs a full reset, leaving the chip
// outputting cfg.  amp may be nil if there is no digital potentiometer.
func NewAD9833(conn comm.SPIWriter, amp AmplitudeController, cfg Config) (*AD9833, error) {
	if cfg.RefClock == 0 {
		cfg.RefClock = DefaultRefClock
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if _, ok := waveformNames[cfg.Waveform]; !ok {
		return nil, fmt.Errorf("%w: unknown %v", util.ErrInvalidParameter, cfg.Waveform)
	}
	phase, err := WrapPhase(cfg.Phase)
	if err != nil {
		return nil, err
	}
	lim := FrequencyLimits(cfg.RefClock)
	for i, f := range cfg.FSK {
		if err := lim.Validate(fmt.Sprintf("FSK frequency %d (Hz)", i+1), f); err != nil {
			return nil, err
		}
	}
	d := &AD9833{
		conn:      conn,
		amp:       amp,
		refclk:    cfg.RefClock,
		now:       cfg.Clock,
		onErr:     cfg.OnTickError,
		waveform:  cfg.Waveform,
		amplitude: cfg.Amplitude,
		fsk:       cfg.FSK,
	}
	d.freq.reset(cfg.Frequency)
	d.phase.reset(phase)
	if err := d.reset(); err != nil {
		return d, err
	}
	return d, nil
}

// RefClock returns the reference clock in Hz
func (d *AD9833) RefClock() float64 {
	return d.refclk
}

// control is the control word for the current state with the given selectors
func (d *AD9833) control(freqReg, phaseReg int) Control {
	return Control{
		Waveform: d.waveform,
		FreqReg:  freqReg,
		PhaseReg: phaseReg,
		Sleep:    d.sleeping,
	}
}

// write sends words in order, stopping at the first failure
func (d *AD9833) write(words ...uint16) error {
	for _, w := range words {
		if err := d.conn.Write16(w); err != nil {
			return err
		}
	}
	return nil
}

// reset loads the current frequency, phase, waveform and amplitude into
// register 0 of each pair with the chip held in reset, then releases it.
func (d *AD9833) reset() error {
	hz := d.freq.Value()
	deg := d.phase.Value()
	freqWords, err := EncodeFrequency(hz, d.refclk, 0)
	if err != nil {
		return err
	}
	if d.amp != nil {
		if err = amplitudeLimits.Validate("amplitude (%)", d.amplitude); err != nil {
			return err
		}
	}
	ctl := d.control(0, 0)
	ctl.Reset = true
	if err = d.write(ctl.Word()); err != nil {
		return err
	}
	if err = d.write(freqWords...); err != nil {
		return err
	}
	if err = d.write(EncodePhase(deg, 0)); err != nil {
		return err
	}
	if d.amp != nil {
		if err = d.amp.SetAmplitude(d.amplitude); err != nil {
			return err
		}
	}
	ctl.Reset = false
	if err = d.write(ctl.Word()); err != nil {
		return err
	}
	d.freq.reset(hz)
	d.phase.reset(deg)
	d.engine = nil
	return nil
}

// swapFrequency loads hz into the idle frequency register and selects it
func (d *AD9833) swapFrequency(hz float64) error {
	words, err := EncodeFrequency(hz, d.refclk, d.freq.Inactive())
	if err != nil {
		return err
	}
	return d.freq.WriteThenSwap(hz, func(slot int) error {
		return d.write(append(words, d.control(slot, d.phase.Active()).Word())...)
	})
}

// swapPhase loads deg into the idle phase register and selects it.  The
// wrapped angle is what gets recorded.
func (d *AD9833) swapPhase(deg float64) error {
	deg, err := WrapPhase(deg)
	if err != nil {
		return err
	}
	return d.phase.WriteThenSwap(deg, func(slot int) error {
		return d.write(EncodePhase(deg, slot), d.control(d.freq.Active(), slot).Word())
	})
}

// writeAmplitude commands the amplitude controller and records the level
func (d *AD9833) writeAmplitude(pct float64) error {
	if d.amp == nil {
		return ErrNoAmplitudeControl
	}
	if err := d.amp.SetAmplitude(pct); err != nil {
		return err
	}
	d.amplitude = pct
	return nil
}

// cancel detaches the active engine, if any
func (d *AD9833) cancel() {
	switch e := d.engine.(type) {
	case *Sweep:
		log.Printf("ad9833: %v cancelled", e)
	case *Modulation:
		log.Printf("ad9833: %v stopped", e)
	}
	d.engine = nil
}

// Reset re-runs the power-on sequence with the current frequency, phase,
// waveform and amplitude.  Any sweep or modulation is cancelled.
func (d *AD9833) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancel()
	if err := d.reset(); err != nil {
		return err
	}
	log.Println("ad9833: reset complete")
	return nil
}

// SetWaveform configures the output shape
func (d *AD9833) SetWaveform(w Waveform) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := waveformNames[w]; !ok {
		return fmt.Errorf("%w: unknown %v", util.ErrInvalidParameter, w)
	}
	prev := d.waveform
	d.waveform = w
	if err := d.write(d.control(d.freq.Active(), d.phase.Active()).Word()); err != nil {
		d.waveform = prev
		return err
	}
	return nil
}

// GetWaveform returns the output shape
func (d *AD9833) GetWaveform() (Waveform, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.waveform, nil
}

// SetFrequency configures the output frequency in Hz.  An active sweep or
// modulation is cancelled.
func (d *AD9833) SetFrequency(hz float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.swapFrequency(hz); err != nil {
		return err
	}
	d.cancel()
	return nil
}

// GetFrequency returns the last frequency written to the chip, in Hz
func (d *AD9833) GetFrequency() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.freq.Value(), nil
}

// SetPhase configures the phase offset in degrees.  Any finite value is
// accepted and wrapped into [0, 360).  An active sweep or modulation is cancelled.
func (d *AD9833) SetPhase(deg float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.swapPhase(deg); err != nil {
		return err
	}
	d.cancel()
	return nil
}

// GetPhase returns the phase offset in degrees
func (d *AD9833) GetPhase() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phase.Value(), nil
}

// SetAmplitude configures the output level in percent of full scale.
// An active AM modulation is stopped.
func (d *AD9833) SetAmplitude(pct float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := amplitudeLimits.Validate("amplitude (%)", pct); err != nil {
		return err
	}
	if err := d.writeAmplitude(pct); err != nil {
		return err
	}
	if m, ok := d.engine.(*Modulation); ok && m.Type == ModAM {
		d.cancel()
	}
	return nil
}

// SetAmplitudeRaw writes a wiper code directly.  An active AM modulation is
// stopped.
func (d *AD9833) SetAmplitudeRaw(code uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.amp == nil {
		return ErrNoAmplitudeControl
	}
	if err := d.amp.SetWiper(code); err != nil {
		return err
	}
	d.amplitude = d.amp.Amplitude()
	if m, ok := d.engine.(*Modulation); ok && m.Type == ModAM {
		d.cancel()
	}
	return nil
}

// GetAmplitude returns the last commanded output level in percent
func (d *AD9833) GetAmplitude() (float64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.amp == nil {
		return 0, ErrNoAmplitudeControl
	}
	return d.amplitude, nil
}

// Sleep powers the DAC down (true) or up (false).  Register contents and
// any running engine are kept.
func (d *AD9833) Sleep(enable bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev := d.sleeping
	d.sleeping = enable
	if err := d.write(d.control(d.freq.Active(), d.phase.Active()).Word()); err != nil {
		d.sleeping = prev
		return err
	}
	log.Printf("ad9833: sleep mode %v", enable)
	return nil
}

// GetSleep returns true if the DAC is powered down
func (d *AD9833) GetSleep() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sleeping, nil
}

// StartSweep begins a sweep from start to end Hz over duration.  The start
// frequency is applied immediately.  Any modulation is cancelled, and a
// running sweep is restarted with the new parameters.
func (d *AD9833) StartSweep(start, end float64, duration time.Duration, typ SweepType) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &Sweep{Start: start, End: end, Duration: duration, Type: typ}
	if err := s.validate(d.refclk); err != nil {
		return err
	}
	if err := d.swapFrequency(start); err != nil {
		return err
	}
	d.cancel()
	s.began = d.now()
	d.engine = s
	log.Printf("ad9833: starting %v", s)
	return nil
}

// StopSweep detaches a running or completed sweep.  The frequency stays at
// the last value written.  It is a no-op when no sweep is attached.
func (d *AD9833) StopSweep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.engine.(*Sweep); ok {
		d.cancel()
	}
	return nil
}

// GetSweep returns a copy of the attached sweep and its state.
// The copy is the zero Sweep when the state is SweepIdle.
func (d *AD9833) GetSweep() (Sweep, SweepState) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.engine.(*Sweep); ok {
		return *s, s.State()
	}
	return Sweep{}, SweepIdle
}

// SetModulation starts AM or FM modulation at freq Hz with fractional depth.
// The amplitude (AM) or frequency (FM) in effect now is the center of the
// modulation.  ModFSK arms frequency shift keying without changing the output;
// ModNone is StopModulation.  Any sweep is cancelled.
func (d *AD9833) SetModulation(typ ModulationType, freq, depth float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch typ {
	case ModNone:
		d.stopModulation()
		return nil
	case ModFSK:
		if m, ok := d.engine.(*Modulation); ok && m.Type == ModFSK {
			return nil
		}
		d.cancel()
		d.engine = &Modulation{Type: ModFSK, fskState: d.freq.Value() == d.fsk[1]}
		log.Println("ad9833: FSK modulation armed")
		return nil
	case ModAM, ModFM:
	default:
		return fmt.Errorf("%w: unknown %v", util.ErrInvalidParameter, typ)
	}
	m := &Modulation{Type: typ, Frequency: freq, Depth: depth}
	if err := m.validate(); err != nil {
		return err
	}
	if typ == ModAM {
		if d.amp == nil {
			return ErrNoAmplitudeControl
		}
		m.base = d.amplitude
	} else {
		m.base = d.freq.Value()
		peak := m.base * (1 + depth)
		if err := FrequencyLimits(d.refclk).Validate("FM peak frequency (Hz)", peak); err != nil {
			return err
		}
	}
	d.cancel()
	m.began = d.now()
	d.engine = m
	log.Printf("ad9833: %v set", m)
	return nil
}

// StopModulation ends any modulation.  The amplitude and frequency stay at
// the last values written.
func (d *AD9833) StopModulation() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopModulation()
	return nil
}

func (d *AD9833) stopModulation() {
	if _, ok := d.engine.(*Modulation); ok {
		d.cancel()
	}
}

// GetModulation returns a copy of the active modulation.  The copy's Type
// is ModNone when no modulation is active.
func (d *AD9833) GetModulation() Modulation {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.engine.(*Modulation); ok {
		return *m
	}
	return Modulation{Type: ModNone}
}

// SetFSKFrequencies stores the two frequencies SetFSKState switches between.
// The output is not changed.
func (d *AD9833) SetFSKFrequencies(f1, f2 float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	lim := FrequencyLimits(d.refclk)
	if err := lim.Validate("FSK frequency 1 (Hz)", f1); err != nil {
		return err
	}
	if err := lim.Validate("FSK frequency 2 (Hz)", f2); err != nil {
		return err
	}
	d.fsk = [2]float64{f1, f2}
	log.Printf("ad9833: FSK frequencies set: %.2f Hz / %.2f Hz", f1, f2)
	return nil
}

// GetFSKFrequencies returns the two stored FSK frequencies
func (d *AD9833) GetFSKFrequencies() (float64, float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fsk[0], d.fsk[1]
}

// SetFSKState switches the output to the first (false) or second (true) FSK
// frequency immediately, arming FSK modulation if it is not active.  Any sweep
// or AM/FM modulation is cancelled.
func (d *AD9833) SetFSKState(state bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	hz := d.fsk[0]
	if state {
		hz = d.fsk[1]
	}
	if err := d.swapFrequency(hz); err != nil {
		return err
	}
	m, ok := d.engine.(*Modulation)
	if !ok || m.Type != ModFSK {
		d.cancel()
		m = &Modulation{Type: ModFSK}
		d.engine = m
	}
	m.fskState = state
	return nil
}

// GetFSKState returns the selected FSK frequency, false for the first.
// It is false when FSK is not active.
func (d *AD9833) GetFSKState() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.engine.(*Modulation); ok && m.Type == ModFSK {
		return m.fskState, nil
	}
	return false, nil
}

// Tick advances the active sweep or modulation to now.  It does nothing when
// idle.  On error the engine is not advanced; the next tick recomputes its
// target from now, so nothing stale is ever written.
func (d *AD9833) Tick(now time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.engine == nil {
		return nil
	}
	return d.engine.tick(d, now)
}

// Run calls Tick every period until ctx is done.  Tick errors are logged
// and do not end the loop.
func (d *AD9833) Run(ctx context.Context, period time.Duration) error {
	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			if err := d.Tick(d.now()); err != nil {
				log.Println("ad9833: tick:", err)
				if d.onErr != nil {
					d.onErr(err)
				}
			}
		}
	}
}

// SweepStatus is the JSON view of an attached sweep
type SweepStatus struct {
	State    string  `json:"state"`
	Type     string  `json:"type"`
	Start    float64 `json:"start"`
	End      float64 `json:"end"`
	Duration float64 `json:"durationMs"`
	Progress float64 `json:"progress"`
}

// ModulationStatus is the JSON view of an active modulation
type ModulationStatus struct {
	Type      string  `json:"type"`
	Frequency float64 `json:"frequency,omitempty"`
	Depth     float64 `json:"depth,omitempty"`
	FSKState  bool    `json:"fskState"`
}

// Status is a snapshot of the full generator state
type Status struct {
	Waveform  string  `json:"waveform"`
	Frequency float64 `json:"frequency"`
	Phase     float64 `json:"phase"`

	// Amplitude is nil without a digital potentiometer
	Amplitude *float64 `json:"amplitude"`

	Sleeping       bool              `json:"sleeping"`
	RefClock       float64           `json:"refClock"`
	FSKFrequencies [2]float64        `json:"fskFrequencies"`
	Engine         string            `json:"engine"`
	Sweep          *SweepStatus      `json:"sweep,omitempty"`
	Modulation     *ModulationStatus `json:"modulation,omitempty"`
}

// Status returns a snapshot of the generator
func (d *AD9833) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	st := Status{
		Waveform:       d.waveform.String(),
		Frequency:      d.freq.Value(),
		Phase:          d.phase.Value(),
		Sleeping:       d.sleeping,
		RefClock:       d.refclk,
		FSKFrequencies: d.fsk,
		Engine:         "idle",
	}
	if d.amp != nil {
		a := d.amplitude
		st.Amplitude = &a
	}
	switch e := d.engine.(type) {
	case *Sweep:
		st.Engine = "sweep"
		st.Sweep = &SweepStatus{
			State:    e.State().String(),
			Type:     e.Type.String(),
			Start:    e.Start,
			End:      e.End,
			Duration: float64(e.Duration) / float64(time.Millisecond),
			Progress: e.Fraction(d.now()),
		}
	case *Modulation:
		st.Engine = "modulation"
		st.Modulation = &ModulationStatus{
			Type:      e.Type.String(),
			Frequency: e.Frequency,
			Depth:     e.Depth,
			FSKState:  e.fskState,
		}
	}
	return st
}
