// Package dds provides a generic HTTP interface to direct digital synthesis
// waveform generators
package dds

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nasa-jpl/ddsgen/analogdevices"
	"github.com/nasa-jpl/ddsgen/generichttp"
	"github.com/nasa-jpl/ddsgen/util"
)

// Generator is a model for a basic DDS
type Generator interface {
	// SetWaveform configures the output shape
	SetWaveform(analogdevices.Waveform) error

	// GetWaveform returns the output shape
	GetWaveform() (analogdevices.Waveform, error)

	// SetFrequency configures the output frequency in Hz
	SetFrequency(float64) error

	// GetFrequency returns the output frequency in Hz
	GetFrequency() (float64, error)

	// SetPhase configures the phase offset in degrees
	SetPhase(float64) error

	// GetPhase returns the phase offset in degrees
	GetPhase() (float64, error)
}

// Amplituder is a DDS with output level control
type Amplituder interface {
	// SetAmplitude sets the level in percent of full scale
	SetAmplitude(float64) error

	// GetAmplitude returns the level in percent of full scale
	GetAmplitude() (float64, error)

	// SetAmplitudeRaw writes a raw wiper code
	SetAmplitudeRaw(uint8) error
}

// PowerController is a DDS which can sleep and be reset
type PowerController interface {
	// Sleep powers the output down (true) or up (false)
	Sleep(bool) error

	// GetSleep returns true if the output is powered down
	GetSleep() (bool, error)

	// Reset re-runs the power-on sequence
	Reset() error
}

// Sweeper is a DDS which can sweep its frequency
type Sweeper interface {
	StartSweep(start, end float64, duration time.Duration, typ analogdevices.SweepType) error
	StopSweep() error
	GetSweep() (analogdevices.Sweep, analogdevices.SweepState)
}

// Modulator is a DDS with AM, FM, and FSK modulation
type Modulator interface {
	SetModulation(typ analogdevices.ModulationType, freq, depth float64) error
	StopModulation() error
	GetModulation() analogdevices.Modulation
	SetFSKFrequencies(f1, f2 float64) error
	GetFSKFrequencies() (float64, float64)
	SetFSKState(bool) error
	GetFSKState() (bool, error)
}

// Statuser is a DDS which can report its full state
type Statuser interface {
	Status() analogdevices.Status
}

// HTTPGenerator adds routes for basic DDS operation to a table
func HTTPGenerator(g Generator, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/waveform"}] = GetWaveform(g)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/waveform"}] = SetWaveform(g)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/frequency"}] = generichttp.GetFloat(g.GetFrequency)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/frequency"}] = generichttp.SetFloat(g.SetFrequency)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/phase"}] = generichttp.GetFloat(g.GetPhase)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/phase"}] = generichttp.SetFloat(g.SetPhase)
}

// HTTPAmplitude adds routes for amplitude control to a table
func HTTPAmplitude(a Amplituder, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/amplitude"}] = generichttp.GetFloat(a.GetAmplitude)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/amplitude"}] = generichttp.SetFloat(a.SetAmplitude)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/amplitude-raw"}] = SetAmplitudeRaw(a)
}

// HTTPPower adds routes for sleep and reset to a table
func HTTPPower(p PowerController, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/sleep"}] = generichttp.GetBool(p.GetSleep)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/sleep"}] = generichttp.SetBool(p.Sleep)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/reset"}] = generichttp.Do(p.Reset)
}

// HTTPSweep adds routes for frequency sweeps to a table
func HTTPSweep(s Sweeper, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/sweep"}] = GetSweep(s)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/sweep/start"}] = StartSweep(s)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/sweep/stop"}] = generichttp.Do(s.StopSweep)
}

// HTTPModulation adds routes for modulation to a table
func HTTPModulation(m Modulator, table generichttp.RouteTable) {
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/modulation"}] = GetModulation(m)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/modulation"}] = SetModulation(m)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/modulation/stop"}] = generichttp.Do(m.StopModulation)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/fsk/frequencies"}] = GetFSKFrequencies(m)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/fsk/frequencies"}] = SetFSKFrequencies(m)
	table[generichttp.MethodPath{Method: http.MethodGet, Path: "/fsk/state"}] = generichttp.GetBool(m.GetFSKState)
	table[generichttp.MethodPath{Method: http.MethodPost, Path: "/fsk/state"}] = generichttp.SetBool(m.SetFSKState)
}

// GetWaveform returns an HTTP handlerfunc that replies with the waveform name
func GetWaveform(g Generator) http.HandlerFunc {
	return generichttp.GetString(func() (string, error) {
		w, err := g.GetWaveform()
		return w.String(), err
	})
}

// SetWaveform returns an HTTP handlerfunc that sets the waveform by name
func SetWaveform(g Generator) http.HandlerFunc {
	return generichttp.SetString(func(s string) error {
		w, err := analogdevices.ParseWaveform(s)
		if err != nil {
			return err
		}
		return g.SetWaveform(w)
	})
}

// SetAmplitudeRaw returns an HTTP handlerfunc that writes a wiper code from {"int": code}
func SetAmplitudeRaw(a Amplituder) http.HandlerFunc {
	return generichttp.SetInt(func(i int) error {
		if i < 0 || i > 255 {
			return fmt.Errorf("%w: wiper code %d outside [0, 255]", util.ErrInvalidParameter, i)
		}
		return a.SetAmplitudeRaw(uint8(i))
	})
}

type sweepRequest struct {
	Start float64 `json:"start"`

	End float64 `json:"end"`

	DurationMs float64 `json:"durationMs"`

	// Type is LINEAR or LOGARITHMIC, empty for LINEAR
	Type string `json:"type"`
}

type sweepReply struct {
	sweepRequest
	State string `json:"state"`
}

// StartSweep returns an HTTP handlerfunc that starts a sweep
func StartSweep(s Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sweepRequest
		if !generichttp.DecodeBody(w, r, &req) {
			return
		}
		typ, err := analogdevices.ParseSweepType(req.Type)
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		err = s.StartSweep(req.Start, req.End, util.MillisToDuration(req.DurationMs), typ)
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetSweep returns an HTTP handlerfunc that replies with the sweep parameters and state
func GetSweep(s Sweeper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw, st := s.GetSweep()
		reply := sweepReply{State: st.String()}
		if st != analogdevices.SweepIdle {
			reply.sweepRequest = sweepRequest{
				Start:      sw.Start,
				End:        sw.End,
				DurationMs: float64(sw.Duration) / float64(time.Millisecond),
				Type:       sw.Type.String(),
			}
		}
		generichttp.EncodeJSON(w, reply)
	}
}

type modulationRequest struct {
	// Type is NONE, AM, FM, or FSK
	Type string `json:"type"`

	Frequency float64 `json:"frequency"`

	Depth float64 `json:"depth"`
}

// SetModulation returns an HTTP handlerfunc that starts or changes modulation
func SetModulation(m Modulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req modulationRequest
		if !generichttp.DecodeBody(w, r, &req) {
			return
		}
		typ, err := analogdevices.ParseModulationType(req.Type)
		if err != nil {
			generichttp.Error(w, err)
			return
		}
		if err = m.SetModulation(typ, req.Frequency, req.Depth); err != nil {
			generichttp.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetModulation returns an HTTP handlerfunc that replies with the active modulation
func GetModulation(m Modulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mod := m.GetModulation()
		generichttp.EncodeJSON(w, modulationRequest{
			Type:      mod.Type.String(),
			Frequency: mod.Frequency,
			Depth:     mod.Depth,
		})
	}
}

type fskPair struct {
	F1 float64 `json:"f1"`
	F2 float64 `json:"f2"`
}

// SetFSKFrequencies returns an HTTP handlerfunc that stores the FSK frequencies from {"f1", "f2"}
func SetFSKFrequencies(m Modulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req fskPair
		if !generichttp.DecodeBody(w, r, &req) {
			return
		}
		if err := m.SetFSKFrequencies(req.F1, req.F2); err != nil {
			generichttp.Error(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// GetFSKFrequencies returns an HTTP handlerfunc that replies with the FSK frequencies
func GetFSKFrequencies(m Modulator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f1, f2 := m.GetFSKFrequencies()
		generichttp.EncodeJSON(w, fskPair{F1: f1, F2: f2})
	}
}

// GetStatus returns an HTTP handlerfunc that replies with the full generator state
func GetStatus(s Statuser) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.EncodeJSON(w, s.Status())
	}
}

// HTTPDDS is a type that allows setting up a DDS satisfying any combination
// of the interfaces in this package to an HTTP interface
type HTTPDDS struct {
	g Generator

	RouteTable generichttp.RouteTable
}

// NewHTTPGenerator sets up an HTTP interface to a DDS
func NewHTTPGenerator(g Generator) HTTPDDS {
	w := HTTPDDS{g: g}
	rt := generichttp.RouteTable{}
	HTTPGenerator(g, rt)
	if a, ok := (g).(Amplituder); ok {
		HTTPAmplitude(a, rt)
	}
	if p, ok := (g).(PowerController); ok {
		HTTPPower(p, rt)
	}
	if s, ok := (g).(Sweeper); ok {
		HTTPSweep(s, rt)
	}
	if m, ok := (g).(Modulator); ok {
		HTTPModulation(m, rt)
	}
	if s, ok := (g).(Statuser); ok {
		rt[generichttp.MethodPath{Method: http.MethodGet, Path: "/status"}] = GetStatus(s)
	}
	w.RouteTable = rt
	return w
}

// RT satisfies generichttp.HTTPer
func (h HTTPDDS) RT() generichttp.RouteTable {
	return h.RouteTable
}
