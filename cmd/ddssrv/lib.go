package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/host/v3"

	"github.com/nasa-jpl/ddsgen/analogdevices"
	"github.com/nasa-jpl/ddsgen/comm"
	"github.com/nasa-jpl/ddsgen/generichttp"
	"github.com/nasa-jpl/ddsgen/generichttp/dds"
	"github.com/nasa-jpl/ddsgen/microchip"
	"github.com/nasa-jpl/ddsgen/server/middleware/locker"
)

// Digipot holds the setup of the amplitude control potentiometer
type Digipot struct {
	// Enable fits the digipot; without it amplitude routes return errors
	Enable bool `koanf:"Enable" yaml:"Enable"`

	// SPI is used with the periph transport
	SPI comm.SPIConfig `koanf:"SPI" yaml:"SPI"`

	// CS is the chip select index used with the bridge and mock transports
	CS int `koanf:"CS" yaml:"CS"`
}

// Config is a struct that holds the initialization parameters for the
// generator and its HTTP interface.  It is populated by koanf.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Endpoint is the URL stem the generator's routes are served under
	Endpoint string `koanf:"Endpoint" yaml:"Endpoint"`

	// Transport is one of "periph" (a local SPI controller), "bridge"
	// (a microcontroller over serial or TCP), or "mock"
	Transport string `koanf:"Transport" yaml:"Transport"`

	// Mock forces the mock transport regardless of Transport
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// TickPeriod is the update interval of sweeps and modulation
	TickPeriod time.Duration `koanf:"TickPeriod" yaml:"TickPeriod"`

	RefClock  float64 `koanf:"RefClock" yaml:"RefClock"`
	Frequency float64 `koanf:"Frequency" yaml:"Frequency"`
	Waveform  string  `koanf:"Waveform" yaml:"Waveform"`
	Phase     float64 `koanf:"Phase" yaml:"Phase"`
	Amplitude float64 `koanf:"Amplitude" yaml:"Amplitude"`

	// SPI locates the AD9833 with the periph transport
	SPI comm.SPIConfig `koanf:"SPI" yaml:"SPI"`

	// CS is the AD9833 chip select index used with the bridge and mock transports
	CS int `koanf:"CS" yaml:"CS"`

	Digipot Digipot `koanf:"Digipot" yaml:"Digipot"`

	Bridge comm.BridgeConfig `koanf:"Bridge" yaml:"Bridge"`
}

// DefaultConfig is the configuration used where the file is silent
func DefaultConfig() Config {
	d := analogdevices.DefaultConfig()
	return Config{
		Addr:       ":8000",
		Endpoint:   "dds",
		Transport:  "periph",
		TickPeriod: 10 * time.Millisecond,
		RefClock:   d.RefClock,
		Frequency:  d.Frequency,
		Waveform:   d.Waveform.String(),
		Phase:      d.Phase,
		Amplitude:  d.Amplitude,
		SPI:        comm.SPIConfig{Port: "/dev/spidev0.0", Mode: 2, MaxSpeed: 1000000},
		CS:         0,
		Digipot: Digipot{
			SPI: comm.SPIConfig{Port: "/dev/spidev0.1", Mode: 0, MaxSpeed: 1000000},
			CS:  1,
		},
		Bridge: comm.BridgeConfig{Addr: "/dev/ttyUSB0", Serial: true, Baud: 115200, Timeout: time.Second},
	}
}

// Hardware is the set of connected devices built from a Config
type Hardware struct {
	Gen *analogdevices.AD9833
	Pot *microchip.MCP41010

	// Mock is non-nil when the mock transport is used
	Mock *comm.MockBus

	closers []io.Closer
}

// Close releases every port held by the hardware
func (h *Hardware) Close() error {
	var first error
	for _, c := range h.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// transport returns SPIWriters for the AD9833 and, if enabled, the digipot
func transport(c Config, h *Hardware) (gen comm.SPIWriter, pot comm.SPIWriter, err error) {
	typ := strings.ToLower(c.Transport)
	if c.Mock {
		typ = "mock"
	}
	switch typ {
	case "periph", "spi", "":
		if _, err = host.Init(); err != nil {
			return nil, nil, fmt.Errorf("loading periph host drivers: %w", err)
		}
		bus := &comm.Bus{}
		dev, closer, err := comm.ConnectSPI(bus, c.SPI)
		if err != nil {
			return nil, nil, err
		}
		h.closers = append(h.closers, closer)
		gen = dev
		if c.Digipot.Enable {
			pdev, pcloser, err := comm.ConnectSPI(bus, c.Digipot.SPI)
			if err != nil {
				return nil, nil, err
			}
			h.closers = append(h.closers, pcloser)
			pot = pdev
		}
	case "bridge":
		b := comm.NewBridge(c.Bridge)
		h.closers = append(h.closers, b)
		gen = b.Device(c.CS)
		if c.Digipot.Enable {
			pot = b.Device(c.Digipot.CS)
		}
	case "mock":
		h.Mock = comm.NewMockBus()
		gen = h.Mock.Device(c.CS)
		if c.Digipot.Enable {
			pot = h.Mock.Device(c.Digipot.CS)
		}
	default:
		return nil, nil, fmt.Errorf("transport %q not understood", c.Transport)
	}
	return gen, pot, nil
}

// BuildHardware connects to the generator and performs its reset.
// onTickErr is passed to the generator's tick loop.
func BuildHardware(c Config, onTickErr func(error)) (*Hardware, error) {
	wave, err := analogdevices.ParseWaveform(c.Waveform)
	if err != nil {
		return nil, err
	}
	h := &Hardware{}
	ddsConn, potConn, err := transport(c, h)
	if err != nil {
		h.Close()
		return nil, err
	}
	var amp analogdevices.AmplitudeController
	if potConn != nil {
		h.Pot = microchip.NewMCP41010(potConn)
		amp = h.Pot
	}
	cfg := analogdevices.DefaultConfig()
	cfg.RefClock = c.RefClock
	cfg.Frequency = c.Frequency
	cfg.Waveform = wave
	cfg.Phase = c.Phase
	cfg.Amplitude = c.Amplitude
	cfg.OnTickError = onTickErr
	h.Gen, err = analogdevices.NewAD9833(ddsConn, amp, cfg)
	if err != nil {
		h.Close()
		return nil, fmt.Errorf("resetting AD9833: %w", err)
	}
	return h, nil
}

// Metrics are the prometheus collectors describing a generator
type Metrics struct {
	TickErrors prometheus.Counter
	collectors []prometheus.Collector
}

// NewMetrics creates gauges reading the generator state and a counter for
// failed ticks, and registers them with reg
func NewMetrics(reg prometheus.Registerer, gen *analogdevices.AD9833) (*Metrics, error) {
	m := &Metrics{
		TickErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Subsystem: "dds",
			Name:      "tick_errors_total",
			Help:      "Sweep and modulation updates which failed to reach the chip.",
		}),
	}
	m.collectors = []prometheus.Collector{
		m.TickErrors,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "dds",
			Name:      "frequency_hertz",
			Help:      "Output frequency last written to the AD9833.",
		}, func() float64 {
			f, _ := gen.GetFrequency()
			return f
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "dds",
			Name:      "amplitude_percent",
			Help:      "Output level as a percentage of full scale.",
		}, func() float64 {
			a, _ := gen.GetAmplitude()
			return a
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Subsystem: "dds",
			Name:      "sweep_running",
			Help:      "1 while a frequency sweep is running.",
		}, func() float64 {
			if _, st := gen.GetSweep(); st == analogdevices.SweepRunning {
				return 1
			}
			return 0
		}),
	}
	for _, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// BuildMux mounts the HTTP interface to gen under c.Endpoint, with a lock,
// and serves the route list at /endpoints and metrics from gatherer at /metrics.
func BuildMux(c Config, gen *analogdevices.AD9833, gatherer prometheus.Gatherer) chi.Router {
	root := chi.NewRouter()
	root.Use(middleware.Logger)

	httper := dds.NewHTTPGenerator(gen)
	lock := locker.New()
	locker.Inject(httper, lock)

	hndlS := generichttp.SubMuxSanitize(c.Endpoint)
	supergraph := map[string][]string{hndlS: httper.RT().Endpoints()}

	r := chi.NewRouter()
	r.Use(lock.Check)
	httper.RT().Bind(r)
	root.Mount(hndlS, r)

	root.Get("/endpoints", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(supergraph)
		if err != nil {
			log.Println(err)
		}
	})
	root.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return root
}
