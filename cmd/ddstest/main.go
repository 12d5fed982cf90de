// ddstest runs a scripted sequence of operations against an AD9833, for bench
// checkout of new boards with a scope on the output.
//
// The program is a YAML file:
//
//	Transport: mock
//	Digipot: true
//	Steps:
//	  - op: waveform
//	    arg: triangle
//	  - op: frequency
//	    args: [1000]
//	    wait: 2s
//	  - op: sweep
//	    arg: log
//	    args: [100, 10000, 5000]
//	    wait: 6s
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-yaml/yaml"
	"github.com/theckman/yacspin"
	"periph.io/x/host/v3"

	"github.com/nasa-jpl/ddsgen/analogdevices"
	"github.com/nasa-jpl/ddsgen/comm"
	"github.com/nasa-jpl/ddsgen/microchip"
	"github.com/nasa-jpl/ddsgen/util"
)

// Step is one operation in a program
type Step struct {
	// Op names the operation, see ops
	Op string `yaml:"op"`

	// Arg holds a name, e.g. a waveform, sweep type, or modulation type
	Arg string `yaml:"arg"`

	// Args holds the numeric arguments
	Args []float64 `yaml:"args"`

	// Wait is how long to let the output run after the step, e.g. "1.5s"
	Wait string `yaml:"wait"`
}

// Program is a test sequence and the hardware to run it on
type Program struct {
	// Transport is "mock", "bridge", or "periph"
	Transport string `yaml:"Transport"`

	Bridge comm.BridgeConfig `yaml:"Bridge"`

	SPI comm.SPIConfig `yaml:"SPI"`

	// Digipot fits an MCP41010 on chip select 1 (mock, bridge) or PotSPI (periph)
	Digipot bool           `yaml:"Digipot"`
	PotSPI  comm.SPIConfig `yaml:"PotSPI"`

	// TickPeriod is the sweep and modulation update interval, default 10ms
	TickPeriod string `yaml:"TickPeriod"`

	Steps []Step `yaml:"Steps"`
}

// LoadProgram reads a Program from a yaml file
func LoadProgram(path string) (Program, error) {
	p := Program{Transport: "mock", TickPeriod: "10ms"}
	f, err := os.Open(path)
	if err != nil {
		return p, err
	}
	defer f.Close()
	err = yaml.NewDecoder(f).Decode(&p)
	return p, err
}

// connect opens the transport named by p.  The closers must be closed when
// the program is done with the hardware.
func connect(p Program) (dds, pot comm.SPIWriter, mock *comm.MockBus, closers []io.Closer, err error) {
	switch strings.ToLower(p.Transport) {
	case "mock", "":
		mock = comm.NewMockBus()
		dds = mock.Device(0)
		if p.Digipot {
			pot = mock.Device(1)
		}
	case "bridge":
		b := comm.NewBridge(p.Bridge)
		closers = append(closers, b)
		dds = b.Device(0)
		if p.Digipot {
			pot = b.Device(1)
		}
	case "periph":
		if _, err = host.Init(); err != nil {
			return
		}
		bus := &comm.Bus{}
		var c io.Closer
		if dds, c, err = comm.ConnectSPI(bus, p.SPI); err != nil {
			return
		}
		closers = append(closers, c)
		if p.Digipot {
			if pot, c, err = comm.ConnectSPI(bus, p.PotSPI); err != nil {
				return
			}
			closers = append(closers, c)
		}
	default:
		err = fmt.Errorf("transport %q not understood", p.Transport)
	}
	return
}

// arity checks a step has at least n numeric arguments
func (s Step) arity(n int) error {
	if len(s.Args) < n {
		return fmt.Errorf("%w: %s needs %d args, got %d", util.ErrInvalidParameter, s.Op, n, len(s.Args))
	}
	return nil
}

var wiperLimits = util.Limiter{Min: 0, Max: microchip.MaxWiper}

// Execute performs one step on gen
func Execute(gen *analogdevices.AD9833, s Step) error {
	op := strings.ToLower(s.Op)
	need := map[string]int{
		"frequency": 1, "phase": 1, "amplitude": 1, "amplitude-raw": 1,
		"sleep": 1, "sweep": 3, "modulation": 2, "fsk-frequencies": 2, "fsk-state": 1,
	}
	if err := s.arity(need[op]); err != nil {
		return err
	}
	switch op {
	case "waveform":
		w, err := analogdevices.ParseWaveform(s.Arg)
		if err != nil {
			return err
		}
		return gen.SetWaveform(w)
	case "frequency":
		return gen.SetFrequency(s.Args[0])
	case "phase":
		return gen.SetPhase(s.Args[0])
	case "amplitude":
		return gen.SetAmplitude(s.Args[0])
	case "amplitude-raw":
		code := s.Args[0]
		if code != math.Trunc(code) {
			return fmt.Errorf("%w: wiper code %g is not an integer", util.ErrInvalidParameter, code)
		}
		if err := wiperLimits.Validate("wiper code", code); err != nil {
			return err
		}
		return gen.SetAmplitudeRaw(uint8(code))
	case "sleep":
		return gen.Sleep(s.Args[0] != 0)
	case "reset":
		return gen.Reset()
	case "sweep":
		typ, err := analogdevices.ParseSweepType(s.Arg)
		if err != nil {
			return err
		}
		return gen.StartSweep(s.Args[0], s.Args[1], util.MillisToDuration(s.Args[2]), typ)
	case "stop-sweep":
		return gen.StopSweep()
	case "modulation":
		typ, err := analogdevices.ParseModulationType(s.Arg)
		if err != nil {
			return err
		}
		return gen.SetModulation(typ, s.Args[0], s.Args[1])
	case "stop-modulation":
		return gen.StopModulation()
	case "fsk-frequencies":
		return gen.SetFSKFrequencies(s.Args[0], s.Args[1])
	case "fsk-state":
		return gen.SetFSKState(s.Args[0] != 0)
	}
	return fmt.Errorf("%w: unknown op %q", util.ErrInvalidParameter, s.Op)
}

// wait lets the output run for d, with a spinner showing the live frequency
// while a sweep is running
func wait(gen *analogdevices.AD9833, d time.Duration) error {
	if _, st := gen.GetSweep(); st != analogdevices.SweepRunning {
		time.Sleep(d)
		return nil
	}
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:     100 * time.Millisecond,
		CharSet:       yacspin.CharSets[14],
		Suffix:        " sweeping",
		StopCharacter: "✓",
		StopColors:    []string{"fgGreen"},
	})
	if err != nil {
		return err
	}
	if err = spinner.Start(); err != nil {
		return err
	}
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		f, _ := gen.GetFrequency()
		spinner.Message(fmt.Sprintf("%.2f Hz", f))
		if _, st := gen.GetSweep(); st != analogdevices.SweepRunning {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	f, _ := gen.GetFrequency()
	spinner.StopMessage(fmt.Sprintf("%.2f Hz", f))
	return spinner.Stop()
}

func main() {
	if len(os.Args) != 2 {
		fmt.Println("usage: ddstest <program.yml>")
		os.Exit(1)
	}
	p, err := LoadProgram(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	period, err := time.ParseDuration(p.TickPeriod)
	if err != nil {
		log.Fatal(err)
	}
	ddsConn, potConn, mock, closers, err := connect(p)
	if err != nil {
		log.Fatal(err)
	}
	closeAll := func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				log.Println(err)
			}
		}
	}
	defer closeAll()
	var amp analogdevices.AmplitudeController
	if potConn != nil {
		amp = microchip.NewMCP41010(potConn)
	}
	gen, err := analogdevices.NewAD9833(ddsConn, amp, analogdevices.DefaultConfig())
	if err != nil {
		log.Println(err)
		closeAll()
		os.Exit(1)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go gen.Run(ctx, period)

	failures := 0
	for i, s := range p.Steps {
		desc := fmt.Sprintf("[%d] %s %s %v", i+1, s.Op, s.Arg, s.Args)
		if err := Execute(gen, s); err != nil {
			failures++
			color.Red("✗ %s: %v", desc, err)
			continue
		}
		color.Green("✓ %s", desc)
		if s.Wait == "" {
			continue
		}
		d, err := time.ParseDuration(s.Wait)
		if err != nil {
			color.Yellow("  bad wait %q: %v", s.Wait, err)
			continue
		}
		if err := wait(gen, d); err != nil {
			log.Println(err)
		}
	}
	if mock != nil {
		color.Cyan("%d SPI transactions recorded", len(mock.Writes()))
	}
	if failures > 0 {
		color.Red("%d of %d steps failed", failures, len(p.Steps))
		cancel()
		closeAll()
		os.Exit(1)
	}
}
