package microchip_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nasa-jpl/ddsgen/comm"
	"github.com/nasa-jpl/ddsgen/microchip"
	"github.com/nasa-jpl/ddsgen/util"
)

func ExampleWiperCode() {
	for _, pct := range []float64{0, 25, 50, 100} {
		code, _ := microchip.WiperCode(pct)
		fmt.Println(pct, code)
	}
	// Output:
	// 0 0
	// 25 64
	// 50 128
	// 100 255
}

func TestSetAmplitudeWritesCommandAndCode(t *testing.T) {
	bus := comm.NewMockBus()
	pot := microchip.NewMCP41010(bus.Device(1))
	if err := pot.SetAmplitude(50); err != nil {
		t.Fatal(err)
	}
	w := bus.WritesTo(1)
	if len(w) != 1 || w[0] != 0x1180 {
		t.Errorf("expected one write of 0x1180, got %04X", w)
	}
	if pot.Wiper() != 128 {
		t.Errorf("expected wiper 128, got %d", pot.Wiper())
	}
}

func TestSetAmplitudeIsIdempotent(t *testing.T) {
	bus := comm.NewMockBus()
	pot := microchip.NewMCP41010(bus.Device(1))
	pot.SetAmplitude(30)
	pot.SetAmplitude(30)
	w := bus.WritesTo(1)
	if len(w) != 2 || w[0] != w[1] {
		t.Errorf("expected two identical writes, got %04X", w)
	}
}

func TestSetAmplitudeOutOfRangeWritesNothing(t *testing.T) {
	bus := comm.NewMockBus()
	pot := microchip.NewMCP41010(bus.Device(1))
	for _, pct := range []float64{-1, 100.5, 150} {
		err := pot.SetAmplitude(pct)
		if !errors.Is(err, util.ErrInvalidParameter) {
			t.Errorf("amplitude %g: expected invalid parameter, got %v", pct, err)
		}
	}
	if n := len(bus.Writes()); n != 0 {
		t.Errorf("expected no writes, got %d", n)
	}
	if pot.Wiper() != microchip.PowerOnWiper {
		t.Errorf("wiper moved to %d", pot.Wiper())
	}
}

func TestFailedWriteKeepsWiper(t *testing.T) {
	bus := comm.NewMockBus()
	pot := microchip.NewMCP41010(bus.Device(1))
	bus.FailNext(1)
	err := pot.SetWiper(7)
	if !errors.Is(err, comm.ErrTransportFailure) {
		t.Fatalf("expected transport failure, got %v", err)
	}
	if pot.Wiper() != microchip.PowerOnWiper {
		t.Errorf("wiper changed to %d after failed write", pot.Wiper())
	}
}

func TestShutdownThenResume(t *testing.T) {
	bus := comm.NewMockBus()
	pot := microchip.NewMCP41010(bus.Device(1))
	if err := pot.Shutdown(); err != nil {
		t.Fatal(err)
	}
	if !pot.IsShutdown() {
		t.Error("expected shutdown state")
	}
	pot.SetWiper(10)
	if pot.IsShutdown() {
		t.Error("expected wiper write to clear shutdown")
	}
	w := bus.WritesTo(1)
	if len(w) != 2 || w[0] != 0x2100 || w[1] != 0x110A {
		t.Errorf("expected 2100 110A, got %04X", w)
	}
}

func TestPercentRoundTrip(t *testing.T) {
	for code := 0; code <= microchip.MaxWiper; code++ {
		got, err := microchip.WiperCode(microchip.Percent(uint8(code)))
		if err != nil {
			t.Fatal(err)
		}
		if int(got) != code {
			t.Errorf("code %d came back as %d", code, got)
		}
	}
}
