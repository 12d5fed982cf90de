// Package microchip provides an interface to Microchip MCP41xxx single
// channel SPI digital potentiometers, used as the amplitude control after
// a DDS output.
package microchip

import (
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/nasa-jpl/ddsgen/comm"
	"github.com/nasa-jpl/ddsgen/util"
)

const (
	// command bytes, the first byte of every 16-bit transaction
	cmdWritePot0 = 0x11
	cmdShutdown0 = 0x21

	// MaxWiper is the full-scale wiper code
	MaxWiper = 255

	// PowerOnWiper is the mid-scale code the pot holds at power on
	PowerOnWiper = 128
)

var amplitudeLimits = util.Limiter{Min: 0, Max: 100}

// WiperCode converts a percentage of full scale to a wiper code
func WiperCode(pct float64) (uint8, error) {
	if err := amplitudeLimits.Validate("amplitude (%)", pct); err != nil {
		return 0, err
	}
	return uint8(math.Round(pct / 100 * MaxWiper)), nil
}

// Percent converts a wiper code to a percentage of full scale
func Percent(code uint8) float64 {
	return float64(code) / MaxWiper * 100
}

// MCP41010 is a 10 kOhm, 8-bit, single channel digital potentiometer.
// It is write-only; the wiper position is remembered from the last write.
type MCP41010 struct {
	sync.Mutex
	conn     comm.SPIWriter
	wiper    uint8
	shutdown bool
}

// NewMCP41010 creates a new pot on conn.  No transaction is made; the wiper
// is assumed to be at its power-on position.
func NewMCP41010(conn comm.SPIWriter) *MCP41010 {
	return &MCP41010{conn: conn, wiper: PowerOnWiper}
}

// SetWiper writes a raw wiper code.  This also brings the pot out of shutdown.
func (m *MCP41010) SetWiper(code uint8) error {
	m.Lock()
	defer m.Unlock()
	if err := m.conn.Write16(cmdWritePot0<<8 | uint16(code)); err != nil {
		return err
	}
	m.wiper = code
	m.shutdown = false
	return nil
}

// SetAmplitude sets the wiper to pct percent of full scale, [0, 100]
func (m *MCP41010) SetAmplitude(pct float64) error {
	code, err := WiperCode(pct)
	if err != nil {
		return err
	}
	return m.SetWiper(code)
}

// Wiper returns the last wiper code written
func (m *MCP41010) Wiper() uint8 {
	m.Lock()
	defer m.Unlock()
	return m.wiper
}

// Amplitude returns the wiper position as a percentage of full scale
func (m *MCP41010) Amplitude() float64 {
	return Percent(m.Wiper())
}

// Shutdown opens terminal A and shorts the wiper to terminal B, muting the
// output.  The wiper register is kept; the next SetWiper resumes.
func (m *MCP41010) Shutdown() error {
	m.Lock()
	defer m.Unlock()
	if err := m.conn.Write16(cmdShutdown0 << 8); err != nil {
		return err
	}
	m.shutdown = true
	log.Println("mcp41010: shutdown")
	return nil
}

// IsShutdown returns true if the pot was shut down and not written since
func (m *MCP41010) IsShutdown() bool {
	m.Lock()
	defer m.Unlock()
	return m.shutdown
}

func (m *MCP41010) String() string {
	return fmt.Sprintf("MCP41010 wiper=%d (%.1f%%)", m.Wiper(), m.Amplitude())
}
