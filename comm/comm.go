/*Package comm provides interfaces and embeddable types for communication with lab hardware.

The DDS drivers in this module are write-only SPI peripherals.  Everything
they need from a bus is captured by SPIWriter: one call, one chip-select
framed 16-bit transaction, most significant bit first.  Three buses satisfy it:

	1.  SPIDevice, a periph.io SPI port with optional GPIO chip select
	2.  Bridge, a microcontroller SPI bridge on a terminal server or RS-232 line
	3.  MockBus, an in-memory recorder for tests and dry runs

A minimal example driving a device through the mock bus:

	bus := comm.NewMockBus()
	dds := bus.Device(0)
	if err := dds.Write16(0x2100); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("%#04x\n", bus.WritesTo(0))
*/
package comm

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/tarm/serial"
)

var (
	terminator = byte('\r')

	// ErrTransportFailure wraps every error produced by a bus while moving data
	ErrTransportFailure = errors.New("transport failure")

	// ErrNotConnected is generated when a closed bus is written to
	ErrNotConnected = errors.New("not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")
)

// SPIWriter performs one chip-select bounded SPI transaction of 16 bits,
// MSB first.  Implementations must not interleave transactions from other
// devices on the same lines within a call.
type SPIWriter interface {
	Write16(uint16) error
}

// SPIWriterFunc adapts a function to SPIWriter
type SPIWriterFunc func(uint16) error

// Write16 calls f(word)
func (f SPIWriterFunc) Write16(word uint16) error {
	return f(word)
}

// wrap tags err as a transport failure, preserving nil
func wrap(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrTransportFailure, fmt.Sprintf(format, args...), err)
}

// Dial opens a connection to addr.  If conf is not nil the connection is made
// over RS-232 with conf, and conf.Name is overridden by addr; otherwise TCP is
// used.  An exponential backoff is used, terminal servers do not like being
// connection thrashed.
func Dial(addr string, conf *serial.Config) (io.ReadWriteCloser, error) {
	var conn io.ReadWriteCloser
	op := func() error {
		var err error
		if conf != nil {
			c := *conf
			c.Name = addr
			conn, err = serial.OpenPort(&c)
		} else {
			conn, err = TCPSetup(addr, 3*time.Second)
		}
		return err
	}

	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      3 * time.Second,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, wrap(err, "connecting to %s", addr)
	}
	return conn, nil
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}
