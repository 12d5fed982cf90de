package comm

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/snksoft/crc"
	"github.com/tarm/serial"
	"golang.org/x/time/rate"
)

var crcTable = crc.NewTable(crc.XMODEM)

// BridgeConfig holds the setup of a Bridge
type BridgeConfig struct {
	// Addr is host:port of a terminal server, or a serial device such as /dev/ttyUSB0
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Serial selects RS-232 (true) or TCP (false)
	Serial bool `koanf:"Serial" yaml:"Serial"`

	// Baud is the serial line rate, ignored for TCP
	Baud int `koanf:"Baud" yaml:"Baud"`

	// Rate is the maximum number of transactions per second; <= 0 is unlimited
	Rate float64 `koanf:"Rate" yaml:"Rate"`

	// Timeout bounds one transaction round trip
	Timeout time.Duration `koanf:"Timeout" yaml:"Timeout"`
}

/*Bridge is a microcontroller that owns the SPI lines and accepts framed
transactions over a byte stream.  Each transaction is a CR terminated line

	W<cs>:<hhhh>:<cccc>

with cs the decimal chip select index, hhhh the word in hex and cccc the
CRC-16/XMODEM of everything before the second colon.  The bridge answers
"OK" or "ERR <reason>", also CR terminated.

The bridge is concurrent safe; transactions are issued one at a time.
*/
type Bridge struct {
	cfg     BridgeConfig
	pool    *Pool
	limiter *rate.Limiter
}

// NewBridge creates a new Bridge.  No connection is made until the first write.
func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Second
	}
	var conf *serial.Config
	if cfg.Serial {
		conf = &serial.Config{
			Baud:        cfg.Baud,
			Size:        8,
			Parity:      serial.ParityNone,
			StopBits:    serial.Stop1,
			ReadTimeout: cfg.Timeout}
	}
	maker := func() (io.ReadWriteCloser, error) {
		conn, err := Dial(cfg.Addr, conf)
		if err != nil {
			return nil, err
		}
		return &lineConn{ReadWriteCloser: conn, rd: bufio.NewReader(conn)}, nil
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.Rate > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.Rate), 1)
	}
	return &Bridge{
		cfg:     cfg,
		pool:    NewPool(1, 30*time.Second, maker),
		limiter: lim}
}

// Device returns an SPIWriter for the chip on select line cs
func (b *Bridge) Device(cs int) SPIWriter {
	return SPIWriterFunc(func(word uint16) error {
		return b.Write16(cs, word)
	})
}

// Write16 performs one transaction on chip select cs
func (b *Bridge) Write16(cs int, word uint16) error {
	if err := b.limiter.Wait(context.Background()); err != nil {
		return wrap(err, "bridge rate limit")
	}
	rw, err := b.pool.Get()
	if err != nil {
		return err
	}
	conn := rw.(*lineConn)
	conn.setDeadline(time.Now().Add(b.cfg.Timeout))
	if _, err = conn.Write(frame(cs, word)); err != nil {
		b.pool.Destroy(rw)
		return wrap(err, "bridge write to %s", b.cfg.Addr)
	}
	resp, err := conn.rd.ReadBytes(terminator)
	if err != nil {
		b.pool.Destroy(rw)
		return wrap(err, "bridge read from %s", b.cfg.Addr)
	}
	b.pool.Put(rw)
	return parseReply(resp)
}

// Close frees the idle connection to the bridge
func (b *Bridge) Close() error {
	return b.pool.Close()
}

// lineConn is a bridge connection with the read buffer that lives as long as
// it does, so bytes past one terminator are kept for the next reply
type lineConn struct {
	io.ReadWriteCloser
	rd *bufio.Reader
}

func (c *lineConn) setDeadline(t time.Time) {
	if d, ok := c.ReadWriteCloser.(interface{ SetDeadline(time.Time) error }); ok {
		d.SetDeadline(t)
	}
}

// frame builds the request line for one transaction
func frame(cs int, word uint16) []byte {
	body := fmt.Sprintf("W%d:%04X", cs, word)
	sum := crcTable.CalculateCRC([]byte(body))
	return []byte(fmt.Sprintf("%s:%04X%c", body, uint16(sum), terminator))
}

// parseReply converts a response line into nil or a transport failure
func parseReply(resp []byte) error {
	if !bytes.HasSuffix(resp, []byte{terminator}) {
		return wrap(ErrTerminatorNotFound, "bridge reply %q", resp)
	}
	resp = bytes.TrimSpace(resp)
	if bytes.Equal(resp, []byte("OK")) {
		return nil
	}
	if bytes.HasPrefix(resp, []byte("ERR")) {
		reason := string(bytes.TrimSpace(resp[3:]))
		return fmt.Errorf("%w: bridge rejected transaction: %s", ErrTransportFailure, strconv.Quote(reason))
	}
	return fmt.Errorf("%w: unintelligible bridge reply %q", ErrTransportFailure, resp)
}
