package comm

import (
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

// Bus serializes transactions from every device sharing one set of SPI lines.
// The zero value is ready to use.
type Bus struct {
	mu sync.Mutex
}

// SPIDevice is one chip on a Bus.  It satisfies SPIWriter.
type SPIDevice struct {
	bus  *Bus
	conn spi.Conn

	// cs is nil when the SPI controller frames the transaction itself
	cs gpio.PinOut
}

// NewDevice adds a device to the bus.  If cs is not nil, it is driven low
// around every transaction and parked high now; the conn should then have
// been connected with spi.NoCS.
func (b *Bus) NewDevice(conn spi.Conn, cs gpio.PinOut) (*SPIDevice, error) {
	if cs != nil {
		if err := cs.Out(gpio.High); err != nil {
			return nil, wrap(err, "parking chip select %s", cs)
		}
	}
	return &SPIDevice{bus: b, conn: conn, cs: cs}, nil
}

// Write16 sends one 16-bit word, MSB first
func (d *SPIDevice) Write16(word uint16) error {
	d.bus.mu.Lock()
	defer d.bus.mu.Unlock()
	tx := []byte{byte(word >> 8), byte(word)}
	if d.cs == nil {
		return wrap(d.conn.Tx(tx, nil), "spi tx on %s", d.conn)
	}
	if err := d.cs.Out(gpio.Low); err != nil {
		return wrap(err, "asserting chip select %s", d.cs)
	}
	txErr := d.conn.Tx(tx, nil)
	csErr := d.cs.Out(gpio.High)
	if txErr != nil {
		return wrap(txErr, "spi tx on %s", d.conn)
	}
	return wrap(csErr, "releasing chip select %s", d.cs)
}

// SPIConfig describes how to reach one chip through the periph registries
type SPIConfig struct {
	// Port is the spireg name, e.g. "/dev/spidev0.0" or "SPI0.1"; empty selects the first port
	Port string `koanf:"Port" yaml:"Port"`

	// Mode is the SPI mode 0..3; the AD9833 latches on the falling edge with SCLK idling high (mode 2)
	Mode int `koanf:"Mode" yaml:"Mode"`

	// MaxSpeed is the clock rate in Hz
	MaxSpeed int64 `koanf:"MaxSpeed" yaml:"MaxSpeed"`

	// CSPin is the gpioreg name of a pin used as chip select in place of the
	// controller's, e.g. "GPIO15".  Empty uses the controller's chip select.
	CSPin string `koanf:"CSPin" yaml:"CSPin"`
}

// ConnectSPI opens the port named in cfg and adds it to the bus.
// The returned closer releases the port.  periph host drivers must already
// be loaded (host.Init).
func ConnectSPI(b *Bus, cfg SPIConfig) (*SPIDevice, io.Closer, error) {
	port, err := spireg.Open(cfg.Port)
	if err != nil {
		return nil, nil, wrap(err, "opening spi port %q", cfg.Port)
	}
	mode := spi.Mode(cfg.Mode & 3)
	var cs gpio.PinOut
	if cfg.CSPin != "" {
		pin := gpioreg.ByName(cfg.CSPin)
		if pin == nil {
			port.Close()
			return nil, nil, fmt.Errorf("%w: no gpio named %q", ErrNotConnected, cfg.CSPin)
		}
		cs = pin
		mode |= spi.NoCS
	}
	conn, err := port.Connect(physic.Frequency(cfg.MaxSpeed)*physic.Hertz, mode, 8)
	if err != nil {
		port.Close()
		return nil, nil, wrap(err, "connecting to %s", port)
	}
	dev, err := b.NewDevice(conn, cs)
	if err != nil {
		port.Close()
		return nil, nil, err
	}
	return dev, port, nil
}
