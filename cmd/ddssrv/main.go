package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/prometheus/client_golang/prometheus"

	yml "gopkg.in/yaml.v2"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "ddssrv.yml"
	k              = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `ddssrv drives an AD9833 waveform generator and exposes an HTTP interface to it
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	ddssrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `ddssrv is amenable to configuration via its .yaml file.  For a primer on YAML, see
https://yaml.org/start.html

Use "ddssrv mkconf" to write the defaults to ddssrv.yml as a starting point.

Transport selects how SPI words reach the chip:
- periph
	> a local SPI controller, e.g. a Raspberry Pi, SPI.Port is the spidev
	  or periph name, SPI.CSPin optionally names a GPIO to use as chip select
- bridge
	> a microcontroller on Bridge.Addr (serial device if Bridge.Serial, else
	  host:port) which performs the transaction on chip select CS
- mock
	> no hardware, every write is recorded in memory

The digipot (MCP41010) is optional; without it the amplitude routes return an error.

Routes are served under Endpoint, e.g. Endpoint="lab/dds" gives /lab/dds/frequency.
The list of routes is at /endpoints and prometheus metrics are at /metrics.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("ddssrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	var metrics *Metrics
	hw, err := BuildHardware(c, func(error) {
		metrics.TickErrors.Inc()
	})
	if err != nil {
		log.Fatal(err)
	}
	reg := prometheus.NewRegistry()
	metrics, err = NewMetrics(reg, hw.Gen)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go hw.Gen.Run(ctx, c.TickPeriod)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
		if err := hw.Close(); err != nil {
			log.Println(err)
		}
		os.Exit(0)
	}()

	mux := BuildMux(c, hw.Gen, reg)
	log.Println("now listening for requests at ", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, mux))
}

func main() {
	var cmd string
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd = args[1]
	cmd = strings.ToLower(cmd)
	switch cmd {
	case "help":
		help()
		return
	case "mkconf":
		mkconf()
		return
	case "conf":
		printconf()
		return
	case "run":
		run()
		return
	case "version":
		pversion()
		return
	default:
		log.Fatal("unknown command")
	}
}
