package comm_test

import (
	"bufio"
	"errors"
	"io"
	"log"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/nasa-jpl/ddsgen/comm"
)

func tcpEchoServer(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, debug test aborted")
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() { io.Copy(conn, conn) }() // use goroutines to handle multiple connections
		}
	}()
	return ln.Addr().String()
}

func echoPool(t *testing.T, size int, timeout time.Duration) *comm.Pool {
	addr := tcpEchoServer(t)
	maker := func() (io.ReadWriteCloser, error) {
		return net.Dial("tcp", addr)
	}
	return comm.NewPool(size, timeout, maker)
}

func TestPoolFillsToCapacity(t *testing.T) {
	pool := echoPool(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		if _, err := pool.Get(); err != nil {
			t.Fatal("could not get connection:", err)
		}
	}
	if pool.Active() != 3 {
		t.Errorf("expected 3 connections on lease, got %d", pool.Active())
	}
}

func TestPoolReusesReturnedConnections(t *testing.T) {
	pool := echoPool(t, 3, time.Second)
	for i := 0; i < 3; i++ {
		conn, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		pool.Put(conn)
	}
	if pool.Size() != 1 {
		t.Errorf("expected a single reused connection, pool holds %d", pool.Size())
	}
}

func TestPoolReleasesAfterTimeout(t *testing.T) {
	pool := echoPool(t, 3, 10*time.Millisecond)
	conn, err := pool.Get()
	if err != nil {
		t.Fatal("could not get connection:", err)
	}
	pool.Put(conn)
	time.Sleep(200 * time.Millisecond)
	if pool.Size() != 0 {
		t.Errorf("expected idle connections to be reclaimed, pool holds %d", pool.Size())
	}
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	pool := echoPool(t, 2, time.Second)
	held := []io.ReadWriter{}
	for i := 0; i < 2; i++ {
		rw, err := pool.Get()
		if err != nil {
			t.Fatal("could not get connection:", err)
		}
		held = append(held, rw)
	}
	newConn := make(chan io.ReadWriter, 1)
	go func() {
		rw, _ := pool.Get()
		newConn <- rw
	}()
	select {
	case <-newConn:
		t.Fatal("failed to prevent pool overflow")
	case <-time.After(100 * time.Millisecond):
	}
	pool.Put(held[0])
	select {
	case <-newConn:
	case <-time.After(time.Second):
		t.Fatal("returned connection was not handed to the waiting Get")
	}
}

func TestPoolDestroyWakesWaitingGet(t *testing.T) {
	pool := echoPool(t, 1, time.Second)
	rw, err := pool.Get()
	if err != nil {
		t.Fatal("could not get connection:", err)
	}
	waiter := make(chan error, 1)
	go func() {
		rw, err := pool.Get()
		if err == nil {
			pool.Put(rw)
		}
		waiter <- err
	}()
	time.Sleep(50 * time.Millisecond) // let the second Get block on the empty pool
	destroyed := make(chan struct{})
	go func() {
		pool.Destroy(rw)
		close(destroyed)
	}()
	select {
	case <-destroyed:
	case <-time.After(time.Second):
		t.Fatal("Destroy blocked while a Get was waiting")
	}
	select {
	case err := <-waiter:
		if err != nil {
			t.Fatal("waiting Get failed:", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiting Get was not given a new connection")
	}
	if pool.Active() != 0 {
		t.Errorf("expected no connections on lease, got %d", pool.Active())
	}
}

// fakeBridge answers every request line with the reply produced by respond
func fakeBridge(t *testing.T, respond func(line string) string) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal("could not listen, debug test aborted")
	}
	t.Cleanup(func() { ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				rd := bufio.NewReader(conn)
				for {
					line, err := rd.ReadString('\r')
					if err != nil {
						return
					}
					if _, err := conn.Write([]byte(respond(line[:len(line)-1]) + "\r")); err != nil {
						log.Println(err)
						return
					}
				}
			}()
		}
	}()
	return ln.Addr().String()
}

func TestBridgeFramesWithCRC(t *testing.T) {
	lines := make(chan string, 4)
	addr := fakeBridge(t, func(line string) string {
		lines <- line
		return "OK"
	})
	b := comm.NewBridge(comm.BridgeConfig{Addr: addr})
	defer b.Close()
	if err := b.Device(1).Write16(0x2100); err != nil {
		t.Fatal(err)
	}
	got := <-lines
	// CRC-16/XMODEM of "W1:2100"
	expected := "W1:2100:D36D"
	if got != expected {
		t.Errorf("expected frame %q, got %q", expected, got)
	}
}

func TestBridgeErrIsTransportFailure(t *testing.T) {
	addr := fakeBridge(t, func(line string) string {
		return "ERR crc mismatch"
	})
	b := comm.NewBridge(comm.BridgeConfig{Addr: addr})
	defer b.Close()
	err := b.Write16(0, 0x4000)
	if !errors.Is(err, comm.ErrTransportFailure) {
		t.Errorf("expected ErrTransportFailure, got %v", err)
	}
}

func TestBridgeKeepsBytesPastTerminator(t *testing.T) {
	calls := 0
	addr := fakeBridge(t, func(line string) string {
		calls++
		if calls == 1 {
			// two replies in one packet
			return "OK\rERR busy"
		}
		return "OK"
	})
	b := comm.NewBridge(comm.BridgeConfig{Addr: addr})
	defer b.Close()
	if err := b.Write16(0, 0x2100); err != nil {
		t.Fatal(err)
	}
	err := b.Write16(0, 0x2000)
	if !errors.Is(err, comm.ErrTransportFailure) || !strings.Contains(err.Error(), "busy") {
		t.Errorf("expected the buffered ERR busy reply, got %v", err)
	}
	if err := b.Write16(0, 0x2000); err != nil {
		t.Errorf("expected the next reply in sequence, got %v", err)
	}
}

func TestMockBusRecordsAndFails(t *testing.T) {
	bus := comm.NewMockBus()
	dds, pot := bus.Device(0), bus.Device(1)
	bus.FailNext(1)
	if err := dds.Write16(0x2100); !errors.Is(err, comm.ErrTransportFailure) {
		t.Errorf("expected injected transport failure, got %v", err)
	}
	dds.Write16(0x2000)
	pot.Write16(0x1180)
	if w := bus.WritesTo(0); len(w) != 1 || w[0] != 0x2000 {
		t.Errorf("expected only the successful write to be recorded, got %#04x", w)
	}
	if w := bus.WritesTo(1); len(w) != 1 || w[0] != 0x1180 {
		t.Errorf("expected digipot write 0x1180, got %#04x", w)
	}
	bus.Clear()
	if len(bus.Writes()) != 0 {
		t.Error("expected Clear to forget transactions")
	}
}
