package comm

import (
	"errors"
	"sync"
)

// ErrInjected is the cause of writes failed on purpose by MockBus.FailNext
var ErrInjected = errors.New("injected fault")

// Write is one transaction seen by a MockBus
type Write struct {
	CS   int
	Word uint16
}

// MockBus records transactions instead of performing them.
// It is concurrent safe.
type MockBus struct {
	sync.Mutex
	writes   []Write
	failNext int
}

// NewMockBus creates a new, empty, MockBus
func NewMockBus() *MockBus {
	return &MockBus{}
}

// Device returns an SPIWriter for chip select cs on the mock bus
func (m *MockBus) Device(cs int) SPIWriter {
	return SPIWriterFunc(func(word uint16) error {
		return m.Write16(cs, word)
	})
}

// Write16 records a transaction, or fails it if faults are pending
func (m *MockBus) Write16(cs int, word uint16) error {
	m.Lock()
	defer m.Unlock()
	if m.failNext > 0 {
		m.failNext--
		return wrap(ErrInjected, "mock write to cs %d", cs)
	}
	m.writes = append(m.writes, Write{CS: cs, Word: word})
	return nil
}

// FailNext causes the next n writes on any chip select to fail
func (m *MockBus) FailNext(n int) {
	m.Lock()
	defer m.Unlock()
	m.failNext = n
}

// Writes returns a copy of every recorded transaction, oldest first
func (m *MockBus) Writes() []Write {
	m.Lock()
	defer m.Unlock()
	out := make([]Write, len(m.writes))
	copy(out, m.writes)
	return out
}

// WritesTo returns the words recorded for one chip select, oldest first
func (m *MockBus) WritesTo(cs int) []uint16 {
	m.Lock()
	defer m.Unlock()
	var out []uint16
	for _, w := range m.writes {
		if w.CS == cs {
			out = append(out, w.Word)
		}
	}
	return out
}

// Clear forgets every recorded transaction
func (m *MockBus) Clear() {
	m.Lock()
	defer m.Unlock()
	m.writes = nil
}
