package comm

import (
	"io"
	"sync"
	"time"
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	maxSize int                     // maximum number of connections, == cap(conns)
	onLease int                     // number of connections given out, <= cap(conns)
	timeout time.Duration           // time after all are returned to free all connections
	conns   chan io.ReadWriteCloser // the idle connections
	slots   chan struct{}           // one token per connection on lease or being made
	timer   *time.Timer             // fires reclaim after the last connection is returned
	maker   CreationFunc

	mu sync.Mutex
}

// NewPool creates a pool of at most maxSize connections which are closed
// timeout after the last one is returned
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	p := &Pool{
		maxSize: maxSize,
		timeout: timeout,
		conns:   make(chan io.ReadWriteCloser, maxSize),
		slots:   make(chan struct{}, maxSize),
		maker:   maker,
	}
	p.timer = time.AfterFunc(timeout, p.reclaim)
	p.timer.Stop() // nothing to close initially
	return p
}

// Get retrieves a connection from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contention
// for the ReadWriter.
//
// When done with the connection, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., all calls error).
//
// If the error from Get is not nil, you must not return it
// to the pool.
func (p *Pool) Get() (io.ReadWriter, error) {
	// blocks while maxSize connections are out; the mutex is not held here so
	// Put and Destroy can always free a slot
	p.slots <- struct{}{}
	p.mu.Lock()
	p.timer.Stop()
	select {
	case c := <-p.conns:
		p.onLease++
		p.mu.Unlock()
		return c, nil
	default:
	}
	p.mu.Unlock()

	c, err := p.maker()
	if err != nil {
		<-p.slots
		return nil, err
	}
	p.mu.Lock()
	p.onLease++
	p.mu.Unlock()
	return c, nil
}

// Put restores a connection to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timeout
// has elapsed.
func (p *Pool) Put(rw io.ReadWriter) {
	p.mu.Lock()
	p.conns <- rw.(io.ReadWriteCloser) // idle + leased never exceeds maxSize
	p.onLease--
	if p.onLease == 0 {
		p.timer.Reset(p.timeout)
	}
	p.mu.Unlock()
	<-p.slots
}

// Destroy immediately frees a connection from the pool.  This should be used
// instead of Put if the connection has gone bad.  A Get waiting on the pool
// will open a new connection in its place.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rw.(io.ReadWriteCloser).Close()
	p.mu.Lock()
	p.onLease--
	if p.onLease == 0 {
		p.timer.Reset(p.timeout)
	}
	p.mu.Unlock()
	<-p.slots
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns) + p.onLease
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onLease
}

// Close frees every idle connection.  Leased connections are not affected.
func (p *Pool) Close() error {
	p.timer.Stop()
	p.reclaim()
	return nil
}

func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		select {
		case c := <-p.conns:
			c.Close()
		default:
			return
		}
	}
}
