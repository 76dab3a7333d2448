package network

import (
	"errors"
	"io"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sarchlab/lamportvm/message"
)

// The pause after a failed accept doubles from minAcceptDelay up to
// maxAcceptDelay and resets on the next successful accept.
const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

// A Listener accepts connections from peers and decodes the messages they
// send. Each connection is read by its own goroutine.
type Listener struct {
	ln     net.Listener
	logger *log.Logger

	closed  atomic.Bool
	done    chan struct{}
	readers sync.WaitGroup

	lock  sync.Mutex
	conns map[net.Conn]struct{}
}

// Listen binds addr. A bind failure is returned as a *TransportError.
func Listen(addr string, logger *log.Logger) (*Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &TransportError{Op: "listen", Addr: addr, Err: err}
	}

	return newListener(ln, logger), nil
}

func newListener(ln net.Listener, logger *log.Logger) *Listener {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Listener{
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
		conns:  make(map[net.Conn]struct{}),
	}
}

// Addr returns the bound address.
func (l *Listener) Addr() string {
	return l.ln.Addr().String()
}

// Serve runs the accept loop until the listener is closed. Every decoded
// message is passed to deliver, which may be called from several goroutines
// at the same time.
func (l *Listener) Serve(deliver func(message.Message)) {
	var delay time.Duration

	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if l.closed.Load() || errors.Is(err, net.ErrClosed) {
				return
			}

			delay = nextAcceptDelay(delay)
			l.logger.Printf("Error accepting connection: %v", err)

			if !l.pause(delay) {
				return
			}

			continue
		}

		delay = 0

		if !l.track(conn) {
			conn.Close()
			return
		}

		l.readers.Add(1)
		go l.read(conn, deliver)
	}
}

func nextAcceptDelay(delay time.Duration) time.Duration {
	if delay == 0 {
		return minAcceptDelay
	}

	return min(2*delay, maxAcceptDelay)
}

// pause waits for d and reports false if the listener is closed meanwhile.
func (l *Listener) pause(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-l.done:
		return false
	}
}

func (l *Listener) track(conn net.Conn) bool {
	l.lock.Lock()
	defer l.lock.Unlock()

	if l.closed.Load() {
		return false
	}

	l.conns[conn] = struct{}{}

	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.lock.Lock()
	defer l.lock.Unlock()

	delete(l.conns, conn)
}

func (l *Listener) read(conn net.Conn, deliver func(message.Message)) {
	defer l.readers.Done()
	defer l.untrack(conn)
	defer conn.Close()

	dec := message.NewDecoder(conn)
	for {
		msg, err := dec.Decode()
		if err != nil {
			if !errors.Is(err, io.EOF) && !l.closed.Load() {
				l.logger.Printf("Error handling client %s: %v",
					conn.RemoteAddr(), err)
			}

			return
		}

		deliver(msg)
	}
}

// Close stops accepting connections and closes the connections already
// accepted, so their readers exit without waiting for the peer. Close is
// idempotent.
func (l *Listener) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(l.done)
	err := l.ln.Close()

	l.lock.Lock()
	for conn := range l.conns {
		conn.Close()
	}
	l.lock.Unlock()

	return err
}

// WaitReaders blocks until every connection reader has exited. After Close
// it returns once the readers finish the message they are delivering.
func (l *Listener) WaitReaders() {
	l.readers.Wait()
}
