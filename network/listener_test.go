package network

import (
	"bytes"
	"errors"
	"log"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamportvm/message"
)

type syncBuffer struct {
	lock sync.Mutex
	buf  bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.buf.String()
}

var _ = Describe("Listener and Link", func() {
	var (
		logs     *syncBuffer
		listener *Listener
		link     *Link

		lock     sync.Mutex
		received []message.Message
		served   chan struct{}
	)

	receivedSnapshot := func() []message.Message {
		lock.Lock()
		defer lock.Unlock()
		return append([]message.Message(nil), received...)
	}

	BeforeEach(func() {
		var err error

		logs = &syncBuffer{}
		received = nil
		listener, err = Listen("127.0.0.1:0", log.New(logs, "", 0))
		Expect(err).NotTo(HaveOccurred())
		link = NewLink()

		served = make(chan struct{})
		go func() {
			defer close(served)
			listener.Serve(func(m message.Message) {
				lock.Lock()
				received = append(received, m)
				lock.Unlock()
			})
		}()
	})

	AfterEach(func() {
		Expect(listener.Close()).To(Succeed())
		Eventually(served).Should(BeClosed())
	})

	It("should deliver a message", func() {
		Expect(link.Deliver(listener.Addr(), message.New(2, 9))).To(Succeed())

		Eventually(receivedSnapshot).Should(HaveLen(1))
		m := receivedSnapshot()[0]
		Expect(m.SenderID).To(Equal(2))
		Expect(m.LogicalClock).To(Equal(uint64(9)))
	})

	It("should keep the order of one connection", func() {
		conn, err := net.Dial("tcp", listener.Addr())
		Expect(err).NotTo(HaveOccurred())

		enc := message.NewEncoder(conn)
		for i := 0; i < 5; i++ {
			Expect(enc.Encode(message.New(1, uint64(i)))).To(Succeed())
		}
		Expect(conn.Close()).To(Succeed())

		Eventually(receivedSnapshot).Should(HaveLen(5))
		for i, m := range receivedSnapshot() {
			Expect(m.LogicalClock).To(Equal(uint64(i)))
		}
	})

	It("should drop only the connection carrying a malformed payload", func() {
		bad, err := net.Dial("tcp", listener.Addr())
		Expect(err).NotTo(HaveOccurred())
		_, err = bad.Write([]byte(`{"logical_clock":1,"timestamp":0}` + "\n"))
		Expect(err).NotTo(HaveOccurred())
		defer bad.Close()

		Eventually(logs.String).Should(ContainSubstring("Error handling client"))
		Expect(logs.String()).To(ContainSubstring("sender_id"))

		Expect(link.Deliver(listener.Addr(), message.New(1, 4))).To(Succeed())
		Eventually(receivedSnapshot).Should(HaveLen(1))
	})

	It("should drop a connection whose clock leaves no room to advance", func() {
		bad, err := net.Dial("tcp", listener.Addr())
		Expect(err).NotTo(HaveOccurred())
		defer bad.Close()
		_, err = bad.Write([]byte(
			`{"sender_id":1,"logical_clock":18446744073709551615,"timestamp":0}` +
				"\n"))
		Expect(err).NotTo(HaveOccurred())

		Eventually(logs.String).Should(ContainSubstring("logical_clock"))
		Expect(receivedSnapshot()).To(BeEmpty())

		Expect(link.Deliver(listener.Addr(), message.New(1, 4))).To(Succeed())
		Eventually(receivedSnapshot).Should(HaveLen(1))
	})

	It("should close open connections and let their readers finish", func() {
		conn, err := net.Dial("tcp", listener.Addr())
		Expect(err).NotTo(HaveOccurred())
		defer conn.Close()
		Expect(message.NewEncoder(conn).Encode(message.New(1, 3))).To(Succeed())
		Eventually(receivedSnapshot).Should(HaveLen(1))

		Expect(listener.Close()).To(Succeed())

		readersDone := make(chan struct{})
		go func() {
			defer close(readersDone)
			listener.WaitReaders()
		}()
		Eventually(readersDone).Should(BeClosed())
		Expect(logs.String()).NotTo(ContainSubstring("Error handling client"))
	})

	It("should fail to bind an address in use", func() {
		_, err := Listen(listener.Addr(), nil)

		var terr *TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(terr.Op).To(Equal("listen"))
	})

	It("should report unreachable peers", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()
		Expect(ln.Close()).To(Succeed())

		err = link.Deliver(addr, message.New(0, 1))

		var terr *TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(terr.Op).To(Equal("dial"))
		Expect(terr.Addr).To(Equal(addr))
	})

	It("should stop serving when closed", func() {
		Expect(listener.Close()).To(Succeed())
		Eventually(served).Should(BeClosed())
		Expect(logs.String()).NotTo(ContainSubstring("Error accepting"))
		Expect(listener.Close()).To(Succeed())
	})
})

type failingListener struct {
	accepts atomic.Int32
	once    sync.Once
	closed  chan struct{}
}

func (l *failingListener) Accept() (net.Conn, error) {
	select {
	case <-l.closed:
		return nil, net.ErrClosed
	default:
	}

	l.accepts.Add(1)

	return nil, errors.New("accept: too many open files")
}

func (l *failingListener) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

func (l *failingListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)}
}

var _ = Describe("Listener accept errors", func() {
	It("should back off between failed accepts", func() {
		logs := &syncBuffer{}
		failing := &failingListener{closed: make(chan struct{})}
		listener := newListener(failing, log.New(logs, "", 0))

		served := make(chan struct{})
		go func() {
			defer close(served)
			listener.Serve(func(message.Message) {})
		}()

		time.Sleep(200 * time.Millisecond)
		Expect(listener.Close()).To(Succeed())
		Eventually(served).Should(BeClosed())

		accepts := int(failing.accepts.Load())
		Expect(accepts).To(BeNumerically(">=", 2))
		Expect(accepts).To(BeNumerically("<=", 10))
		Expect(strings.Count(logs.String(), "Error accepting connection")).
			To(BeNumerically("~", accepts, 1))
	})

	It("should double the pause up to a limit", func() {
		Expect(nextAcceptDelay(0)).To(Equal(minAcceptDelay))
		Expect(nextAcceptDelay(minAcceptDelay)).To(Equal(2 * minAcceptDelay))
		Expect(nextAcceptDelay(maxAcceptDelay)).To(Equal(maxAcceptDelay))
		Expect(nextAcceptDelay(700 * time.Millisecond)).To(Equal(maxAcceptDelay))
	})
})
