package queueing

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Buffer", func() {
	var (
		buf *Buffer[int]
	)

	BeforeEach(func() {
		buf = NewBuffer[int]("Buf")
	})

	It("should allow push and pop", func() {
		Expect(buf.Name()).To(Equal("Buf"))

		buf.Push(1)
		Expect(buf.Size()).To(Equal(1))

		buf.Push(2)
		Expect(buf.Size()).To(Equal(2))

		e, ok := buf.Peek()
		Expect(ok).To(BeTrue())
		Expect(e).To(Equal(1))

		e, ok = buf.TryPop()
		Expect(ok).To(BeTrue())
		Expect(e).To(Equal(1))
		Expect(buf.Size()).To(Equal(1))

		e, ok = buf.TryPop()
		Expect(ok).To(BeTrue())
		Expect(e).To(Equal(2))
		Expect(buf.Size()).To(Equal(0))

		_, ok = buf.TryPop()
		Expect(ok).To(BeFalse())
		_, ok = buf.Peek()
		Expect(ok).To(BeFalse())
	})

	It("should clear", func() {
		buf.Push(2)
		Expect(buf.Size()).To(Equal(1))

		buf.Clear()

		Expect(buf.Size()).To(Equal(0))
		_, ok := buf.Peek()
		Expect(ok).To(BeFalse())
	})

	It("should keep order across compaction", func() {
		for i := 0; i < 1000; i++ {
			buf.Push(i)
		}

		for i := 0; i < 500; i++ {
			e, _ := buf.TryPop()
			Expect(e).To(Equal(i))
		}

		for i := 1000; i < 1200; i++ {
			buf.Push(i)
		}

		Expect(buf.Size()).To(Equal(700))
		for i := 500; i < 1200; i++ {
			e, ok := buf.TryPop()
			Expect(ok).To(BeTrue())
			Expect(e).To(Equal(i))
		}
	})

	It("should keep per-producer order with concurrent producers", func() {
		const producers = 8
		const perProducer = 500

		type item struct{ producer, seq int }
		b := NewBuffer[item]("Concurrent")

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for s := 0; s < perProducer; s++ {
					b.Push(item{producer: p, seq: s})
				}
			}(p)
		}

		next := make([]int, producers)
		popped := 0
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		drain := func() {
			for {
				it, ok := b.TryPop()
				if !ok {
					return
				}
				Expect(it.seq).To(Equal(next[it.producer]))
				next[it.producer]++
				popped++
			}
		}

	loop:
		for {
			select {
			case <-done:
				break loop
			default:
				drain()
			}
		}
		drain()

		Expect(popped).To(Equal(producers * perProducer))
		Expect(b.Size()).To(Equal(0))
	})
})
