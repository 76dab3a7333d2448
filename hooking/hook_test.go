package hooking

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("HookableBase", func() {
	var (
		base *HookableBase
		pos  *HookPos
	)

	BeforeEach(func() {
		base = NewHookableBase()
		pos = &HookPos{Name: "Test"}
	})

	It("should invoke hooks in registration order", func() {
		var calls []string

		base.AcceptHook(HookFunc(func(ctx HookCtx) {
			calls = append(calls, "first:"+ctx.Pos.Name)
		}))
		base.AcceptHook(HookFunc(func(ctx HookCtx) {
			calls = append(calls, "second:"+ctx.Item.(string))
		}))

		base.InvokeHook(HookCtx{Pos: pos, Item: "item"})

		Expect(base.NumHooks()).To(Equal(2))
		Expect(calls).To(Equal([]string{"first:Test", "second:item"}))
	})

	It("should do nothing without hooks", func() {
		Expect(func() { base.InvokeHook(HookCtx{Pos: pos}) }).NotTo(Panic())
	})

	It("should allow registering while invoking", func() {
		var wg sync.WaitGroup

		for i := 0; i < 10; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				base.AcceptHook(HookFunc(func(HookCtx) {}))
			}()
			go func() {
				defer wg.Done()
				base.InvokeHook(HookCtx{Pos: pos})
			}()
		}

		wg.Wait()
		Expect(base.NumHooks()).To(Equal(10))
	})
})
