package machine

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ActionPolicy", func() {
	DescribeTable("scaled bands",
		func(draw, numPeers int, expected Action) {
			Expect(ScaledBands.Choose(draw, numPeers)).To(Equal(expected))
		},
		Entry("first peer", 1, 2, Action{Kind: ActionUnicast, Target: 0}),
		Entry("second peer", 2, 2, Action{Kind: ActionUnicast, Target: 1}),
		Entry("broadcast", 3, 2, Action{Kind: ActionBroadcast}),
		Entry("internal", 4, 2, Action{Kind: ActionInternal}),
		Entry("last draw", 10, 2, Action{Kind: ActionInternal}),
		Entry("four peers", 4, 4, Action{Kind: ActionUnicast, Target: 3}),
		Entry("four peers broadcast", 5, 4, Action{Kind: ActionBroadcast}),
		Entry("no peers", 1, 0, Action{Kind: ActionInternal}),
		Entry("more peers than draws", 10, 12, Action{Kind: ActionUnicast, Target: 9}),
	)

	DescribeTable("fixed bands",
		func(draw, numPeers int, expected Action) {
			Expect(FixedBands.Choose(draw, numPeers)).To(Equal(expected))
		},
		Entry("first peer", 1, 2, Action{Kind: ActionUnicast, Target: 0}),
		Entry("second peer", 2, 2, Action{Kind: ActionUnicast, Target: 1}),
		Entry("broadcast", 3, 2, Action{Kind: ActionBroadcast}),
		Entry("internal", 4, 5, Action{Kind: ActionInternal}),
		Entry("single peer wraps", 2, 1, Action{Kind: ActionUnicast, Target: 0}),
		Entry("no peers", 3, 0, Action{Kind: ActionInternal}),
	)

	It("should split the draw range into three bands", func() {
		counts := map[ActionKind]int{}
		for draw := 1; draw <= ActionRange; draw++ {
			counts[ScaledBands.Choose(draw, 2).Kind]++
		}

		Expect(counts[ActionUnicast]).To(Equal(2))
		Expect(counts[ActionBroadcast]).To(Equal(1))
		Expect(counts[ActionInternal]).To(Equal(7))
	})

	It("should panic on draws outside the range", func() {
		Expect(func() { ScaledBands.Choose(0, 2) }).To(Panic())
		Expect(func() { ScaledBands.Choose(ActionRange+1, 2) }).To(Panic())
	})

	It("should parse policy names", func() {
		p, err := ParseActionPolicy("fixed")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(FixedBands))
		Expect(p.String()).To(Equal("fixed"))

		p, err = ParseActionPolicy("")
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(Equal(ScaledBands))

		_, err = ParseActionPolicy("random")
		Expect(err).To(HaveOccurred())
	})
})
