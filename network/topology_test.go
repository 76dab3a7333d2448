package network

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Topology", func() {
	var topo Topology

	BeforeEach(func() {
		topo = Topology{Host: "localhost", BasePort: 5000, NumMachines: 3}
	})

	It("should derive addresses from the base port", func() {
		Expect(topo.Addr(0)).To(Equal("localhost:5000"))
		Expect(topo.Addr(2)).To(Equal("localhost:5002"))
	})

	It("should list every other machine as a peer", func() {
		Expect(topo.Peers(1)).To(Equal([]Peer{
			{ID: 0, Addr: "localhost:5000"},
			{ID: 2, Addr: "localhost:5002"},
		}))
	})

	It("should compute the same peers on every machine", func() {
		for self := 0; self < topo.NumMachines; self++ {
			for _, p := range topo.Peers(self) {
				Expect(p.ID).NotTo(Equal(self))
				Expect(p.Addr).To(Equal(topo.Addr(p.ID)))
			}
			Expect(topo.Peers(self)).To(HaveLen(2))
		}
	})

	DescribeTable("should validate",
		func(t Topology, valid bool) {
			err := t.Validate()
			if valid {
				Expect(err).NotTo(HaveOccurred())
				return
			}
			Expect(errors.Is(err, ErrInvalidTopology)).To(BeTrue())
		},
		Entry("default", Topology{"localhost", 5000, 3}, true),
		Entry("empty host", Topology{"", 5000, 3}, false),
		Entry("no machines", Topology{"localhost", 5000, 0}, false),
		Entry("port overflow", Topology{"localhost", 65534, 3}, false),
		Entry("zero port", Topology{"localhost", 0, 3}, false),
	)
})
