package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/lamportvm/analysis"
	"github.com/sarchlab/lamportvm/config"
	"github.com/sarchlab/lamportvm/machine"
	"github.com/sarchlab/lamportvm/monitoring"
	"github.com/sarchlab/lamportvm/network"
)

var _ = Describe("Simulation", func() {
	var (
		dir string
		cfg config.Config
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()

		cfg = config.Default()
		cfg.Host = "127.0.0.1"
		cfg.PortBase = freeBasePort(3)
		cfg.LogDir = dir
		cfg.StartupDelayMS = 100
		cfg.Seed = 7
	})

	It("should run every machine and leave analyzable logs", func() {
		s, err := MakeBuilder().
			WithConfig(cfg).
			WithClockRate(0, 6).
			WithClockRate(1, 3).
			WithClockRate(2, 1).
			Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Machines()).To(HaveLen(3))
		Expect(s.ID()).NotTo(BeEmpty())

		Expect(s.Run(context.Background(), 2*time.Second)).To(Succeed())

		for _, m := range s.Machines() {
			Expect(m.IsRunning()).To(BeFalse())
		}

		content, err := os.ReadFile(LogPath(cfg, 1))
		Expect(err).NotTo(HaveOccurred())
		Expect(strings.SplitN(string(content), "\n", 2)[0]).
			To(HaveSuffix("Machine initialized with clock rate: 3 ticks/second"))

		logs, err := analysis.ReadDir(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).To(HaveLen(3))

		for _, ml := range logs {
			Expect(ml.LogicalClocks).NotTo(BeEmpty())

			for i := 1; i < len(ml.LogicalClocks); i++ {
				Expect(ml.LogicalClocks[i].Value).
					To(BeNumerically(">", ml.LogicalClocks[i-1].Value))
			}
		}

		Expect(logs[0].TickRate).To(Equal(6))
		Expect(len(logs[0].LogicalClocks)).
			To(BeNumerically(">", len(logs[2].LogicalClocks)))
	})

	It("should refuse to run twice", func() {
		s, err := MakeBuilder().WithConfig(cfg).Build()
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		Expect(s.Run(ctx, time.Hour)).To(Succeed())
		Expect(s.Run(ctx, time.Hour)).To(MatchError(ErrAlreadyRun))
	})

	It("should stop early when the context is done", func() {
		s, err := MakeBuilder().WithConfig(cfg).Build()
		Expect(err).NotTo(HaveOccurred())

		ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
		defer cancel()

		start := time.Now()
		Expect(s.Run(ctx, 0)).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically("<", 3*time.Second))
	})

	It("should build only the chosen machines", func() {
		s, err := MakeBuilder().WithConfig(cfg).WithMachineIDs(1).Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(s.Machines()).To(HaveLen(1))
		Expect(s.Machine(1)).NotTo(BeNil())
		Expect(s.Machine(0)).To(BeNil())
		Expect(s.Machine(1).Peers()).To(HaveLen(2))

		_, err = os.Stat(LogPath(cfg, 1))
		Expect(err).NotTo(HaveOccurred())
		_, err = os.Stat(LogPath(cfg, 0))
		Expect(os.IsNotExist(err)).To(BeTrue())
	})

	It("should fail to build when an address is taken", func() {
		ln, err := net.Listen("tcp",
			fmt.Sprintf("127.0.0.1:%d", cfg.PortBase+2))
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		_, err = MakeBuilder().WithConfig(cfg).Build()

		var terr *network.TransportError
		Expect(errors.As(err, &terr)).To(BeTrue())
		Expect(terr.Op).To(Equal("listen"))

		// The machines built before the failure released their addresses.
		probe, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.PortBase))
		Expect(err).NotTo(HaveOccurred())
		probe.Close()
	})

	It("should reject an invalid configuration", func() {
		cfg.NumMachines = 0

		_, err := MakeBuilder().WithConfig(cfg).Build()

		Expect(errors.Is(err, config.ErrInvalidConfig)).To(BeTrue())
	})

	It("should record every cycle", func() {
		cfg.RecordDB = filepath.Join(dir, "run")

		s, err := MakeBuilder().WithConfig(cfg).Build()
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Recorder()).NotTo(BeNil())

		Expect(s.Run(context.Background(), time.Second)).To(Succeed())

		logs, err := analysis.ReadRecording(context.Background(), cfg.RecordDB)
		Expect(err).NotTo(HaveOccurred())
		Expect(logs).To(HaveLen(3))

		var cycles uint64
		for _, m := range s.Machines() {
			cycles += m.Status().Cycles
		}

		recorded := 0
		for _, ml := range logs {
			recorded += len(ml.LogicalClocks)
		}

		Expect(uint64(recorded)).To(Equal(cycles))
	})

	It("should register machines with the monitor", func() {
		monitor := monitoring.NewMonitor()

		s, err := MakeBuilder().WithConfig(cfg).WithMonitor(monitor).Build()
		Expect(err).NotTo(HaveOccurred())
		defer s.Close()

		Expect(s.Monitor()).To(BeIdenticalTo(monitor))

		rec := httptest.NewRecorder()
		monitor.Router().ServeHTTP(rec,
			httptest.NewRequest(http.MethodGet, "/api/machines", nil))

		var statuses []machine.Status
		Expect(json.Unmarshal(rec.Body.Bytes(), &statuses)).To(Succeed())
		Expect(statuses).To(HaveLen(3))
		Expect(statuses[2].Addr).To(Equal(cfg.Topology().Addr(2)))
	})
})
