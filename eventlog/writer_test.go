package eventlog

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Writer", func() {
	var (
		buf    *bytes.Buffer
		fixed  time.Time
		logger *log.Logger
	)

	BeforeEach(func() {
		buf = new(bytes.Buffer)
		fixed = time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local)
		logger = log.New(
			NewWriter(buf).WithClock(func() time.Time { return fixed }), "", 0)
	})

	It("should prefix a timestamp", func() {
		logger.Printf("Internal event, Logical clock: %d", 3)

		Expect(buf.String()).To(Equal(
			"2025-03-04 05:06:07 - Internal event, Logical clock: 3\n"))
	})

	It("should stamp every line of a multi-line write", func() {
		_, err := NewWriter(buf).
			WithClock(func() time.Time { return fixed }).
			Write([]byte("a\nb"))
		Expect(err).NotTo(HaveOccurred())

		Expect(buf.String()).To(Equal(
			"2025-03-04 05:06:07 - a\n2025-03-04 05:06:07 - b\n"))
	})

	It("should use the real clock by default", func() {
		NewLogger(buf).Print("hello")

		Expect(buf.String()).To(MatchRegexp(
			`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2} - hello\n$`))
	})

	It("should open a truncated per-machine file", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "machine_4.log")
		Expect(os.WriteFile(path, []byte("stale\n"), 0o644)).To(Succeed())

		l, f, err := OpenFile(dir, 4)
		Expect(err).NotTo(HaveOccurred())
		l.Print("fresh")
		Expect(f.Close()).To(Succeed())

		content, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(content)).NotTo(ContainSubstring("stale"))
		Expect(regexp.MustCompile(` - fresh\n$`).Match(content)).To(BeTrue())
	})
})
