package simulation

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	It("should start from a valid default", func() {
		Expect(DefaultConfig().Validate()).To(Succeed())
	})

	It("should override only the fields given", func() {
		cfg, err := ParseConfig([]byte("protocol: moesif\nprocs: 8\n"))
		Expect(err).NotTo(HaveOccurred())

		want := DefaultConfig()
		want.Protocol = "moesif"
		want.Procs = 8
		Expect(cfg).To(Equal(want))
	})

	It("should accept an empty document", func() {
		cfg, err := ParseConfig(nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg).To(Equal(DefaultConfig()))
	})

	DescribeTable("rejections",
		func(doc, msg string) {
			_, err := ParseConfig([]byte(doc))
			Expect(err).To(MatchError(ContainSubstring(msg)))
		},
		Entry("unknown field", "protocl: MSI\n", "protocl"),
		Entry("unknown protocol", "protocol: MESIF\n", "unknown protocol"),
		Entry("no processors", "procs: 0\n", "procs must be positive"),
		Entry("too many processors", "procs: 1025\n", "at most 1024"),
		Entry("odd block size", "block_size: 48\n", "power of 2"),
		Entry("negative latency", "bus_latency: -1\n", "negative"),
	)

	It("should load files it writes", func() {
		cfg := DefaultConfig()
		cfg.Protocol = "MOSI"
		cfg.CheckInvariants = false

		buf := new(bytes.Buffer)
		Expect(cfg.Write(buf)).To(Succeed())

		path := filepath.Join(GinkgoT().TempDir(), "cohsim.yaml")
		Expect(os.WriteFile(path, buf.Bytes(), 0o644)).To(Succeed())

		loaded, err := LoadConfig(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded).To(Equal(cfg))
	})

	It("should report missing files", func() {
		_, err := LoadConfig(filepath.Join(GinkgoT().TempDir(), "none.yaml"))
		Expect(err).To(MatchError(ContainSubstring("read config")))
	})
})
