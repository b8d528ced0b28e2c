package trace

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/cohsim/coherence"
)

var _ = Describe("Parse", func() {
	It("should accept every mnemonic", func() {
		refs, err := Parse(strings.NewReader(`
# warm up
0 r 100
1 W 0x140   # store
2 LOAD 0X200
3 st ff
0 ld 0x100
1 STORE 40
2 R 8
3 w 0
`))
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(Equal([]Reference{
			{Proc: 0, Kind: coherence.Load, Addr: 0x100},
			{Proc: 1, Kind: coherence.Store, Addr: 0x140},
			{Proc: 2, Kind: coherence.Load, Addr: 0x200},
			{Proc: 3, Kind: coherence.Store, Addr: 0xff},
			{Proc: 0, Kind: coherence.Load, Addr: 0x100},
			{Proc: 1, Kind: coherence.Store, Addr: 0x40},
			{Proc: 2, Kind: coherence.Load, Addr: 0x8},
			{Proc: 3, Kind: coherence.Store, Addr: 0x0},
		}))
	})

	DescribeTable("malformed lines",
		func(line string, lineNo int) {
			_, err := Parse(strings.NewReader("0 r 0x40\n" + line + "\n"))

			var perr *ParseError
			Expect(errors.As(err, &perr)).To(BeTrue())
			Expect(perr.Line).To(Equal(lineNo))
		},
		Entry("missing field", "0 r", 2),
		Entry("bad op", "0 x 0x40", 2),
		Entry("bad proc", "p0 r 0x40", 2),
		Entry("negative proc", "-1 r 0x40", 2),
		Entry("bad address", "0 r 0xzz", 2),
	)

	It("should write what it parses", func() {
		refs := []Reference{
			{Proc: 0, Kind: coherence.Load, Addr: 0x100},
			{Proc: 1, Kind: coherence.Store, Addr: 0x140},
		}

		buf := new(bytes.Buffer)
		Expect(Write(buf, refs)).To(Succeed())
		Expect(buf.String()).To(Equal("0 r 0x100\n1 w 0x140\n"))

		back, err := Parse(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(back).To(Equal(refs))
	})

	It("should read files", func() {
		path := filepath.Join(GinkgoT().TempDir(), "refs.txt")
		Expect(os.WriteFile(path, []byte("2 w 0x80\n"), 0o644)).To(Succeed())

		refs, err := ParseFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(refs).To(HaveLen(1))
		Expect(MaxProc(refs)).To(Equal(2))

		_, err = ParseFile(filepath.Join(GinkgoT().TempDir(), "missing"))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SplitByProc", func() {
	refs := []Reference{
		{Proc: 1, Kind: coherence.Load, Addr: 0x40},
		{Proc: 0, Kind: coherence.Store, Addr: 0x80},
		{Proc: 1, Kind: coherence.Store, Addr: 0xc0},
	}

	It("should keep per processor order", func() {
		perProc, err := SplitByProc(refs, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(perProc).To(HaveLen(3))
		Expect(perProc[0]).To(Equal(refs[1:2]))
		Expect(perProc[1]).To(Equal([]Reference{refs[0], refs[2]}))
		Expect(perProc[2]).To(BeEmpty())
	})

	It("should reject unknown processors", func() {
		_, err := SplitByProc(refs, 1)
		Expect(err).To(MatchError(ContainSubstring("processor 1")))
	})
})

var _ = Describe("Generate", func() {
	It("should be reproducible", func() {
		cfg := DefaultGeneratorConfig()

		a, err := Generate(cfg)
		Expect(err).NotTo(HaveOccurred())
		b, err := Generate(cfg)
		Expect(err).NotTo(HaveOccurred())

		Expect(a).To(HaveLen(cfg.Refs))
		Expect(a).To(Equal(b))
	})

	It("should respect the workload shape", func() {
		cfg := DefaultGeneratorConfig()
		cfg.SharedFraction = 1
		cfg.StoreFraction = 0

		refs, err := Generate(cfg)
		Expect(err).NotTo(HaveOccurred())

		for _, r := range refs {
			Expect(r.Kind).To(Equal(coherence.Load))
			Expect(r.Addr).To(BeNumerically("<", uint64(cfg.Lines)*cfg.BlockSize))
			Expect(r.Proc).To(BeNumerically("<", cfg.Procs))
		}
	})

	It("should keep private references apart", func() {
		cfg := DefaultGeneratorConfig()
		cfg.SharedFraction = 0

		refs, err := Generate(cfg)
		Expect(err).NotTo(HaveOccurred())

		for _, r := range refs {
			Expect(r.Addr / privateRegion).To(Equal(uint64(r.Proc + 1)))
		}
	})

	It("should reject bad configurations", func() {
		cfg := DefaultGeneratorConfig()
		cfg.StoreFraction = 2

		_, err := Generate(cfg)
		Expect(err).To(HaveOccurred())
	})
})
