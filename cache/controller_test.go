package cache

import (
	"bytes"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/hooking"
)

func busMsg(kind coherence.MsgKind, addr uint64, src int) coherence.Msg {
	return coherence.MsgBuilder{}.
		WithKind(kind).
		WithAddr(addr).
		WithSrc(src).
		Build()
}

func dataMsg(addr uint64, src, dst int) coherence.Msg {
	return coherence.MsgBuilder{}.
		WithKind(coherence.Data).
		WithAddr(addr).
		WithSrc(src).
		WithDst(dst).
		Build()
}

func kindIs(kind coherence.MsgKind) gomock.Matcher {
	return gomock.Cond(func(m coherence.Msg) bool {
		return m.Kind == kind
	})
}

var _ = Describe("Controller", func() {
	var (
		mockCtrl   *gomock.Controller
		b          *MockBus
		requester  *MockRequester
		checker    *MockLoadChecker
		sharedLine *bus.SharedLine
		versions   *VersionCounter
		stats      *coherence.Stats
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		b = NewMockBus(mockCtrl)
		requester = NewMockRequester(mockCtrl)
		checker = NewMockLoadChecker(mockCtrl)
		sharedLine = &bus.SharedLine{}
		b.EXPECT().SharedLine().Return(sharedLine).AnyTimes()
		versions = &VersionCounter{}
		stats = &coherence.Stats{}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	build := func(protocol string) *Controller {
		return MakeBuilder().
			WithProcID(0).
			WithProtocol(coherence.MustProtocol(protocol)).
			WithBlockSize(64).
			WithBus(b).
			WithStats(stats).
			WithRequester(requester).
			WithVersionSource(versions).
			WithLoadChecker(checker).
			Build("P0.Cache")
	}

	It("should panic on a block size that is not a power of 2", func() {
		Expect(func() {
			MakeBuilder().
				WithProtocol(coherence.MustProtocol("MSI")).
				WithBus(b).
				WithBlockSize(48).
				Build("Cache")
		}).To(Panic())
	})

	It("should align addresses to blocks", func() {
		c := build("MSI")
		Expect(c.BlockAddr(0x47)).To(Equal(uint64(0x40)))
		Expect(c.State(0x47)).To(Equal(coherence.StateI))
	})

	It("should complete a load miss with the supplied version", func() {
		c := build("MESI")

		b.EXPECT().Request(gomock.Cond(func(m coherence.Msg) bool {
			return m.Kind == coherence.GetS && m.Addr == 0x40 && m.Src == 0
		}))
		Expect(c.Access(coherence.Load, 0x48)).To(Succeed())
		Expect(c.State(0x40)).To(Equal(coherence.StateIS))

		checker.EXPECT().CheckLoad(0, uint64(0x40), uint64(5)).Return(nil)
		requester.EXPECT().AccessDone(coherence.Load, uint64(0x40), uint64(5))
		Expect(c.ReceiveData(dataMsg(0x40, bus.MemoryID, 0), 5)).To(Succeed())

		Expect(c.State(0x40)).To(Equal(coherence.StateE))
		info, found := c.Line(0x40)
		Expect(found).To(BeTrue())
		Expect(info.Version).To(Equal(uint64(5)))
		Expect(info.Dirty).To(BeFalse())
	})

	It("should write a new version on a store", func() {
		c := build("MSI")

		b.EXPECT().Request(kindIs(coherence.GetM))
		Expect(c.Access(coherence.Store, 0x80)).To(Succeed())

		requester.EXPECT().AccessDone(coherence.Store, uint64(0x80), uint64(1))
		Expect(c.ReceiveData(dataMsg(0x80, bus.MemoryID, 0), 0)).To(Succeed())

		info, _ := c.Line(0x80)
		Expect(info.State).To(Equal(coherence.StateM))
		Expect(info.Dirty).To(BeTrue())
		Expect(info.Version).To(Equal(uint64(1)))
		Expect(stats.Misses).To(Equal(uint64(1)))
	})

	It("should complete hits before returning", func() {
		c := build("MESI")

		b.EXPECT().Request(kindIs(coherence.GetS))
		Expect(c.Access(coherence.Load, 0x40)).To(Succeed())
		checker.EXPECT().CheckLoad(0, uint64(0x40), uint64(0)).Return(nil)
		requester.EXPECT().AccessDone(coherence.Load, uint64(0x40), uint64(0))
		Expect(c.ReceiveData(dataMsg(0x40, bus.MemoryID, 0), 0)).To(Succeed())

		requester.EXPECT().AccessDone(coherence.Store, uint64(0x40), uint64(1))
		Expect(c.Access(coherence.Store, 0x40)).To(Succeed())
		Expect(c.State(0x40)).To(Equal(coherence.StateM))
		Expect(stats.SilentUpgrades).To(Equal(uint64(1)))
	})

	It("should report a load that sees a stale version", func() {
		c := build("MSI")
		stale := errors.New("stale")

		b.EXPECT().Request(kindIs(coherence.GetS))
		Expect(c.Access(coherence.Load, 0x40)).To(Succeed())

		checker.EXPECT().CheckLoad(0, uint64(0x40), uint64(0)).Return(stale)
		requester.EXPECT().AccessDone(gomock.Any(), gomock.Any(), gomock.Any())
		Expect(c.ReceiveData(dataMsg(0x40, bus.MemoryID, 0), 0)).
			To(MatchError(stale))
	})

	It("should reject a second access while one is pending", func() {
		c := build("MOESI")

		b.EXPECT().Request(kindIs(coherence.GetS))
		Expect(c.Access(coherence.Load, 0x40)).To(Succeed())

		err := c.Access(coherence.Store, 0x40)
		v, ok := coherence.AsProtocolViolation(err)
		Expect(ok).To(BeTrue())
		Expect(v.Kind).To(Equal(coherence.ViolationOutstandingRequest))
		Expect(err.Error()).To(HavePrefix("P0.Cache: "))
	})

	It("should ignore snoops of untracked blocks", func() {
		c := build("MSI")
		Expect(c.Snoop(busMsg(coherence.GetM, 0x40, 1))).To(Succeed())
		Expect(c.Lines()).To(BeEmpty())
	})

	Context("when holding a modified block", func() {
		var c *Controller

		BeforeEach(func() {
			c = build("MSI")
			b.EXPECT().Request(kindIs(coherence.GetM))
			requester.EXPECT().AccessDone(coherence.Store, uint64(0x40), uint64(1))
			Expect(c.Access(coherence.Store, 0x40)).To(Succeed())
			Expect(c.ReceiveData(dataMsg(0x40, bus.MemoryID, 0), 0)).To(Succeed())
		})

		It("should write back when downgrading to S", func() {
			gomock.InOrder(
				b.EXPECT().Supply(0, uint64(0x40), 1, uint64(1)),
				b.EXPECT().WriteBack(uint64(0x40), uint64(1)),
			)

			Expect(c.Snoop(busMsg(coherence.GetS, 0x40, 1))).To(Succeed())
			Expect(sharedLine.IsAsserted()).To(BeTrue())

			info, _ := c.Line(0x40)
			Expect(info.State).To(Equal(coherence.StateS))
			Expect(info.Dirty).To(BeFalse())
		})

		It("should hand the dirty block over on GETM", func() {
			b.EXPECT().Supply(0, uint64(0x40), 2, uint64(1))

			Expect(c.Snoop(busMsg(coherence.GetM, 0x40, 2))).To(Succeed())

			info, _ := c.Line(0x40)
			Expect(info.State).To(Equal(coherence.StateI))
			Expect(info.Dirty).To(BeFalse())
		})
	})

	Context("when upgrading an owned block", func() {
		var c *Controller

		BeforeEach(func() {
			c = build("MOSI")
			b.EXPECT().Request(kindIs(coherence.GetM)).Times(2)
			requester.EXPECT().AccessDone(coherence.Store, uint64(0x40), uint64(1))
			Expect(c.Access(coherence.Store, 0x40)).To(Succeed())
			Expect(c.ReceiveData(dataMsg(0x40, bus.MemoryID, 0), 0)).To(Succeed())

			b.EXPECT().Supply(0, uint64(0x40), 1, uint64(1))
			Expect(c.Snoop(busMsg(coherence.GetS, 0x40, 1))).To(Succeed())
			Expect(c.State(0x40)).To(Equal(coherence.StateO))

			Expect(c.Access(coherence.Store, 0x40)).To(Succeed())
			Expect(c.State(0x40)).To(Equal(coherence.StateOM))
		})

		It("should keep its own data", func() {
			Expect(c.Owns(0x40)).To(BeTrue())

			requester.EXPECT().AccessDone(coherence.Store, uint64(0x40), uint64(2))
			Expect(c.ReceiveData(dataMsg(0x40, bus.NoSupplier, 0), 0)).
				To(Succeed())

			info, _ := c.Line(0x40)
			Expect(info.State).To(Equal(coherence.StateM))
			Expect(info.Version).To(Equal(uint64(2)))
		})

		It("should lose ownership to an earlier GETM", func() {
			b.EXPECT().Supply(0, uint64(0x40), 2, uint64(1))
			Expect(c.Snoop(busMsg(coherence.GetM, 0x40, 2))).To(Succeed())

			Expect(c.Owns(0x40)).To(BeFalse())
			info, _ := c.Line(0x40)
			Expect(info.State).To(Equal(coherence.StateIM))
			Expect(info.Dirty).To(BeFalse())
		})
	})

	It("should forward transitions to its hooks", func() {
		c := build("MSI")

		var seen []coherence.TransitionInfo
		c.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			seen = append(seen, ctx.Item.(coherence.TransitionInfo))
		}))

		b.EXPECT().Request(gomock.Any())
		Expect(c.Access(coherence.Load, 0x40)).To(Succeed())

		Expect(seen).To(HaveLen(1))
		Expect(seen[0].To).To(Equal(coherence.StateIS))
	})

	It("should dump its lines", func() {
		c := build("MSI")
		b.EXPECT().Request(gomock.Any()).Times(2)
		Expect(c.Access(coherence.Load, 0x80)).To(Succeed())
		Expect(c.Access(coherence.Store, 0x40)).To(Succeed())

		buf := new(bytes.Buffer)
		c.Dump(buf)
		Expect(buf.String()).To(Equal(
			"P0.Cache (MSI):\n  0x40 IM v0\n  0x80 IS v0\n"))
	})
})
