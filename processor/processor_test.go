package processor

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/timing"
	"github.com/sarchlab/cohsim/trace"
)

var _ = Describe("Processor", func() {
	var (
		mockCtrl *gomock.Controller
		engine   *timing.SerialEngine
		cache    *MockCache
		refs     []trace.Reference
		p        *Processor
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		engine = timing.NewSerialEngine()
		cache = NewMockCache(mockCtrl)
		refs = []trace.Reference{
			{Proc: 0, Kind: coherence.Load, Addr: 0x40},
			{Proc: 0, Kind: coherence.Store, Addr: 0x80},
			{Proc: 0, Kind: coherence.Load, Addr: 0xc0},
		}
		p = NewProcessor("P0", 0, engine, 2, refs)
		p.SetCache(cache)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should replay hits back to back", func() {
		var times []timing.VTime
		hit := func(kind coherence.MsgKind, addr uint64) error {
			times = append(times, engine.Now())
			p.AccessDone(kind, addr, 0)
			return nil
		}

		gomock.InOrder(
			cache.EXPECT().Access(coherence.Load, uint64(0x40)).DoAndReturn(hit),
			cache.EXPECT().Access(coherence.Store, uint64(0x80)).DoAndReturn(hit),
			cache.EXPECT().Access(coherence.Load, uint64(0xc0)).DoAndReturn(hit),
		)

		p.Start()
		Expect(engine.Run()).To(Succeed())

		Expect(times).To(Equal([]timing.VTime{0, 2, 4}))
		Expect(p.Finished()).To(BeTrue())
		Expect(p.Stats()).To(Equal(Stats{Loads: 2, Stores: 1, FinishedAt: 4}))
	})

	It("should block on a miss", func() {
		cache.EXPECT().Access(coherence.Load, uint64(0x40)).Return(nil)

		p.Start()
		Expect(engine.Run()).To(Succeed())

		done, total := p.Progress()
		Expect(done).To(Equal(0))
		Expect(total).To(Equal(3))

		ref, waiting := p.Outstanding()
		Expect(waiting).To(BeTrue())
		Expect(ref).To(Equal(refs[0]))
	})

	It("should panic on a completion nobody waits for", func() {
		Expect(func() {
			p.AccessDone(coherence.Load, 0x40, 0)
		}).To(Panic())
	})

	It("should stop the run when the cache fails", func() {
		cache.EXPECT().Access(gomock.Any(), gomock.Any()).
			Return(errors.New("violation"))

		p.Start()
		Expect(engine.Run()).To(MatchError(ContainSubstring("P0 issuing 0 r 0x40")))
	})

	It("should do nothing without references", func() {
		idle := NewProcessor("P1", 1, engine, 2, nil)
		idle.Start()
		Expect(engine.Run()).To(Succeed())
		Expect(idle.Finished()).To(BeTrue())
	})
})
