package coherence

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"

	"github.com/sarchlab/cohsim/sim/hooking"
)

func msgOf(kind MsgKind, addr uint64, src int) Msg {
	return MsgBuilder{}.WithKind(kind).WithAddr(addr).WithSrc(src).Build()
}

func dataFor(addr uint64, dst int) Msg {
	return MsgBuilder{}.WithKind(Data).WithAddr(addr).WithDst(dst).Build()
}

var _ = Describe("BlockStateMachine", func() {
	var (
		mockCtrl *gomock.Controller
		ctrl     *MockController
		stats    *Stats
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		ctrl = NewMockController(mockCtrl)
		stats = &Stats{}
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	newMachine := func(protocol string) *BlockStateMachine {
		return NewBlockStateMachine(MustProtocol(protocol), 0, 0x100, ctrl, stats)
	}

	It("should start in I", func() {
		Expect(newMachine("MSI").State()).To(Equal(StateI))
	})

	It("should complete a load miss", func() {
		m := newMachine("MSI")

		ctrl.EXPECT().SendGETS(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Load, 0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateIS))
		Expect(stats.Misses).To(Equal(uint64(1)))

		ctrl.EXPECT().SendDataToProc(uint64(0x100))
		Expect(m.ProcessSnoopRequest(dataFor(0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateS))
	})

	It("should fill in E when nobody shares", func() {
		m := newMachine("MESI")

		ctrl.EXPECT().SendGETS(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Load, 0x100, 0))).To(Succeed())

		gomock.InOrder(
			ctrl.EXPECT().GetSharedLine().Return(false),
			ctrl.EXPECT().SendDataToProc(uint64(0x100)),
		)
		Expect(m.ProcessSnoopRequest(dataFor(0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateE))
	})

	It("should fill in S when the shared line is asserted", func() {
		m := newMachine("MOESIF")
		m.state = StateIS

		ctrl.EXPECT().GetSharedLine().Return(true)
		ctrl.EXPECT().SendDataToProc(uint64(0x100))
		Expect(m.ProcessSnoopRequest(dataFor(0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateS))
	})

	It("should complete a store miss", func() {
		m := newMachine("MESI")

		ctrl.EXPECT().SendGETM(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Store, 0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateIM))

		ctrl.EXPECT().SendDataToProc(uint64(0x100))
		Expect(m.ProcessSnoopRequest(dataFor(0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateM))
		Expect(stats.Misses).To(Equal(uint64(1)))
	})

	It("should upgrade silently from E", func() {
		m := newMachine("MESI")
		m.state = StateE

		ctrl.EXPECT().SendDataToProc(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Store, 0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateM))
		Expect(stats.SilentUpgrades).To(Equal(uint64(1)))
		Expect(stats.Misses).To(BeZero())
	})

	It("should upgrade from S through SM", func() {
		m := newMachine("MSI")
		m.state = StateS

		ctrl.EXPECT().SendGETM(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Store, 0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateSM))

		ctrl.EXPECT().SetSharedLine()
		Expect(m.ProcessSnoopRequest(msgOf(GetS, 0x100, 1))).To(Succeed())
		Expect(m.ProcessSnoopRequest(msgOf(GetM, 0x100, 2))).To(Succeed())
		Expect(m.State()).To(Equal(StateSM))

		ctrl.EXPECT().SendDataToProc(uint64(0x100))
		Expect(m.ProcessSnoopRequest(dataFor(0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateM))
	})

	It("should reject a second outstanding request", func() {
		m := newMachine("MOESI")

		ctrl.EXPECT().SendGETS(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Load, 0x100, 0))).To(Succeed())

		err := m.ProcessCacheRequest(msgOf(Store, 0x100, 0))
		v, ok := AsProtocolViolation(err)
		Expect(ok).To(BeTrue())
		Expect(v.Kind).To(Equal(ViolationOutstandingRequest))
		Expect(v.State).To(Equal(StateIS))
		Expect(v.Protocol).To(Equal("MOESI"))
		Expect(m.State()).To(Equal(StateIS))
	})

	It("should reject data while no request is pending", func() {
		for _, s := range []State{StateS, StateE, StateM, StateO} {
			m := newMachine("MOESI")
			m.state = s

			err := m.ProcessSnoopRequest(dataFor(0x100, 0))
			v, ok := AsProtocolViolation(err)
			Expect(ok).To(BeTrue())
			Expect(v.Kind).To(Equal(ViolationUnexpectedData))
			Expect(err.Error()).To(ContainSubstring("state " + s.String()))
		}
	})

	It("should reject messages on the wrong path", func() {
		m := newMachine("MSI")

		err := m.ProcessCacheRequest(msgOf(GetS, 0x100, 1))
		v, ok := AsProtocolViolation(err)
		Expect(ok).To(BeTrue())
		Expect(v.Kind).To(Equal(ViolationUnsupportedMessage))

		err = m.ProcessSnoopRequest(msgOf(Load, 0x100, 0))
		v, ok = AsProtocolViolation(err)
		Expect(ok).To(BeTrue())
		Expect(v.Kind).To(Equal(ViolationUnsupportedMessage))

		err = m.ProcessSnoopRequest(msgOf(GetS, 0x140, 1))
		Expect(err).To(HaveOccurred())
	})

	It("should ignore bus traffic in I", func() {
		m := newMachine("MOESIF")

		for _, k := range []MsgKind{GetS, GetM, Data} {
			Expect(m.ProcessSnoopRequest(msgOf(k, 0x100, 1))).To(Succeed())
			Expect(m.State()).To(Equal(StateI))
		}
	})

	It("should invalidate S on GETM", func() {
		m := newMachine("MESI")
		m.state = StateS

		Expect(m.ProcessSnoopRequest(msgOf(GetM, 0x100, 2))).To(Succeed())
		Expect(m.State()).To(Equal(StateI))
	})

	It("should supply data and invalidate M on GETM", func() {
		m := newMachine("MSI")
		m.state = StateM

		ctrl.EXPECT().SendDataOnBus(uint64(0x100), 3)
		Expect(m.ProcessSnoopRequest(msgOf(GetM, 0x100, 3))).To(Succeed())
		Expect(m.State()).To(Equal(StateI))
	})

	It("should keep supplying from OM and lose ownership on GETM", func() {
		m := newMachine("MOSI")
		m.state = StateO

		ctrl.EXPECT().SendGETM(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Store, 0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateOM))

		ctrl.EXPECT().SetSharedLine()
		ctrl.EXPECT().SendDataOnBus(uint64(0x100), 1)
		Expect(m.ProcessSnoopRequest(msgOf(GetS, 0x100, 1))).To(Succeed())
		Expect(m.State()).To(Equal(StateOM))

		ctrl.EXPECT().SendDataOnBus(uint64(0x100), 2)
		Expect(m.ProcessSnoopRequest(msgOf(GetM, 0x100, 2))).To(Succeed())
		Expect(m.State()).To(Equal(StateIM))

		ctrl.EXPECT().SendDataToProc(uint64(0x100))
		Expect(m.ProcessSnoopRequest(dataFor(0x100, 0))).To(Succeed())
		Expect(m.State()).To(Equal(StateM))
	})

	It("should commit the state before emitting side effects", func() {
		m := newMachine("MOESIF")
		m.state = StateM

		ctrl.EXPECT().SetSharedLine().Do(func() {
			Expect(m.State()).To(Equal(StateF))
		})
		ctrl.EXPECT().SendDataOnBus(uint64(0x100), 1).Do(func(uint64, int) {
			Expect(m.State()).To(Equal(StateF))
		})

		Expect(m.ProcessSnoopRequest(msgOf(GetS, 0x100, 1))).To(Succeed())
	})

	It("should count hits", func() {
		m := newMachine("MOSI")
		m.state = StateO

		ctrl.EXPECT().SendDataToProc(uint64(0x100)).Times(2)
		Expect(m.ProcessCacheRequest(msgOf(Load, 0x100, 0))).To(Succeed())
		Expect(m.ProcessCacheRequest(msgOf(Load, 0x100, 0))).To(Succeed())
		Expect(stats.Hits).To(Equal(uint64(2)))
		Expect(stats.MissRate()).To(BeZero())
	})

	It("should invoke transition hooks", func() {
		m := newMachine("MSI")

		var infos []TransitionInfo
		m.AcceptHook(hooking.HookFunc(func(ctx hooking.HookCtx) {
			Expect(ctx.Pos).To(BeIdenticalTo(HookPosTransition))
			infos = append(infos, ctx.Item.(TransitionInfo))
		}))

		ctrl.EXPECT().SendGETM(uint64(0x100))
		Expect(m.ProcessCacheRequest(msgOf(Store, 0x100, 0))).To(Succeed())

		Expect(infos).To(HaveLen(1))
		Expect(infos[0].From).To(Equal(StateI))
		Expect(infos[0].To).To(Equal(StateIM))
		Expect(infos[0].Actions).To(Equal(ActionSendGETM | ActionRecordMiss))
	})

	It("should dump its state", func() {
		m := newMachine("MOESI")
		m.state = StateOM

		buf := new(bytes.Buffer)
		m.Dump(buf)
		Expect(buf.String()).To(Equal("MOESI proc 0 block 0x100: OM\n"))
		Expect(m.String()).To(Equal("MOESI[0:0x100]=OM"))
	})
})

// snoopBus wires a few machines for one block together the way a bus would,
// one transaction at a time.
type snoopBus struct {
	machines  []*BlockStateMachine
	pending   []Msg
	shared    bool
	suppliers int
	completed int
}

type busPort struct {
	bus  *snoopBus
	proc int
}

func (p *busPort) SendGETS(addr uint64) {
	p.bus.pending = append(p.bus.pending, msgOf(GetS, addr, p.proc))
}

func (p *busPort) SendGETM(addr uint64) {
	p.bus.pending = append(p.bus.pending, msgOf(GetM, addr, p.proc))
}

func (p *busPort) SendDataToProc(uint64) { p.bus.completed++ }
func (p *busPort) SendDataOnBus(uint64, int) { p.bus.suppliers++ }
func (p *busPort) SetSharedLine() { p.bus.shared = true }
func (p *busPort) GetSharedLine() bool { return p.bus.shared }

func newSnoopBus(protocol string, n int, addr uint64, stats *Stats) *snoopBus {
	b := &snoopBus{}
	for i := 0; i < n; i++ {
		b.machines = append(b.machines, NewBlockStateMachine(
			MustProtocol(protocol), i, addr, &busPort{bus: b, proc: i}, stats))
	}

	return b
}

func (b *snoopBus) access(proc int, kind MsgKind) {
	m := b.machines[proc]
	Expect(m.ProcessCacheRequest(msgOf(kind, m.Addr(), proc))).To(Succeed())

	for len(b.pending) > 0 {
		req := b.pending[0]
		b.pending = b.pending[1:]
		b.shared = false
		b.suppliers = 0

		for i, other := range b.machines {
			if i != req.Src {
				Expect(other.ProcessSnoopRequest(req)).To(Succeed())
			}
		}

		Expect(b.suppliers).To(BeNumerically("<=", 1))
		Expect(b.machines[req.Src].ProcessSnoopRequest(
			dataFor(req.Addr, req.Src))).To(Succeed())
	}
}

func (b *snoopBus) states() []State {
	states := make([]State, 0, len(b.machines))
	for _, m := range b.machines {
		states = append(states, m.State())
	}

	return states
}

var _ = Describe("Snooping scenarios", func() {
	It("should share a block read by two MESI processors", func() {
		stats := &Stats{}
		b := newSnoopBus("MESI", 2, 0x100, stats)

		b.access(0, Load)
		Expect(b.states()).To(Equal([]State{StateE, StateI}))

		b.access(1, Load)
		Expect(b.states()).To(Equal([]State{StateS, StateS}))
		Expect(stats.Misses).To(Equal(uint64(2)))
		Expect(stats.SilentUpgrades).To(BeZero())
		Expect(b.completed).To(Equal(2))
	})

	It("should forward a MOESIF block from F", func() {
		stats := &Stats{}
		b := newSnoopBus("MOESIF", 3, 0x200, stats)

		b.access(0, Store)
		Expect(b.states()).To(Equal([]State{StateM, StateI, StateI}))

		b.access(1, Load)
		Expect(b.states()).To(Equal([]State{StateF, StateS, StateI}))
		Expect(b.suppliers).To(Equal(1))

		b.access(2, Load)
		Expect(b.states()).To(Equal([]State{StateF, StateS, StateS}))
		Expect(b.suppliers).To(Equal(1))
	})

	It("should move ownership on a MOSI upgrade", func() {
		b := newSnoopBus("MOSI", 2, 0x300, nil)

		b.access(0, Store)
		b.access(1, Load)
		Expect(b.states()).To(Equal([]State{StateO, StateS}))

		b.access(1, Store)
		Expect(b.states()).To(Equal([]State{StateI, StateM}))
	})
})
