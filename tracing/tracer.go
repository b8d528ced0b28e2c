// Package tracing records what happens inside a coherence simulation.
package tracing

import (
	"fmt"
	"reflect"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/hooking"
)

// A Tracer observes state transitions and bus transactions.
type Tracer interface {
	Transition(info coherence.TransitionInfo)
	Transaction(tx bus.Transaction)
}

// NamedHookable is a hookable simulation object with a name.
type NamedHookable interface {
	hooking.Hookable
	Name() string
}

// CollectTrace lets the tracer observe a cache or a bus.
func CollectTrace(domain NamedHookable, tracer Tracer) {
	for _, hook := range domain.Hooks() {
		h, ok := hook.(*traceHook)
		if ok && h.t == tracer {
			panic(fmt.Sprintf("domain %s already has tracer %s",
				domain.Name(), reflect.TypeOf(tracer)))
		}
	}

	domain.AcceptHook(&traceHook{t: tracer})
}

type traceHook struct {
	t Tracer
}

func (h *traceHook) Func(ctx hooking.HookCtx) {
	switch ctx.Pos {
	case coherence.HookPosTransition:
		h.t.Transition(ctx.Item.(coherence.TransitionInfo))
	case bus.HookPosTransactionEnd:
		h.t.Transaction(ctx.Item.(bus.Transaction))
	}
}
