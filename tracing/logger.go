package tracing

import (
	"log"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/sim/timing"
)

// TransitionLogger prints every transition and transaction to a logger.
type TransitionLogger struct {
	logger     *log.Logger
	timeTeller timing.TimeTeller
	skipNoOps  bool
}

// NewTransitionLogger creates a TransitionLogger.
func NewTransitionLogger(
	logger *log.Logger,
	timeTeller timing.TimeTeller,
) *TransitionLogger {
	return &TransitionLogger{
		logger:     logger,
		timeTeller: timeTeller,
	}
}

// SkipNoOps hides transitions that neither change state nor act.
func (l *TransitionLogger) SkipNoOps() *TransitionLogger {
	l.skipNoOps = true
	return l
}

// Transition prints one state transition.
func (l *TransitionLogger) Transition(info coherence.TransitionInfo) {
	if l.skipNoOps && info.From == info.To && info.Actions == 0 {
		return
	}

	l.logger.Printf("%.2f, P%d 0x%x %s: %s -> %s on %s [%s]",
		float64(l.timeTeller.Now()), info.ProcID, info.Addr, info.Protocol,
		info.From, info.To, info.Msg.Kind, info.Actions)
}

// Transaction prints one completed bus transaction.
func (l *TransitionLogger) Transaction(tx bus.Transaction) {
	l.logger.Printf("%.2f, bus %s", float64(tx.End), tx)
}
