package tracing

import (
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/datarecording"
	"github.com/sarchlab/cohsim/sim/timing"
)

const (
	transitionTable  = "transitions"
	transactionTable = "transactions"
)

// TransitionEntry is a row of the transitions table.
type TransitionEntry struct {
	MsgID    string
	Time     float64
	Protocol string
	Proc     int
	Addr     uint64
	From     string
	To       string
	Msg      string
	Actions  string
}

// TransactionEntry is a row of the transactions table.
type TransactionEntry struct {
	ID        string
	Kind      string
	Addr      uint64
	Requester int
	Supplier  int
	Version   uint64
	Shared    bool
	StartTime float64
	EndTime   float64
}

// DBTracer stores transitions and transactions into a data recorder.
type DBTracer struct {
	timeTeller timing.TimeTeller
	backend    datarecording.DataRecorder

	startTime, endTime timing.VTime
}

// NewDBTracer creates a DBTracer and the tables it writes.
func NewDBTracer(
	timeTeller timing.TimeTeller,
	recorder datarecording.DataRecorder,
) *DBTracer {
	recorder.CreateTable(transitionTable, TransitionEntry{})
	recorder.CreateTable(transactionTable, TransactionEntry{})

	t := &DBTracer{
		timeTeller: timeTeller,
		backend:    recorder,
	}

	atexit.Register(t.Terminate)

	return t
}

// SetTimeRange limits recording to [startTime, endTime]. A zero endTime
// means no upper limit.
func (t *DBTracer) SetTimeRange(startTime, endTime timing.VTime) {
	t.startTime = startTime
	t.endTime = endTime
}

func (t *DBTracer) inRange(now timing.VTime) bool {
	if now < t.startTime {
		return false
	}

	return t.endTime == 0 || now <= t.endTime
}

// Transition records one transition.
func (t *DBTracer) Transition(info coherence.TransitionInfo) {
	now := t.timeTeller.Now()
	if !t.inRange(now) {
		return
	}

	t.backend.InsertData(transitionTable, TransitionEntry{
		MsgID:    info.Msg.ID,
		Time:     float64(now),
		Protocol: info.Protocol,
		Proc:     info.ProcID,
		Addr:     info.Addr,
		From:     info.From.String(),
		To:       info.To.String(),
		Msg:      info.Msg.Kind.String(),
		Actions:  info.Actions.String(),
	})
}

// Transaction records one completed transaction.
func (t *DBTracer) Transaction(tx bus.Transaction) {
	if !t.inRange(tx.End) {
		return
	}

	t.backend.InsertData(transactionTable, TransactionEntry{
		ID:        tx.ID,
		Kind:      tx.Req.Kind.String(),
		Addr:      tx.Req.Addr,
		Requester: tx.Req.Src,
		Supplier:  tx.Supplier,
		Version:   tx.Version,
		Shared:    tx.Shared,
		StartTime: float64(tx.Start),
		EndTime:   float64(tx.End),
	})
}

// Terminate writes everything buffered.
func (t *DBTracer) Terminate() {
	t.backend.Flush()
}
