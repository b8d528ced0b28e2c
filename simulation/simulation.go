// Package simulation assembles processors, caches and a bus into a runnable
// coherence simulation.
package simulation

import (
	"errors"
	"fmt"
	"io"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/cache"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/datarecording"
	"github.com/sarchlab/cohsim/monitoring"
	"github.com/sarchlab/cohsim/processor"
	"github.com/sarchlab/cohsim/sim/timing"
	"github.com/sarchlab/cohsim/tracing"
)

// ErrDeadlock is returned when the event queue drains while a processor
// still has references to issue.
var ErrDeadlock = errors.New("simulation stopped with unfinished processors")

// A Simulation is one configured run.
type Simulation struct {
	id       string
	config   Config
	protocol *coherence.Protocol
	refs     int

	engine *timing.SerialEngine
	bus    *bus.Bus
	caches []*cache.Controller
	procs  []*processor.Processor
	stats  []*coherence.Stats

	checker  *Checker
	counter  *tracing.TransitionCountTracer
	busTime  *tracing.BusTimeTracer
	recorder datarecording.DataRecorder
	dbTracer *tracing.DBTracer
	monitor  *monitoring.Monitor
}

// ID returns the unique ID of the simulation.
func (s *Simulation) ID() string {
	return s.id
}

// Config returns the configuration the simulation was built with.
func (s *Simulation) Config() Config {
	return s.config
}

// Protocol returns the coherence protocol of all the caches.
func (s *Simulation) Protocol() *coherence.Protocol {
	return s.protocol
}

// Engine returns the engine that drives the simulation.
func (s *Simulation) Engine() *timing.SerialEngine {
	return s.engine
}

// Bus returns the snooping bus.
func (s *Simulation) Bus() *bus.Bus {
	return s.bus
}

// Caches returns the caches, indexed by processor.
func (s *Simulation) Caches() []*cache.Controller {
	return s.caches
}

// Processors returns the processors.
func (s *Simulation) Processors() []*processor.Processor {
	return s.procs
}

// Monitor returns the monitor, or nil when monitoring is off.
func (s *Simulation) Monitor() *monitoring.Monitor {
	return s.monitor
}

// Run replays the trace to the end. It stops at the first protocol
// violation or broken invariant and returns the report up to that point
// together with the error.
func (s *Simulation) Run() (RunReport, error) {
	for _, p := range s.procs {
		p.Start()
	}

	err := s.engine.Run()
	if err == nil {
		err = s.mustBeFinished()
	}

	if err == nil && s.checker != nil {
		err = s.checker.CheckAll()
	}

	report := s.Report()

	if s.recorder != nil {
		tracing.RecordReport(s.recorder, report.Entries())
	}

	return report, err
}

func (s *Simulation) mustBeFinished() error {
	for _, p := range s.procs {
		if p.Finished() {
			continue
		}

		done, total := p.Progress()
		ref, _ := p.Outstanding()

		return fmt.Errorf("%w: %s finished %d of %d references, waiting on %s",
			ErrDeadlock, p.Name(), done, total, ref)
	}

	return nil
}

// Report summarizes the simulation so far.
func (s *Simulation) Report() RunReport {
	r := RunReport{
		Protocol:    s.protocol.Name(),
		Procs:       len(s.procs),
		References:  s.refs,
		SimTime:     s.engine.Now(),
		Bus:         s.bus.Stats(),
		Transitions: s.counter.Counts(),
		BusBusyTime: s.busTime.BusyTime(),
		AvgGetSTime: s.busTime.AverageTime(coherence.GetS),
		AvgGetMTime: s.busTime.AverageTime(coherence.GetM),
	}

	for i, p := range s.procs {
		r.Total.Add(*s.stats[i])
		r.PerProc = append(r.PerProc, ProcReport{
			ID:        i,
			Coherence: *s.stats[i],
			Processor: p.Stats(),
		})
	}

	if s.checker != nil {
		r.LoadsChecked = s.checker.LoadsChecked()
	}

	return r
}

// Dump writes the state of every block of every cache.
func (s *Simulation) Dump(w io.Writer) {
	fmt.Fprintf(w, "t=%.2f\n", float64(s.engine.Now()))

	for _, c := range s.caches {
		c.Dump(w)
	}

	if tx, inFlight := s.bus.Current(); inFlight {
		fmt.Fprintf(w, "bus: %s\n", tx)
	}
}

// Terminate flushes and closes the recorder and stops the monitor.
func (s *Simulation) Terminate() error {
	if s.monitor != nil {
		s.monitor.StopServer()
	}

	if s.recorder == nil {
		return nil
	}

	s.dbTracer.Terminate()

	return s.recorder.Close()
}
