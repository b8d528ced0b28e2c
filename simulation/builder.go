package simulation

import (
	"fmt"
	"log"

	"github.com/pkg/browser"
	"github.com/rs/xid"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/cache"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/datarecording"
	"github.com/sarchlab/cohsim/monitoring"
	"github.com/sarchlab/cohsim/processor"
	"github.com/sarchlab/cohsim/sim/hooking"
	"github.com/sarchlab/cohsim/sim/id"
	"github.com/sarchlab/cohsim/sim/timing"
	"github.com/sarchlab/cohsim/trace"
	"github.com/sarchlab/cohsim/tracing"
)

// Builder can be used to build a simulation.
type Builder struct {
	config      Config
	refs        []trace.Reference
	logger      *log.Logger
	eventLogger *log.Logger
	recorder    datarecording.DataRecorder
	dbStart     timing.VTime
	dbEnd       timing.VTime
	parallelIDs bool
	hooks       []hooking.Hook
	monitorOn   bool
	monitorPort int
	openBrowser bool
}

// MakeBuilder creates a builder with the default configuration.
func MakeBuilder() Builder {
	return Builder{
		config: DefaultConfig(),
	}
}

// WithConfig sets the configuration.
func (b Builder) WithConfig(cfg Config) Builder {
	b.config = cfg
	return b
}

// WithReferences sets the trace to replay.
func (b Builder) WithReferences(refs []trace.Reference) Builder {
	b.refs = refs
	return b
}

// WithTransitionLogger prints every transition and transaction to logger.
func (b Builder) WithTransitionLogger(logger *log.Logger) Builder {
	b.logger = logger
	return b
}

// WithEventLogger prints every event the engine handles to logger.
func (b Builder) WithEventLogger(logger *log.Logger) Builder {
	b.eventLogger = logger
	return b
}

// WithDataRecorder stores transitions, transactions and the report.
func (b Builder) WithDataRecorder(r datarecording.DataRecorder) Builder {
	b.recorder = r
	return b
}

// WithDBTimeRange limits the recorded transitions and transactions to those
// between start and end. An end of 0 records until the run finishes.
func (b Builder) WithDBTimeRange(start, end timing.VTime) Builder {
	b.dbStart = start
	b.dbEnd = end

	return b
}

// WithParallelIDs makes messages and events use globally unique IDs instead
// of sequential ones. The choice is process wide and must be made before the
// first simulation of the process is built.
func (b Builder) WithParallelIDs() Builder {
	b.parallelIDs = true
	return b
}

// WithHook adds a hook to every cache and to the bus.
func (b Builder) WithHook(h hooking.Hook) Builder {
	b.hooks = append(b.hooks, h)
	return b
}

// WithMonitor serves the monitoring API while the simulation runs. Port 0
// picks a free port.
func (b Builder) WithMonitor(port int) Builder {
	b.monitorOn = true
	b.monitorPort = port

	return b
}

// WithBrowser opens the monitor in a browser once it is up.
func (b Builder) WithBrowser() Builder {
	b.openBrowser = true
	return b
}

func (b Builder) parametersMustBeValid() {
	if b.openBrowser && !b.monitorOn {
		panic("cannot open a browser when monitoring is disabled")
	}

	if b.dbEnd != 0 && b.dbEnd < b.dbStart {
		panic("db time range ends before it starts")
	}
}

// Build creates the simulation. Invalid configurations and traces that use
// more processors than configured are reported as errors.
func (b Builder) Build() (*Simulation, error) {
	b.parametersMustBeValid()

	if b.parallelIDs {
		id.UseParallelIDGenerator()
	}

	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	perProc, err := trace.SplitByProc(b.refs, b.config.Procs)
	if err != nil {
		return nil, err
	}

	s := &Simulation{
		id:       xid.New().String(),
		config:   b.config,
		protocol: coherence.MustProtocol(b.config.Protocol),
		refs:     len(b.refs),
		engine:   timing.NewSerialEngine(),
		counter:  tracing.NewTransitionCountTracer(),
		busTime:  tracing.NewBusTimeTracer(),
		recorder: b.recorder,
	}

	if b.eventLogger != nil {
		s.engine.AcceptHook(timing.NewEventLogger(b.eventLogger))
	}

	if b.config.CheckInvariants {
		s.checker = NewChecker()
	}

	b.buildBus(s)
	b.buildNodes(s, perProc)
	b.attachTracers(s)

	if b.monitorOn {
		b.startMonitor(s)
	}

	return s, nil
}

func (b Builder) buildBus(s *Simulation) {
	s.bus = bus.MakeBuilder().
		WithEngine(s.engine).
		WithProtocol(s.protocol.Name()).
		WithLatency(timing.VTime(b.config.BusLatency)).
		WithMemoryLatency(timing.VTime(b.config.MemoryLatency)).
		Build("Bus")

	if s.checker != nil {
		s.bus.Observe(s.checker)
	}
}

func (b Builder) buildNodes(s *Simulation, perProc [][]trace.Reference) {
	versions := &cache.VersionCounter{}

	for i := 0; i < b.config.Procs; i++ {
		stats := &coherence.Stats{}

		p := processor.NewProcessor(
			fmt.Sprintf("P%d", i), i, s.engine,
			timing.VTime(b.config.HitLatency), perProc[i])

		tap := &requesterTap{next: p, checker: s.checker}

		cb := cache.MakeBuilder().
			WithProcID(i).
			WithProtocol(s.protocol).
			WithBlockSize(b.config.BlockSize).
			WithBus(s.bus).
			WithStats(stats).
			WithRequester(tap).
			WithVersionSource(versions)
		if s.checker != nil {
			cb = cb.WithLoadChecker(s.checker)
		}

		c := cb.Build(fmt.Sprintf("P%d.Cache", i))
		p.SetCache(c)
		s.bus.Plug(c)

		if s.checker != nil {
			s.checker.Watch(c)
		}

		s.procs = append(s.procs, p)
		s.caches = append(s.caches, c)
		s.stats = append(s.stats, stats)
	}
}

func (b Builder) attachTracers(s *Simulation) {
	var tracers []tracing.Tracer

	tracers = append(tracers, s.counter, s.busTime)

	if b.logger != nil {
		tracers = append(tracers, tracing.NewTransitionLogger(b.logger, s.engine))
	}

	if b.recorder != nil {
		s.dbTracer = tracing.NewDBTracer(s.engine, b.recorder)
		s.dbTracer.SetTimeRange(b.dbStart, b.dbEnd)
		tracers = append(tracers, s.dbTracer)
	}

	for _, t := range tracers {
		tracing.CollectTrace(s.bus, t)

		for _, c := range s.caches {
			tracing.CollectTrace(c, t)
		}
	}

	for _, h := range b.hooks {
		s.bus.AcceptHook(h)

		for _, c := range s.caches {
			c.AcceptHook(h)
		}
	}
}

func (b Builder) startMonitor(s *Simulation) {
	s.monitor = monitoring.NewMonitor().WithPortNumber(b.monitorPort)
	s.monitor.RegisterEngine(s.engine)
	s.monitor.RegisterBus(s.bus)

	for i, c := range s.caches {
		s.monitor.RegisterCache(c)

		p := s.procs[i]
		if p.Finished() {
			continue
		}

		_, total := p.Progress()
		bar := s.monitor.CreateProgressBar(p.Name(), uint64(total))
		c.SetRequester(&requesterTap{
			next:    p,
			checker: s.checker,
			progress: func() {
				bar.IncrementFinished(1)

				if p.Finished() {
					s.monitor.CompleteProgressBar(bar)
				}
			},
		})
	}

	url := s.monitor.StartServer()

	if b.openBrowser {
		if err := browser.OpenURL(url); err != nil {
			log.Printf("cannot open browser: %v", err)
		}
	}
}
