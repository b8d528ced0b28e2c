// Package monitoring serves the state of a running simulation over HTTP.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"runtime/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/google/pprof/profile"
	"github.com/gorilla/mux"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/cache"
	"github.com/sarchlab/cohsim/sim/id"
	"github.com/sarchlab/cohsim/sim/timing"
)

// Monitor can turn a simulation into a server and allows external monitoring
// and controlling of the simulation.
type Monitor struct {
	engine     timing.Engine
	bus        *bus.Bus
	caches     []*cache.Controller
	portNumber int
	server     *http.Server

	progressBarsLock sync.Mutex
	progressBars     []*ProgressBar
}

// NewMonitor creates a new Monitor
func NewMonitor() *Monitor {
	return &Monitor{}
}

// WithPortNumber sets the port number of the monitor.
func (m *Monitor) WithPortNumber(portNumber int) *Monitor {
	if portNumber != 0 && portNumber < 1000 {
		fmt.Fprintf(os.Stderr,
			"Port number %d is assigned to the monitoring server, "+
				"which is not allowed. Using a random port instead.\n", portNumber)
		portNumber = 0
	}

	m.portNumber = portNumber

	return m
}

// RegisterEngine registers the engine that is used in the simulation.
func (m *Monitor) RegisterEngine(e timing.Engine) {
	m.engine = e
}

// RegisterBus registers the snooping bus.
func (m *Monitor) RegisterBus(b *bus.Bus) {
	m.bus = b
}

// RegisterCache registers a cache controller to be monitored.
func (m *Monitor) RegisterCache(c *cache.Controller) {
	m.caches = append(m.caches, c)
}

// CreateProgressBar creates a new progress bar.
func (m *Monitor) CreateProgressBar(name string, total uint64) *ProgressBar {
	bar := &ProgressBar{
		ID:        id.Generate(),
		Name:      name,
		StartTime: time.Now(),
		Total:     total,
	}

	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	m.progressBars = append(m.progressBars, bar)

	return bar
}

// CompleteProgressBar removes a bar from the progress list.
func (m *Monitor) CompleteProgressBar(pb *ProgressBar) {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	newBars := make([]*ProgressBar, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		if b != pb {
			newBars = append(newBars, b)
		}
	}

	m.progressBars = newBars
}

func (m *Monitor) router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/pause", m.pauseEngine)
	r.HandleFunc("/api/continue", m.continueEngine)
	r.HandleFunc("/api/now", m.now)
	r.HandleFunc("/api/stats", m.stats)
	r.HandleFunc("/api/bus", m.busStatus)
	r.HandleFunc("/api/caches", m.listCaches)
	r.HandleFunc("/api/cache/{name}", m.cacheDetails)
	r.HandleFunc("/api/line/{proc:[0-9]+}/{addr}", m.lineDetails)
	r.HandleFunc("/api/progress", m.listProgressBars)
	r.HandleFunc("/api/resource", m.listResources)
	r.HandleFunc("/api/profile", m.collectProfile)

	return r
}

// StartServer starts the monitor as a web server and returns its URL.
func (m *Monitor) StartServer() string {
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(m.portNumber))
	dieOnErr(err)

	url := fmt.Sprintf("http://localhost:%d",
		listener.Addr().(*net.TCPAddr).Port)
	fmt.Fprintf(os.Stderr, "Monitoring simulation with %s\n", url)

	m.server = &http.Server{
		Handler:           m.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		err := m.server.Serve(listener)
		if err != nil && err != http.ErrServerClosed {
			dieOnErr(err)
		}
	}()

	return url
}

// StopServer shuts the server down. Calling it without a running server does
// nothing.
func (m *Monitor) StopServer() {
	if m.server == nil {
		return
	}

	dieOnErr(m.server.Close())
	m.server = nil
}

func (m *Monitor) pauseEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Pause()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) continueEngine(w http.ResponseWriter, _ *http.Request) {
	m.engine.Continue()
	w.WriteHeader(http.StatusOK)
}

func (m *Monitor) now(w http.ResponseWriter, _ *http.Request) {
	var now timing.VTime
	m.engine.Inspect(func() { now = m.engine.Now() })

	fmt.Fprintf(w, "{\"now\":%.10f}", float64(now))
}

type cacheStatsRsp struct {
	Name           string `json:"name"`
	Protocol       string `json:"protocol"`
	Hits           uint64 `json:"hits"`
	Misses         uint64 `json:"misses"`
	SilentUpgrades uint64 `json:"silent_upgrades"`
	Lines          int    `json:"lines"`
}

type statsRsp struct {
	Now    float64         `json:"now"`
	Bus    bus.Stats       `json:"bus"`
	Caches []cacheStatsRsp `json:"caches"`
}

func (m *Monitor) stats(w http.ResponseWriter, _ *http.Request) {
	rsp := statsRsp{}

	m.engine.Inspect(func() {
		rsp.Now = float64(m.engine.Now())

		if m.bus != nil {
			rsp.Bus = m.bus.Stats()
		}

		for _, c := range m.caches {
			entry := cacheStatsRsp{
				Name:     c.Name(),
				Protocol: c.Protocol().Name(),
				Lines:    len(c.Lines()),
			}

			if s := c.Stats(); s != nil {
				entry.Hits = s.Hits
				entry.Misses = s.Misses
				entry.SilentUpgrades = s.SilentUpgrades
			}

			rsp.Caches = append(rsp.Caches, entry)
		}
	})

	writeJSON(w, rsp)
}

type busRsp struct {
	Busy        bool   `json:"busy"`
	Transaction string `json:"transaction,omitempty"`
	Queued      int    `json:"queued"`
}

func (m *Monitor) busStatus(w http.ResponseWriter, _ *http.Request) {
	if m.bus == nil {
		http.Error(w, "no bus registered", http.StatusNotFound)
		return
	}

	rsp := busRsp{}

	m.engine.Inspect(func() {
		tx, busy := m.bus.Current()
		rsp.Busy = busy
		rsp.Queued = m.bus.QueueLength()

		if busy {
			rsp.Transaction = tx.String()
		}
	})

	writeJSON(w, rsp)
}

func (m *Monitor) listCaches(w http.ResponseWriter, _ *http.Request) {
	names := make([]string, 0, len(m.caches))
	for _, c := range m.caches {
		names = append(names, c.Name())
	}

	writeJSON(w, names)
}

func (m *Monitor) cacheDetails(w http.ResponseWriter, r *http.Request) {
	c := m.findCacheOr404(w, mux.Vars(r)["name"])
	if c == nil {
		return
	}

	buf := new(bytes.Buffer)

	var err error
	m.engine.Inspect(func() {
		serializer := goseth.NewSerializer()
		serializer.SetRoot(c)
		serializer.SetMaxDepth(1)
		err = serializer.Serialize(buf)
	})
	dieOnErr(err)

	_, err = w.Write(buf.Bytes())
	dieOnErr(err)
}

type lineRsp struct {
	Cache   string `json:"cache"`
	Addr    string `json:"addr"`
	State   string `json:"state"`
	Version uint64 `json:"version"`
	Dirty   bool   `json:"dirty"`
}

func (m *Monitor) lineDetails(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	proc, err := strconv.Atoi(vars["proc"])
	if err != nil || proc >= len(m.caches) {
		http.Error(w, "Processor not found", http.StatusNotFound)
		return
	}

	addr, err := strconv.ParseUint(vars["addr"], 0, 64)
	if err != nil {
		http.Error(w, "Invalid address: "+vars["addr"], http.StatusBadRequest)
		return
	}

	c := m.caches[proc]

	var info cache.LineInfo
	m.engine.Inspect(func() {
		var found bool
		if info, found = c.Line(addr); !found {
			info = cache.LineInfo{Addr: c.BlockAddr(addr), State: c.State(addr)}
		}
	})

	writeJSON(w, lineRsp{
		Cache:   c.Name(),
		Addr:    fmt.Sprintf("0x%x", info.Addr),
		State:   info.State.String(),
		Version: info.Version,
		Dirty:   info.Dirty,
	})
}

func (m *Monitor) findCacheOr404(
	w http.ResponseWriter,
	name string,
) *cache.Controller {
	for _, c := range m.caches {
		if c.Name() == name {
			return c
		}
	}

	http.Error(w, "Cache not found", http.StatusNotFound)

	return nil
}

// ProgressBars returns a snapshot of every bar that is not complete.
func (m *Monitor) ProgressBars() []ProgressSnapshot {
	m.progressBarsLock.Lock()
	defer m.progressBarsLock.Unlock()

	snapshots := make([]ProgressSnapshot, 0, len(m.progressBars))
	for _, b := range m.progressBars {
		snapshots = append(snapshots, b.Snapshot())
	}

	return snapshots
}

func (m *Monitor) listProgressBars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, m.ProgressBars())
}

type resourceRsp struct {
	CPUPercent float64 `json:"cpu_percent"`
	MemorySize uint64  `json:"memory_size"`
}

func (m *Monitor) listResources(w http.ResponseWriter, _ *http.Request) {
	pid := os.Getpid()
	process, err := process.NewProcess(int32(pid))
	dieOnErr(err)

	cpuPercent, err := process.CPUPercent()
	dieOnErr(err)

	memorySize, err := process.MemoryInfo()
	dieOnErr(err)

	writeJSON(w, resourceRsp{
		CPUPercent: cpuPercent,
		MemorySize: memorySize.RSS,
	})
}

func (m *Monitor) collectProfile(w http.ResponseWriter, _ *http.Request) {
	buf := bytes.NewBuffer(nil)

	err := pprof.StartCPUProfile(buf)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	time.Sleep(time.Second)

	pprof.StopCPUProfile()

	prof, err := profile.ParseData(buf.Bytes())
	dieOnErr(err)

	writeJSON(w, prof)
}

func writeJSON(w http.ResponseWriter, v any) {
	bytes, err := json.Marshal(v)
	dieOnErr(err)

	w.Header().Set("Content-Type", "application/json")

	_, err = w.Write(bytes)
	dieOnErr(err)
}

func dieOnErr(err error) {
	if err != nil {
		log.Panic(err)
	}
}
