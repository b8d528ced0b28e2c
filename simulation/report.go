package simulation

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/sarchlab/cohsim/bus"
	"github.com/sarchlab/cohsim/coherence"
	"github.com/sarchlab/cohsim/processor"
	"github.com/sarchlab/cohsim/sim/timing"
	"github.com/sarchlab/cohsim/tracing"
)

// ProcReport is the outcome of one processor.
type ProcReport struct {
	ID        int             `json:"id"`
	Coherence coherence.Stats `json:"coherence"`
	Processor processor.Stats `json:"processor"`
}

// RunReport summarizes a run.
type RunReport struct {
	Protocol     string                    `json:"protocol"`
	Procs        int                       `json:"procs"`
	References   int                       `json:"references"`
	SimTime      timing.VTime              `json:"sim_time"`
	Total        coherence.Stats           `json:"total"`
	PerProc      []ProcReport              `json:"per_proc"`
	Bus          bus.Stats                 `json:"bus"`
	BusBusyTime  timing.VTime              `json:"bus_busy_time"`
	AvgGetSTime  float64                   `json:"avg_gets_time"`
	AvgGetMTime  float64                   `json:"avg_getm_time"`
	Transitions  []tracing.TransitionCount `json:"-"`
	LoadsChecked uint64                    `json:"loads_checked"`
}

// Print writes the report in a human-readable form.
func (r RunReport) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "Protocol:\t%s\n", r.Protocol)
	fmt.Fprintf(tw, "Processors:\t%d\n", r.Procs)
	fmt.Fprintf(tw, "References:\t%d\n", r.References)
	fmt.Fprintf(tw, "Simulated time:\t%.2f\n", float64(r.SimTime))
	fmt.Fprintf(tw, "Hits:\t%d\n", r.Total.Hits)
	fmt.Fprintf(tw, "Misses:\t%d\n", r.Total.Misses)
	fmt.Fprintf(tw, "Miss rate:\t%.4f\n", r.Total.MissRate())
	fmt.Fprintf(tw, "Silent upgrades:\t%d\n", r.Total.SilentUpgrades)
	fmt.Fprintf(tw, "Bus:\t%s\n", r.Bus)
	fmt.Fprintf(tw, "Bus utilization:\t%.4f\n", r.BusUtilization())
	fmt.Fprintf(tw, "Avg GETS/GETM time:\t%.2f / %.2f\n",
		r.AvgGetSTime, r.AvgGetMTime)

	if r.LoadsChecked > 0 {
		fmt.Fprintf(tw, "Loads checked:\t%d\n", r.LoadsChecked)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Proc\tLoads\tStores\tHits\tMisses\tUpgrades\tStall\tDone at")

	for _, p := range r.PerProc {
		fmt.Fprintf(tw, "P%d\t%d\t%d\t%d\t%d\t%d\t%.2f\t%.2f\n",
			p.ID, p.Processor.Loads, p.Processor.Stores,
			p.Coherence.Hits, p.Coherence.Misses, p.Coherence.SilentUpgrades,
			float64(p.Processor.StallTime), float64(p.Processor.FinishedAt))
	}

	if len(r.Transitions) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "From\tMsg\tTo\tCount")

		for _, t := range r.Transitions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", t.From, t.Kind, t.To, t.Count)
		}
	}

	return tw.Flush()
}

// BusUtilization is the fraction of simulated time the bus was busy.
func (r RunReport) BusUtilization() float64 {
	if r.SimTime == 0 {
		return 0
	}

	return float64(r.BusBusyTime) / float64(r.SimTime)
}

// Entries flattens the report for storage.
func (r RunReport) Entries() []tracing.ReportItem {
	entries := []tracing.ReportItem{
		{Location: "System", What: "SimTime", Value: float64(r.SimTime), Unit: "cycle"},
		{Location: "System", What: "Hits", Value: float64(r.Total.Hits), Unit: "count"},
		{Location: "System", What: "Misses", Value: float64(r.Total.Misses), Unit: "count"},
		{Location: "System", What: "SilentUpgrades", Value: float64(r.Total.SilentUpgrades), Unit: "count"},
		{Location: "Bus", What: "Transactions", Value: float64(r.Bus.Transactions), Unit: "count"},
		{Location: "Bus", What: "CacheToCache", Value: float64(r.Bus.CacheToCache), Unit: "count"},
		{Location: "Bus", What: "MemoryReads", Value: float64(r.Bus.MemoryReads), Unit: "count"},
		{Location: "Bus", What: "WriteBacks", Value: float64(r.Bus.WriteBacks), Unit: "count"},
		{Location: "Bus", What: "BusyTime", Value: float64(r.BusBusyTime), Unit: "cycle"},
	}

	for _, p := range r.PerProc {
		loc := fmt.Sprintf("P%d", p.ID)
		entries = append(entries,
			tracing.ReportItem{Location: loc, What: "Hits", Value: float64(p.Coherence.Hits), Unit: "count"},
			tracing.ReportItem{Location: loc, What: "Misses", Value: float64(p.Coherence.Misses), Unit: "count"},
			tracing.ReportItem{Location: loc, What: "SilentUpgrades", Value: float64(p.Coherence.SilentUpgrades), Unit: "count"},
			tracing.ReportItem{Location: loc, What: "StallTime", Value: float64(p.Processor.StallTime), Unit: "cycle"},
		)
	}

	return entries
}
