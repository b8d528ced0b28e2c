package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/cohsim/datarecording"
	"github.com/sarchlab/cohsim/sim/timing"
	"github.com/sarchlab/cohsim/simulation"
	"github.com/sarchlab/cohsim/trace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a reference trace through a coherence protocol.",
	Long: "`run --protocol MESI --trace refs.txt` simulates the trace and " +
		"prints a report. Trace lines have the form `<proc> <r|w> <addr>`.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSimulation(cmd.Flags())
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd.Flags())

	_ = runCmd.MarkFlagRequired("trace")
}

func addRunFlags(f *pflag.FlagSet) {
	f.String("protocol", "", "Coherence protocol (default $"+protocolEnv+" or MESI)")
	f.String("trace", "", "Reference trace file, - for stdin")
	f.Int("procs", 0, "Number of processors (default: enough for the trace)")
	f.String("config", "", "YAML configuration file")
	f.String("db", "", "Record transitions and transactions into this SQLite file")
	f.Float64("db-start", 0, "Only record from this virtual time on")
	f.Float64("db-end", 0, "Only record up to this virtual time (default: the end)")
	f.Bool("parallel-ids", false, "Use globally unique message IDs instead of sequential ones")
	f.Bool("log-transitions", false, "Print every transition")
	f.Bool("log-events", false, "Print every engine event")
	f.Bool("no-check", false, "Disable the coherence invariant checker")
	f.Bool("monitor", false, "Serve the simulation state over HTTP")
	f.Int("monitor-port", 0, "Port of the monitoring server (default random)")
	f.Bool("open-browser", false, "Open the monitor in a browser")
	f.Bool("dump", false, "Print every cache line at the end")
	f.Bool("json", false, "Print the report as JSON")
}

func runSimulation(flags *pflag.FlagSet) error {
	refs, err := readTrace(flags)
	if err != nil {
		return err
	}

	cfg, err := resolveConfig(flags, refs)
	if err != nil {
		return err
	}

	b := simulation.MakeBuilder().
		WithConfig(cfg).
		WithReferences(refs)

	b, err = withInstrumentation(flags, b)
	if err != nil {
		return err
	}

	s, err := b.Build()
	if err != nil {
		return err
	}

	report, runErr := s.Run()

	if dump, _ := flags.GetBool("dump"); dump || runErr != nil {
		s.Dump(os.Stdout)
	}

	if err := printReport(flags, report); err != nil {
		return err
	}

	if err := s.Terminate(); err != nil {
		return err
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		atexit.Exit(2)
	}

	return nil
}

func readTrace(flags *pflag.FlagSet) ([]trace.Reference, error) {
	path, _ := flags.GetString("trace")
	if path == "-" {
		return trace.Parse(os.Stdin)
	}

	return trace.ParseFile(path)
}

// resolveConfig layers, from lowest to highest priority, the defaults, the
// environment, the config file and the flags.
func resolveConfig(
	flags *pflag.FlagSet,
	refs []trace.Reference,
) (simulation.Config, error) {
	cfg := simulation.DefaultConfig()
	cfg.Protocol = defaultProtocol()
	cfg.Procs = max(trace.MaxProc(refs)+1, 1)

	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := simulation.LoadConfig(path)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	if flags.Changed("protocol") {
		cfg.Protocol, _ = flags.GetString("protocol")
	}

	if flags.Changed("procs") {
		cfg.Procs, _ = flags.GetInt("procs")
	}

	if noCheck, _ := flags.GetBool("no-check"); noCheck {
		cfg.CheckInvariants = false
	}

	return cfg, cfg.Validate()
}

func withInstrumentation(
	flags *pflag.FlagSet,
	b simulation.Builder,
) (simulation.Builder, error) {
	if logTransitions, _ := flags.GetBool("log-transitions"); logTransitions {
		b = b.WithTransitionLogger(log.New(os.Stdout, "", 0))
	}

	if logEvents, _ := flags.GetBool("log-events"); logEvents {
		b = b.WithEventLogger(log.New(os.Stderr, "", 0))
	}

	if path, _ := flags.GetString("db"); path != "" {
		start, end, err := resolveDBTimeRange(flags)
		if err != nil {
			return b, err
		}

		recorder, err := datarecording.NewDataRecorder(path)
		if err != nil {
			return b, err
		}

		b = b.WithDataRecorder(recorder).WithDBTimeRange(start, end)
	}

	if parallel, _ := flags.GetBool("parallel-ids"); parallel {
		b = b.WithParallelIDs()
	}

	if monitor, _ := flags.GetBool("monitor"); monitor {
		port, _ := flags.GetInt("monitor-port")
		b = b.WithMonitor(port)

		if open, _ := flags.GetBool("open-browser"); open {
			b = b.WithBrowser()
		}
	}

	return b, nil
}

func resolveDBTimeRange(flags *pflag.FlagSet) (start, end timing.VTime, err error) {
	startTime, _ := flags.GetFloat64("db-start")
	endTime, _ := flags.GetFloat64("db-end")

	if startTime < 0 || endTime < 0 {
		return 0, 0, errors.New("db-start and db-end must not be negative")
	}

	if endTime != 0 && endTime < startTime {
		return 0, 0, fmt.Errorf("db-end %g is before db-start %g", endTime, startTime)
	}

	return timing.VTime(startTime), timing.VTime(endTime), nil
}

func printReport(flags *pflag.FlagSet, report simulation.RunReport) error {
	if asJSON, _ := flags.GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(report)
	}

	return report.Print(os.Stdout)
}
