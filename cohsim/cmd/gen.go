package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cohsim/trace"
)

var genCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate a synthetic reference trace.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()

		cfg := trace.DefaultGeneratorConfig()
		cfg.Procs, _ = flags.GetInt("procs")
		cfg.Refs, _ = flags.GetInt("refs")
		cfg.Lines, _ = flags.GetInt("lines")
		cfg.BlockSize, _ = flags.GetUint64("block-size")
		cfg.SharedFraction, _ = flags.GetFloat64("shared")
		cfg.StoreFraction, _ = flags.GetFloat64("stores")
		cfg.Seed, _ = flags.GetInt64("seed")

		refs, err := trace.Generate(cfg)
		if err != nil {
			return err
		}

		out, _ := flags.GetString("out")
		if out == "" || out == "-" {
			return trace.Write(os.Stdout, refs)
		}

		f, err := os.Create(out)
		if err != nil {
			return err
		}

		if err := trace.Write(f, refs); err != nil {
			f.Close()
			return err
		}

		return f.Close()
	},
}

func init() {
	rootCmd.AddCommand(genCmd)

	d := trace.DefaultGeneratorConfig()
	genCmd.Flags().Int("procs", d.Procs, "Number of processors")
	genCmd.Flags().Int("refs", d.Refs, "Number of references")
	genCmd.Flags().Int("lines", d.Lines, "Number of shared blocks")
	genCmd.Flags().Uint64("block-size", d.BlockSize, "Block size in bytes")
	genCmd.Flags().Float64("shared", d.SharedFraction,
		"Fraction of references to shared blocks")
	genCmd.Flags().Float64("stores", d.StoreFraction,
		"Fraction of references that are stores")
	genCmd.Flags().Int64("seed", d.Seed, "Random seed")
	genCmd.Flags().String("out", "", "Output file (default stdout)")
}
