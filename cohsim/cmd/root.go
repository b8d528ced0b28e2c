// Package cmd provides the command-line interface of cohsim.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

// protocolEnv names the environment variable that selects the default
// protocol.
const protocolEnv = "COHSIM_PROTOCOL"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "cohsim",
	Short: "cohsim simulates snooping cache coherence protocols.",
	Long: `cohsim runs memory reference traces through a family of ` +
		`snooping coherence protocols (MSI, MESI, MOSI, MOESI and MOESIF) ` +
		`on an atomic bus and reports hits, misses and bus traffic.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		loadEnv()
	},
	SilenceUsage: true,
}

// loadEnv reads .env from the working directory when it exists.
func loadEnv() {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Warning: cannot load .env: %v\n", err)
	}
}

// defaultProtocol returns the protocol to use when none is given.
func defaultProtocol() string {
	if p := os.Getenv(protocolEnv); p != "" {
		return p
	}

	return "MESI"
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		atexit.Exit(1)
	}

	atexit.Exit(0)
}
