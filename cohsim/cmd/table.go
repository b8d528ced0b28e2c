package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cohsim/coherence"
)

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the transition table of a protocol.",
	Long: "`table --protocol MOESIF` prints one row per state and one " +
		"column per message. `table --list` prints the known protocols.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		list, _ := cmd.Flags().GetBool("list")
		if list {
			for _, p := range coherence.Protocols() {
				fmt.Println(p.Name())
			}

			return nil
		}

		name, _ := cmd.Flags().GetString("protocol")
		if name == "" {
			name = defaultProtocol()
		}

		p, err := coherence.ProtocolByName(name)
		if err != nil {
			return err
		}

		return p.WriteTable(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(tableCmd)
	tableCmd.Flags().String("protocol", "",
		"Protocol to print (default $"+protocolEnv+" or MESI)")
	tableCmd.Flags().Bool("list", false, "List the supported protocols")
}
