package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sarchlab/cohsim/datarecording"
	"github.com/sarchlab/cohsim/tracing"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Read back a database written by `run --db`.",
	Long: "`inspect --db run.sqlite3` lists the tables. With `--table` it " +
		"prints the rows of one table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		flags := cmd.Flags()
		path, _ := flags.GetString("db")
		table, _ := flags.GetString("table")
		where, _ := flags.GetString("where")
		limit, _ := flags.GetInt("limit")

		reader, err := datarecording.NewDataReader(path)
		if err != nil {
			return err
		}
		defer reader.Close()

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		if table == "" {
			tables, err := reader.ListTables(ctx)
			if err != nil {
				return err
			}

			for _, t := range tables {
				fmt.Println(t)
			}

			return nil
		}

		sample, known := tracing.RecordedTables()[table]
		if !known {
			return fmt.Errorf("unknown table %q", table)
		}

		reader.MapTable(table, sample)

		rows, total, err := reader.Query(ctx, table, datarecording.QueryParams{
			Where: where,
			Limit: limit,
		})
		if err != nil {
			return err
		}

		for _, row := range rows {
			fmt.Printf("%+v\n", row)
		}

		fmt.Printf("%d of %d rows\n", len(rows), total)

		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
	inspectCmd.Flags().String("db", "", "SQLite file written by run --db")
	inspectCmd.Flags().String("table", "", "Table to print")
	inspectCmd.Flags().String("where", "", "SQL condition on the rows")
	inspectCmd.Flags().Int("limit", 20, "Maximum rows to print, 0 for all")
	_ = inspectCmd.MarkFlagRequired("db")
}
