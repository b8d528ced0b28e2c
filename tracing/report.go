package tracing

import "github.com/sarchlab/cohsim/datarecording"

// ReportItem is one number of a simulation report.
type ReportItem struct {
	Location string
	What     string
	Value    float64
	Unit     string
}

const reportTable = "report"

// RecordReport stores report entries into a "report" table.
func RecordReport(recorder datarecording.DataRecorder, entries []ReportItem) {
	recorder.CreateTable(reportTable, ReportItem{})

	for _, e := range entries {
		recorder.InsertData(reportTable, e)
	}

	recorder.Flush()
}

// RecordedTables maps every table the tracing package writes to a sample row.
func RecordedTables() map[string]any {
	return map[string]any{
		transitionTable:  TransitionEntry{},
		transactionTable: TransactionEntry{},
		reportTable:      ReportItem{},
	}
}
