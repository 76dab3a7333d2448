package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sarchlab/lamportvm/analysis"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze DIR",
	Short: "Tabulate the logical clocks and queue lengths found in the logs.",
	Long: "`analyze DIR` reads every machine_<id>.log in DIR and writes " +
		"logical_clock.txt, queue_length.txt and summary.csv next to them.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()

		report, err := analysis.AnalyzeDir(args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Logical clock values written to %s\n",
			report.LogicalClockPath)
		fmt.Fprintf(out, "Queue lengths written to %s\n",
			report.QueueLengthPath)
		fmt.Fprintf(out, "Summary written to %s\n", report.SummaryPath)
		printSummary(out, report.Summary)

		recording, _ := cmd.Flags().GetString("recording")
		if recording == "" {
			return nil
		}

		logs, err := analysis.ReadRecording(cmd.Context(), recording)
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Recording %s:\n", recording)
		printSummary(out, analysis.Summarize(logs))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeCmd.Flags().String("recording", "",
		"Also summarize the cycles recorded in <recording>.sqlite3.")
}

func printSummary(out io.Writer, s analysis.Summary) {
	for _, m := range s.Machines {
		fmt.Fprintf(out,
			"Machine %d: %d ticks/s, %d cycles, final clock %d, "+
				"max queue length %d\n",
			m.ID, m.TickRate, m.Cycles, m.FinalClock, m.MaxQueueLength)
	}

	fmt.Fprintf(out, "Max clock drift: %d\n", s.MaxDrift)
}
