package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sarchlab/lamportvm/config"
	"github.com/sarchlab/lamportvm/monitoring"
	"github.com/sarchlab/lamportvm/simulation"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every machine of the topology in this process.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		c, err = applyRunFlags(cmd, c)
		if err != nil {
			return err
		}

		openBrowser, _ := cmd.Flags().GetBool("open-browser")

		return runSimulation(cmd, simulation.MakeBuilder(), c, openBrowser)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
	runCmd.Flags().Bool("open-browser", false,
		"Open the monitor in a browser. Requires --monitor-port.")
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().Int("duration", 0,
		"Run time in seconds, overriding the configuration. 0 runs until "+
			"interrupted.")
	cmd.Flags().String("log-dir", "", "Directory of the machine logs.")
	cmd.Flags().String("record-db", "",
		"Record every cycle into <record-db>.sqlite3.")
	cmd.Flags().Int("monitor-port", 0, "Serve the monitor on this port.")
	cmd.Flags().Uint64("seed", 0, "Seed of the random sources.")
}

// applyRunFlags overwrites the configuration with the flags set on the command
// line.
func applyRunFlags(cmd *cobra.Command, c config.Config) (config.Config, error) {
	flags := cmd.Flags()

	if flags.Changed("duration") {
		c.DurationSeconds, _ = flags.GetInt("duration")
	}

	if flags.Changed("log-dir") {
		c.LogDir, _ = flags.GetString("log-dir")
	}

	if flags.Changed("record-db") {
		c.RecordDB, _ = flags.GetString("record-db")
	}

	if flags.Changed("monitor-port") {
		c.MonitorPort, _ = flags.GetInt("monitor-port")
	}

	if flags.Changed("seed") {
		c.Seed, _ = flags.GetUint64("seed")
	}

	return c, c.Validate()
}

func runSimulation(
	cmd *cobra.Command,
	b simulation.Builder,
	c config.Config,
	openBrowser bool,
) error {
	var monitor *monitoring.Monitor
	if c.MonitorPort != 0 {
		monitor = monitoring.NewMonitor().
			WithPortNumber(c.MonitorPort).
			WithBrowser(openBrowser)
		b = b.WithMonitor(monitor)
	}

	s, err := b.WithConfig(c).Build()
	if err != nil {
		return err
	}

	if monitor != nil {
		_, err = monitor.StartServer()
		if err != nil {
			return fmt.Errorf("%w (closing: %v)", err, s.Close())
		}

		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = monitor.Shutdown(ctx)
		}()
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	out := cmd.OutOrStdout()
	if c.DurationSeconds > 0 {
		fmt.Fprintf(out, "Simulation %s running for %d seconds...\n",
			s.ID(), c.DurationSeconds)
	} else {
		fmt.Fprintf(out, "Simulation %s running until interrupted...\n", s.ID())
	}

	err = s.Run(ctx, c.Duration())
	if err != nil {
		return err
	}

	if ctx.Err() != nil && c.DurationSeconds > 0 {
		fmt.Fprintln(out, "Simulation interrupted by user")
	}

	for _, m := range s.Machines() {
		fmt.Fprintf(out, "Machine %d log: %s\n",
			m.ID(), simulation.LogPath(c, m.ID()))
	}

	fmt.Fprintln(out, "Simulation completed")

	return nil
}
