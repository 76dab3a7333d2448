package cmd

import (
	"github.com/spf13/cobra"

	"github.com/sarchlab/lamportvm/simulation"
)

var machineCmd = &cobra.Command{
	Use:   "machine",
	Short: "Run one machine of the topology in this process.",
	Long: `Run one machine of the topology. The other machines are expected ` +
		`to be started by other processes with the same configuration. ` +
		`Without --duration the machine runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		c, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if !cmd.Flags().Changed("duration") {
			c.DurationSeconds = 0
		}

		c, err = applyRunFlags(cmd, c)
		if err != nil {
			return err
		}

		id, _ := cmd.Flags().GetInt("id")

		return runSimulation(cmd,
			simulation.MakeBuilder().WithMachineIDs(id), c, false)
	},
}

func init() {
	rootCmd.AddCommand(machineCmd)
	addRunFlags(machineCmd)
	machineCmd.Flags().Int("id", 0, "Identity of the machine.")
	_ = machineCmd.MarkFlagRequired("id")
}
