// Package cmd provides the command-line interface of lamportvm.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/lamportvm/config"
)

const defaultConfigFile = "config.json"

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "lamportvm",
	Short: "Run machines that keep Lamport logical clocks.",
	Long: `lamportvm runs simulated machines at different clock rates. The ` +
		`machines exchange messages over TCP, keep Lamport logical clocks ` +
		`and log every clock cycle. The logs can be analyzed afterwards.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", defaultConfigFile,
		"JSON configuration file. LAMPORTVM_* variables override its values.")
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

// loadConfig reads the configuration named by --config. The default file may
// be missing, in which case the defaults apply.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")

	if !cmd.Flags().Changed("config") {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	c, err := config.Load(path)
	if err != nil {
		return c, fmt.Errorf("loading configuration: %w", err)
	}

	return c, nil
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
