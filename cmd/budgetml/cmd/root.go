package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/budgetml/budgetml/internal/config"
	"github.com/budgetml/budgetml/internal/constants"
	"github.com/budgetml/budgetml/internal/logger"
	"github.com/budgetml/budgetml/internal/output"
)

var (
	debug         bool
	verbose       bool
	timeout       time.Duration
	timeoutCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   constants.ProjectName,
	Short: "Deploy ML models on a budget",
	Long: fmt.Sprintf(`%s provisions a preemptible GCP instance serving your predictor
behind an HTTPS endpoint, with a watchdog function keeping costs bounded.`, constants.ProjectName),
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		logLevel := slog.LevelInfo
		if debug {
			logLevel = slog.LevelDebug
		}
		logger.Initialize(constants.CLI, logLevel)

		if verbose {
			output.Header(output.Bold(constants.ProjectName) + " " + *constants.GetVersion())
		}

		if timeout > 0 {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			timeoutCancel = cancel
			cmd.SetContext(ctx)
		}
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	if timeoutCancel != nil {
		timeoutCancel()
	}
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 30*time.Minute, "Timeout for the whole operation")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debugging logs")
}

// loadConfig loads the deployment defaults from the config file and
// environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
