package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wegman-software/osmrel-go/internal/logger"
	"github.com/wegman-software/osmrel-go/internal/pipeline"
)

var phasesCmd = &cobra.Command{
	Use:   "phases <input>",
	Short: "Dispatch the input once and report its phases",
	Long: `Run every object of the input through the dispatcher with a counting
handler. Each phase transition is logged, followed by per-type counts.
An input grouped by type shows at most four phases.`,
	Args: cobra.ExactArgs(1),
	Run:  runPhases,
}

func init() {
	rootCmd.AddCommand(phasesCmd)
}

func runPhases(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := pipeline.Phases(ctx, args[0], cfg.Workers, logger.For("phases")); err != nil {
		exitWithError("dispatch failed", err)
	}
}
