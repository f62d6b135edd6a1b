package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/docqa/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	env        string
	configPath string
	logLevel   string
	indexDir   string
	dotEnv     string
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "docqa",
		Short:         "Ask questions about your documents",
		Long:          "docqa ingests documents into a local vector index and answers questions from them with an LLM.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return config.LoadDotEnv(g.dotEnv)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.env, "env", "", "environment name, selects config/<env>.yaml (default: $ENV or local)")
	pf.StringVar(&g.configPath, "config", "", "explicit config file path (overrides --env)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level override: debug, info, warn, error")
	pf.StringVar(&g.indexDir, "index-dir", "", "index directory override")
	pf.StringVar(&g.dotEnv, "dotenv", ".env", "dotenv file loaded before config")

	root.AddCommand(
		newServeCmd(&g),
		newIngestCmd(&g),
		newAskCmd(&g),
		newQueryCmd(&g),
		newStatsCmd(&g),
		newClearCmd(&g),
		newUsageCmd(&g),
		newVersionCmd(),
	)
	return root
}
