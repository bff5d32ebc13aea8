// Package cmd defines the CLI commands of the crawler executable.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "steam-game-crawler",
		Short: "Crawls the Steam catalog and syncs game records into Postgres",
		Long: `steam-game-crawler harvests game metadata from the Steam store
(the appdetails API plus the store page) and reconciles it into a
Postgres catalog with change-aware batch writes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newAppIDsCmd())
	return cmd
}

// Execute runs the CLI. A SIGINT or SIGTERM cancels the command context
// so a running crawl can flush its batch and ledger before exiting.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
