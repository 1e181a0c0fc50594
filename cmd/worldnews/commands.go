package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/deusflow/worldnews/internal/app"
	"github.com/deusflow/worldnews/internal/config"
	"github.com/deusflow/worldnews/internal/logger"
)

var (
	sourcesPath string
	verbose     bool

	cfg *config.Config
	log *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "worldnews",
	Short: "Global news bot",
	Long: `worldnews fetches top headlines and feeds from several regions, scores
them, writes a short script for the best few and publishes each one.

Example usage:
  worldnews serve              # Scheduler plus HTTP status server
  worldnews run-once           # One cycle, then exit
  worldnews sources            # Show what the next cycle would query`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if sourcesPath != "" {
			if err := os.Setenv("SOURCES_CONFIG_PATH", sourcesPath); err != nil {
				return err
			}
		}
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		log = logger.Init(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler and the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()
		return a.Serve(cmd.Context())
	},
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run a single news cycle and print the report",
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.RunOnce(cmd.Context())
		if err != nil {
			return err
		}
		if asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		}
		fmt.Fprint(cmd.OutOrStdout(), app.Summary(report))
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the sources the next cycle would query",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		for _, d := range a.Plan() {
			fmt.Fprintf(out, "%-10s %-4s %s\n", d.Kind, d.Country, d.Name)
		}
		configured := cfg.Configured()
		names := make([]string, 0, len(configured))
		for name := range configured {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(out, "configured %-11s %t\n", name, configured[name])
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&sourcesPath, "sources", "", "sources file (default configs/sources.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	runOnceCmd.Flags().Bool("json", false, "print the report as JSON")

	rootCmd.AddCommand(serveCmd, runOnceCmd, sourcesCmd)
}
