package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docmentor/docmentor/internal/api"
	"github.com/docmentor/docmentor/internal/config"
	"github.com/docmentor/docmentor/internal/logging"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	cfgFile  string
	verbose  bool
	jsonLogs bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docmentor",
	Short: "DocMentor - document retrieval and question answering",
	Long: `DocMentor splits documents into chunks, embeds them and answers
nearest-neighbour searches over every ingested document. Answers can be
generated from the retrieved passages with a local or hosted chat model.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "DocMentor %s (api %s)\n", version, api.Version)
	},
}

func init() {
	cobra.OnInitialize(initEnv)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.docmentor/config.yaml, ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "log as JSON")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(configCmd)
}

// initEnv loads .env files so CLI commands see their variables
func initEnv() {
	for _, f := range []string{".env", ".env.local"} {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", f, err)
			}
		}
	}
}

// loadConfig reads the configuration and installs the logger it describes
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	level, format := cfg.Log.Level, cfg.Log.Format
	if verbose {
		level = "debug"
	}
	if jsonLogs {
		format = "json"
	}
	return cfg, logging.Configure(level, format), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
