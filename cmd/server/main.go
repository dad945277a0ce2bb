// Command server runs the research-token API and its offline tools.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ZanzyTHEbar/research-token/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// settings is shared by every subcommand; flags are bound onto it.
var settings = config.New()

var rootCmd = &cobra.Command{
	Use:   "research-token",
	Short: "Impact scoring and tokenized funding of research publications",
	Long: `research-token scores publications with the Research Impact Score and
lets visitors fund eligible research in exchange for RES reward tokens on a
simulated ledger.

Run "serve" for the HTTP API, or "score" and "search" to use the scorer and
catalog from the command line.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (YAML)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("catalog", "", "publication catalog file (YAML), empty for the built-in catalog")

	_ = settings.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = settings.BindPFlag("catalog.path", rootCmd.PersistentFlags().Lookup("catalog"))
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(settings, path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		fmt.Fprintln(os.Stderr, "Using config file:", path)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
