// Package cmd defines the dailybrief CLI.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dailybrief/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dailybrief",
	Short: "dailybrief generates a daily AI/ML briefing from feeds, preprints, social posts, and forums",
	Long: `dailybrief gathers a day of AI/ML content from RSS feeds, preprint
servers, social accounts, and community forums, analyzes it with a
reasoning model, and writes the briefing artifacts for the web frontend.`,
	SilenceUsage: true,
}

// Execute runs the CLI. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(),
		"provider configuration file")
}
