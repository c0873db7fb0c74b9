package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"dailybrief/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate-config",
	Short: "Convert legacy .env settings into the provider configuration file",
	Long: `Migrate-config reads the legacy .env variables, writes the provider
configuration file with environment references in place of literal
secrets, and renames .env out of the way. It refuses to overwrite an
existing configuration file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		migrated, err := config.MigrateFromEnv(configPath)
		if err != nil {
			return err
		}
		if !migrated {
			fmt.Println("nothing to migrate: no legacy environment variables found")
			return nil
		}
		fmt.Printf("wrote %s\n", configPath)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
