// Package cli holds the contactd command tree.
package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// defaultEnvFiles are loaded in order; a variable already set (in the
// environment or by an earlier file) is never overwritten.
var defaultEnvFiles = []string{".env.local", ".env"}

var envFiles []string

var rootCmd = &cobra.Command{
	Use:   "contactd",
	Short: "Contact form intake service",
	Long: `contactd accepts "hire talent" contact-form submissions, validates them,
applies a per-client hourly quota and fans them out to the configured
delivery backends (SMTP, transactional mail API, Redis, SQLite).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFiles(envFiles)
	},
}

// Execute runs the root command.
func Execute(version string) error {
	rootCmd.Version = version
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", defaultEnvFiles, "dotenv files to load before reading configuration")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sendTestEmailCmd)
	rootCmd.AddCommand(submitTestCmd)
}

// loadEnvFiles loads each dotenv file, skipping the ones that do not exist.
func loadEnvFiles(files []string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}
