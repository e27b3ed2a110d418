package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:          "ayursutra",
		Short:        "AyurSutra appointment availability service",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Variables already set in the environment win over the file.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("loading %s: %w", envFile, err)
			}
			if os.Getenv("APP_VERSION") == "" {
				_ = os.Setenv("APP_VERSION", version)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")

	root.AddCommand(serveCmd(), migrateCmd(), slotsCmd(), tokenCmd())
	return root
}
