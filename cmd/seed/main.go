package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rl1809/biosalim/internal/app"
	"github.com/rl1809/biosalim/internal/config"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:          "seed",
		Short:        "Fill an empty store with the sample catalog and demonstration orders",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// seeding is explicit here
			cfg.Storage.SeedOnStart = false

			logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
			a, err := app.New(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.SeedIfEmpty(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products, %d orders\n", res.Products, res.Orders)
			return nil
		},
	}
	root.Flags().StringVarP(&configPath, "config", "c", os.Getenv("BIOSALIM_CONFIG"), "path to a YAML config file")

	if err := root.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
