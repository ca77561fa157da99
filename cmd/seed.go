package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-hub/internal/registry"
)

var seedCmd = &cobra.Command{
	Use:   "seed <file>",
	Short: "Load providers and mappings from a YAML file",
	Long:  "Upserts every provider in the file and creates missing operation mappings. Safe to run repeatedly.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		seed, err := registry.LoadSeedFile(args[0])
		if err != nil {
			return err
		}

		if err := registry.Seed(ctx, env.Registry, env.Mappings, seed); err != nil {
			return eris.Wrap(err, "seed")
		}

		fmt.Printf("Seeded %d providers\n", len(seed.Providers))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
