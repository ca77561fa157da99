package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-hub/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Align mapping priorities with provider priorities",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		report, err := env.Syncer.SyncAll(ctx)
		if err != nil {
			return eris.Wrap(err, "sync")
		}

		fmt.Printf("Synced %d providers: %d of %d mappings updated\n",
			report.TotalProviders, report.UpdatedMappings, report.TotalMappings)
		return nil
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report priority drift between providers and their mappings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()
		if err := env.Store.Migrate(ctx); err != nil {
			return err
		}

		report, err := env.Syncer.Status(ctx)
		if err != nil {
			return eris.Wrap(err, "sync status")
		}

		formatSyncStatus(os.Stdout, report)
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}

func formatSyncStatus(out io.Writer, report *syncer.StatusReport) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PROVIDER\tSTATE\tSYNCED\tDRIFTED")
	for _, p := range report.Providers {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", p.ProviderName, p.State, p.SyncedMappings, len(p.Drifted))
	}
	_ = w.Flush()
	fmt.Fprintf(out, "\nOverall: %.1f%% of mappings in sync\n", report.OverallSyncPercentage)
}
