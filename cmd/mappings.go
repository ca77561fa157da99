package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-hub/internal/model"
)

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "Manage operation to provider mappings",
	Long:  "Commands for routing operations to providers and tuning per-mapping priority.",
}

// -- mappings list --

var mappingsListCmd = &cobra.Command{
	Use:   "list <operation>",
	Short: "List the candidate providers for an operation, in dispatch order",
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

		op := model.Operation(strings.ToUpper(args[0]))
		if !op.Valid() {
			return eris.Errorf("unknown operation %q", args[0])
		}

		candidates, err := env.Mappings.ListForOperation(ctx, op)
		if err != nil {
			return eris.Wrap(err, "mappings list")
		}

		if len(candidates) == 0 {
			fmt.Fprintln(os.Stderr, "No mappings found.")
			return nil
		}

		formatCandidatesList(os.Stdout, candidates)
		return nil
	},
}

// -- mappings create --

var mappingsCreateCmd = &cobra.Command{
	Use:   "create <operation> <provider-id>",
	Short: "Map an operation to a provider",
	Args:  cobra.ExactArgs(2),
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

		op := model.Operation(strings.ToUpper(args[0]))
		if !op.Valid() {
			return eris.Errorf("unknown operation %q", args[0])
		}

		var priority *int
		if cmd.Flags().Changed("priority") {
			v, _ := cmd.Flags().GetInt("priority")
			priority = &v
		}

		m, err := env.Mappings.Create(ctx, op, args[1], priority, true)
		if err != nil {
			return eris.Wrap(err, "mappings create")
		}

		fmt.Printf("Mapping %s created: %s -> provider %s, priority %d\n", m.ID, m.Operation, m.ProviderID, m.Priority)
		return nil
	},
}

// -- mappings set-priority --

var mappingsSetPriorityCmd = &cobra.Command{
	Use:   "set-priority <mapping-id> <priority>",
	Short: "Override one mapping's priority",
	Long:  "Sets the mapping priority independently of its provider's global priority. The mapping reads as DRIFTED until the next sync.",
	Args:  cobra.ExactArgs(2),
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

		priority, err := strconv.Atoi(args[1])
		if err != nil {
			return eris.Errorf("invalid priority %q", args[1])
		}

		if err := env.Mappings.SetPriority(ctx, args[0], priority); err != nil {
			return eris.Wrap(err, "mappings set-priority")
		}

		fmt.Printf("Mapping %s priority set to %d\n", args[0], priority)
		return nil
	},
}

// -- mappings enable / disable --

var mappingsEnableCmd = &cobra.Command{
	Use:   "enable <mapping-id>",
	Short: "Enable a mapping",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMappingEnabled(cmd, args[0], true)
	},
}

var mappingsDisableCmd = &cobra.Command{
	Use:   "disable <mapping-id>",
	Short: "Disable a mapping without deleting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setMappingEnabled(cmd, args[0], false)
	},
}

func setMappingEnabled(cmd *cobra.Command, id string, enabled bool) error {
	ctx := cmd.Context()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	if err := env.Store.Migrate(ctx); err != nil {
		return err
	}

	if err := env.Mappings.SetEnabled(ctx, id, enabled); err != nil {
		return eris.Wrap(err, "mappings set-enabled")
	}

	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Mapping %s %s\n", id, state)
	return nil
}

// -- mappings delete --

var mappingsDeleteCmd = &cobra.Command{
	Use:   "delete <mapping-id>",
	Short: "Delete a mapping",
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

		if err := env.Mappings.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "mappings delete")
		}

		fmt.Printf("Mapping %s deleted\n", args[0])
		return nil
	},
}

func init() {
	mappingsCreateCmd.Flags().Int("priority", 0, "mapping priority (default: inherit the provider's priority)")

	mappingsCmd.AddCommand(mappingsListCmd)
	mappingsCmd.AddCommand(mappingsCreateCmd)
	mappingsCmd.AddCommand(mappingsSetPriorityCmd)
	mappingsCmd.AddCommand(mappingsEnableCmd)
	mappingsCmd.AddCommand(mappingsDisableCmd)
	mappingsCmd.AddCommand(mappingsDeleteCmd)
	rootCmd.AddCommand(mappingsCmd)
}

// formatCandidatesList writes candidates in the order dispatch would try them.
func formatCandidatesList(out io.Writer, candidates []model.MappingCandidate) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORDER\tMAPPING_ID\tPROVIDER\tTYPE\tPROV_PRIO\tMAP_PRIO\tENABLED\tACTIVE")
	for i, c := range candidates {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%t\t%t\n",
			i+1, c.Mapping.ID, c.Provider.Name, c.Provider.Type,
			c.Provider.Priority, c.Mapping.Priority, c.Mapping.IsEnabled, c.Provider.IsActive)
	}
	_ = w.Flush()
}
