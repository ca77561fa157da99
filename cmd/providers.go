package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-hub/internal/model"
	"github.com/sells-group/provider-hub/internal/registry"
	"github.com/sells-group/provider-hub/internal/store"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage the provider catalog",
	Long:  "Commands for registering providers, adjusting priorities, and toggling availability.",
}

// -- providers list --

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered providers",
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

		typeFlag, _ := cmd.Flags().GetString("type")
		activeOnly, _ := cmd.Flags().GetBool("active")

		filter := store.ProviderFilter{ActiveOnly: activeOnly}
		if typeFlag != "" {
			typ, err := model.ParseServiceType(typeFlag)
			if err != nil {
				return err
			}
			filter.Type = typ
		}

		providers, err := env.Registry.List(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "providers list")
		}

		if len(providers) == 0 {
			fmt.Fprintln(os.Stderr, "No providers found.")
			return nil
		}

		formatProvidersList(os.Stdout, providers)
		return nil
	},
}

// -- providers register --

var providersRegisterCmd = &cobra.Command{
	Use:   "register <name>",
	Short: "Register or update a provider",
	Long:  "Creates the provider if the (name, type) pair is new; otherwise updates its configuration in place, preserving priority and active state.",
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

		typeFlag, _ := cmd.Flags().GetString("type")
		typ, err := model.ParseServiceType(typeFlag)
		if err != nil {
			return err
		}

		apiKey, _ := cmd.Flags().GetString("api-key")
		baseURL, _ := cmd.Flags().GetString("base-url")
		modelFlag, _ := cmd.Flags().GetString("model")
		caps, _ := cmd.Flags().GetStringSlice("capabilities")

		in := registry.UpsertInput{
			Name: args[0],
			Type: typ,
			Config: model.ProviderConfig{
				APIKey:  apiKey,
				BaseURL: baseURL,
			},
		}
		if typ == model.TypeAIEngine {
			in.Config.AI = &model.AIEngineConfig{Model: modelFlag}
		}
		for _, c := range caps {
			op := model.Operation(strings.ToUpper(strings.TrimSpace(c)))
			if !op.Valid() {
				return eris.Errorf("unknown operation %q", c)
			}
			in.Capabilities = append(in.Capabilities, op)
		}

		p, err := env.Registry.Upsert(ctx, in)
		if err != nil {
			return eris.Wrap(err, "providers register")
		}

		fmt.Printf("Provider %s (%s) saved with id %s, priority %d\n", p.Name, p.Type, p.ID, p.Priority)
		return nil
	},
}

// -- providers show --

var providersShowCmd = &cobra.Command{
	Use:   "show <provider-id>",
	Short: "Show full details of a provider",
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

		p, err := env.Registry.Get(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "providers show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	},
}

// -- providers set-priority --

var providersSetPriorityCmd = &cobra.Command{
	Use:   "set-priority <provider-id> <priority>",
	Short: "Change a provider's global priority",
	Long:  "Updates the provider priority and propagates the new value to all of its operation mappings.",
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

		var priority int
		if _, err := fmt.Sscanf(args[1], "%d", &priority); err != nil {
			return eris.Errorf("invalid priority %q", args[1])
		}

		p, err := env.Registry.SetPriority(ctx, args[0], priority)
		if err != nil {
			return eris.Wrap(err, "providers set-priority")
		}

		fmt.Printf("Provider %s priority set to %d\n", p.Name, p.Priority)
		return nil
	},
}

// -- providers enable / disable --

var providersEnableCmd = &cobra.Command{
	Use:   "enable <provider-id>",
	Short: "Mark a provider active",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setProviderActive(cmd, args[0], true)
	},
}

var providersDisableCmd = &cobra.Command{
	Use:   "disable <provider-id>",
	Short: "Mark a provider inactive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setProviderActive(cmd, args[0], false)
	},
}

func setProviderActive(cmd *cobra.Command, id string, active bool) error {
	ctx := cmd.Context()

	env, err := initEnv(ctx)
	if err != nil {
		return err
	}
	defer env.Close()
	if err := env.Store.Migrate(ctx); err != nil {
		return err
	}

	if err := env.Registry.SetActive(ctx, id, active); err != nil {
		return eris.Wrap(err, "providers set-active")
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	fmt.Printf("Provider %s %s\n", id, state)
	return nil
}

// -- providers delete --

var providersDeleteCmd = &cobra.Command{
	Use:   "delete <provider-id>",
	Short: "Delete a provider and its mappings",
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

		if err := env.Registry.Delete(ctx, args[0]); err != nil {
			return eris.Wrap(err, "providers delete")
		}

		fmt.Printf("Provider %s deleted\n", args[0])
		return nil
	},
}

func init() {
	providersListCmd.Flags().String("type", "", "filter by service type (AI_ENGINE, SCRAPER, ...)")
	providersListCmd.Flags().Bool("active", false, "show only active providers")

	providersRegisterCmd.Flags().String("type", "", "service type (required)")
	providersRegisterCmd.Flags().String("api-key", "", "provider API key (stored encrypted)")
	providersRegisterCmd.Flags().String("base-url", "", "provider base URL")
	providersRegisterCmd.Flags().String("model", "", "model identifier for AI engines")
	providersRegisterCmd.Flags().StringSlice("capabilities", nil, "operations this provider supports (default: type defaults)")
	_ = providersRegisterCmd.MarkFlagRequired("type")

	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersRegisterCmd)
	providersCmd.AddCommand(providersShowCmd)
	providersCmd.AddCommand(providersSetPriorityCmd)
	providersCmd.AddCommand(providersEnableCmd)
	providersCmd.AddCommand(providersDisableCmd)
	providersCmd.AddCommand(providersDeleteCmd)
	rootCmd.AddCommand(providersCmd)
}

// formatProvidersList writes a tabular list of providers to w.
func formatProvidersList(out io.Writer, providers []model.ServiceProvider) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tTYPE\tPRIORITY\tACTIVE\tCAPABILITIES")
	for _, p := range providers {
		caps := make([]string, len(p.Capabilities))
		for i, c := range p.Capabilities {
			caps[i] = string(c)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\t%s\n",
			p.ID, p.Name, p.Type, p.Priority, p.IsActive, strings.Join(caps, ","))
	}
	_ = w.Flush()
}
