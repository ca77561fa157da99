package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/provider-hub/internal/invoke"
	"github.com/sells-group/provider-hub/internal/model"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch <operation>",
	Short: "Run one operation through the failover chain",
	Long:  "Resolves the eligible providers for the operation and tries them in priority order until one succeeds.",
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

		prompt, _ := cmd.Flags().GetString("prompt")
		system, _ := cmd.Flags().GetString("system")
		url, _ := cmd.Flags().GetString("url")

		timeout := time.Duration(cfg.Dispatch.TimeoutSecs) * time.Second
		dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := env.Dispatcher.Dispatch(dispatchCtx, op, env.Invokers.Bind(invoke.Request{
			Prompt: prompt,
			System: system,
			URL:    url,
		}))
		if err != nil {
			return eris.Wrap(err, "dispatch")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	},
}

func init() {
	dispatchCmd.Flags().String("prompt", "", "prompt text for AI operations")
	dispatchCmd.Flags().String("system", "", "system prompt for AI operations")
	dispatchCmd.Flags().String("url", "", "target URL for scraping and analysis operations")
	rootCmd.AddCommand(dispatchCmd)
}
