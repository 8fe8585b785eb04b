package cmd

import (
	"encoding/json"
	"fmt"

	"agentmux/internal/bridge"
	"agentmux/internal/mcpserver"
	"agentmux/internal/tools"

	"github.com/spf13/cobra"
)

// newCallCmd creates the call subcommand, which executes one
// registered tool with JSON-encoded arguments.
func newCallCmd() *cobra.Command {
	var argsJSON string

	cmd := &cobra.Command{
		Use:   "call <tool>",
		Short: "Execute a tool on its MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			toolName := cmdArgs[0]

			var toolArgs map[string]interface{}
			if argsJSON != "" {
				if err := json.Unmarshal([]byte(argsJSON), &toolArgs); err != nil {
					return fmt.Errorf("invalid --args JSON: %w", err)
				}
			}

			store := mcpserver.NewStore()
			if _, err := store.LoadFile(configPath); err != nil {
				return err
			}

			manager := mcpserver.NewManager(store)
			defer manager.CloseAll()

			registry := tools.NewRegistry()
			registrar := bridge.NewRegistrar(store, manager, registry)
			registrar.DiscoverAll(cmd.Context())

			tool, err := registry.Create(toolName)
			if err != nil {
				return err
			}

			result, err := tool.Execute(cmd.Context(), toolArgs)
			if err != nil {
				return err
			}

			fmt.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "", "tool arguments as a JSON object")
	return cmd
}
