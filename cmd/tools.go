package cmd

import (
	"fmt"
	"os"
	"strings"

	"agentmux/internal/bridge"
	"agentmux/internal/mcpserver"
	"agentmux/internal/tools"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

// newToolsCmd creates the tools subcommand, which discovers every
// configured server and prints the registered tools.
func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Discover and list tools from all configured MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := mcpserver.NewStore()
			if _, err := store.LoadFile(configPath); err != nil {
				return err
			}

			manager := mcpserver.NewManager(store)
			defer manager.CloseAll()

			registry := tools.NewRegistry()
			registrar := bridge.NewRegistrar(store, manager, registry)

			succeeded := registrar.DiscoverAll(cmd.Context())

			definitions := registry.List()
			if len(definitions) == 0 {
				fmt.Println("No tools registered.")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(os.Stdout)
			t.AppendHeader(table.Row{"Tool", "Parameters", "Description"})
			for _, def := range definitions {
				t.AppendRow(table.Row{
					def.Name,
					strings.Join(def.Schema.Names(), ", "),
					def.Description,
				})
			}
			t.SetStyle(table.StyleLight)
			t.Render()

			fmt.Printf("\n%d tools from %d servers\n", len(definitions), succeeded)
			return nil
		},
	}
}
