package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"agentmux/internal/bridge"
	"agentmux/internal/mcpserver"
	"agentmux/internal/tools"
	"agentmux/pkg/logging"

	"github.com/spf13/cobra"
)

// newServeCmd creates the serve subcommand, which keeps sessions alive,
// watches the config file, and re-discovers tools on changes.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge, re-discovering tools when the config changes",
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
			logging.Info("Serve", "Discovery complete: %d servers, %d tools",
				succeeded, len(registry.List()))

			watcher, err := mcpserver.NewWatcher(configPath, store, func(configs []*mcpserver.ServerConfig) {
				// Sessions for changed servers are torn down so the next
				// discovery reconnects with the fresh config.
				for _, cfg := range configs {
					manager.CloseSession(cfg.ServerID)
				}
				registrar.DiscoverAll(cmd.Context())
				logging.Info("Serve", "Re-discovery complete: %d tools", len(registry.List()))
			})
			if err != nil {
				return fmt.Errorf("failed to watch config: %w", err)
			}
			defer watcher.Close()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logging.Info("Serve", "Received %s, shutting down", sig)
			case <-cmd.Context().Done():
			}
			return nil
		},
	}
}
