// Command execd manages the registry of remote execution server
// configurations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"execd-go/internal/cfgfile"
	"execd-go/internal/config"
	"execd-go/internal/logs"
	"execd-go/internal/registry"
	"execd-go/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "execd",
		Short:         "Manage remote execution server configurations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("data-dir", "", "data directory (default ~/.execd)")
	root.PersistentFlags().String("servers-dir", "", "directory scanned for *.cfg server files (default <data-dir>/servers)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")

	viper.SetEnvPrefix("EXECD")
	viper.AutomaticEnv()
	_ = viper.BindPFlag("data-dir", root.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("servers-dir", root.PersistentFlags().Lookup("servers-dir"))
	_ = viper.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newListCmd(),
		newAddCmd(),
		newRemoveCmd(),
		newMoveCmd(),
		newConnectCmd(),
		newWatchCmd(),
	)

	return root
}

// resolveDirs determines the data and servers directories from flags
// and environment, defaulting under the user's home directory.
func resolveDirs() (dataDir, serversDir string, err error) {
	dataDir = viper.GetString("data-dir")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", "", fmt.Errorf("failed to determine home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".execd")
	}

	serversDir = viper.GetString("servers-dir")
	if serversDir == "" {
		serversDir = filepath.Join(dataDir, "servers")
	}
	return dataDir, serversDir, nil
}

// withRegistry opens the store, builds the process-wide registry and
// hands it to fn, tearing everything down afterwards.
func withRegistry(fn func(r *registry.Registry, logger *zap.Logger) error) error {
	dataDir, serversDir, err := resolveDirs()
	if err != nil {
		return err
	}

	logger, err := logs.Setup(&config.LogConfig{
		Level:         viper.GetString("log-level"),
		EnableConsole: true,
	})
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(dataDir, logger.Sugar())
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	registry.Configure(registry.Options{
		Store:      st,
		ServersDir: serversDir,
		Loader:     cfgfile.NewLoader(logger),
		Notifier: func(msg string) {
			fmt.Fprintln(os.Stderr, msg)
		},
		Logger: logger,
	})
	defer registry.ResetDefault()

	return fn(registry.Default(), logger)
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers in display order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(func(r *registry.Registry, _ *zap.Logger) error {
				for _, name := range r.ListNames() {
					h, _ := r.Find(name)
					entry, _ := r.Get(h)
					cfg := entry.Config()
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", name, cfg.Connection, cfg.Address())
				}
				return nil
			})
		},
	}
}

func newAddCmd() *cobra.Command {
	var (
		file string
		cfg  config.ServerConfig
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a server configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(func(r *registry.Registry, logger *zap.Logger) error {
				add := cfg
				if file != "" {
					loaded, err := cfgfile.NewLoader(logger).Load(file)
					if err != nil {
						return err
					}
					add = *loaded
				}
				if err := add.Validate(); err != nil {
					return err
				}

				h := r.Add(add)
				entry, _ := r.Get(h)
				fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", entry.Name())
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "load the configuration from a *.cfg file")
	cmd.Flags().StringVar(&cfg.Name, "name", "", "server name")
	cmd.Flags().StringVar(&cfg.Connection, "connection", config.ConnectionLocal, "connection kind (local, ssh, http)")
	cmd.Flags().StringVar(&cfg.Host, "host", "", "remote host")
	cmd.Flags().IntVar(&cfg.Port, "port", 0, "remote port")
	cmd.Flags().StringVar(&cfg.Username, "username", "", "remote user")
	cmd.Flags().StringVar(&cfg.Authentication, "authentication", "", "authentication kind (password, public_key, agent)")
	cmd.Flags().StringVar(&cfg.WorkingDir, "working-dir", "", "remote working directory")
	cmd.Flags().StringVar(&cfg.Queue, "queue", "", "queue system (basic, pbs, sge, slurm)")

	return cmd
}

func newRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove NAME",
		Short: "Remove a server configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(r *registry.Registry, _ *zap.Logger) error {
				name := args[0]
				if _, ok := r.Find(name); !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "no server named %s\n", name)
				}
				r.Remove(name)
				return nil
			})
		},
	}
}

func newMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "move NAME up|down",
		Short: "Move a server within the display order",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withRegistry(func(r *registry.Registry, _ *zap.Logger) error {
				switch args[1] {
				case "up":
					r.MoveUp(args[0])
				case "down":
					r.MoveDown(args[0])
				default:
					return fmt.Errorf("invalid direction: %s (must be up or down)", args[1])
				}
				return nil
			})
		},
	}
}

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect [NAME...]",
		Short: "Open connections to the named servers (all when none given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(func(r *registry.Registry, _ *zap.Logger) error {
				names := args
				if len(names) == 0 {
					names = r.ListNames()
				}
				r.ConnectServers(cmd.Context(), names)

				for _, name := range names {
					h, ok := r.Find(name)
					if !ok {
						continue
					}
					entry, _ := r.Get(h)
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, entry.Connection().Info().State)
				}

				r.CloseAllConnections()
				return nil
			})
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the servers directory, registering configuration files as they appear",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRegistry(func(r *registry.Registry, logger *zap.Logger) error {
				_, serversDir, err := resolveDirs()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(serversDir, 0755); err != nil {
					return fmt.Errorf("failed to create servers directory: %w", err)
				}

				watcher, err := cfgfile.NewWatcher(serversDir, cfgfile.NewLoader(logger), logger)
				if err != nil {
					return err
				}
				defer func() { _ = watcher.Stop() }()

				if err := watcher.Start(func(cfg *config.ServerConfig) {
					r.Add(*cfg)
				}); err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				<-ctx.Done()
				return nil
			})
		},
	}
}
