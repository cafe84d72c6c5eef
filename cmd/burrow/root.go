package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"burrow/internal/config"
	"burrow/internal/dns"
	"burrow/internal/manifest"
	"burrow/internal/orchestrator"
	"burrow/internal/ports"
	"burrow/internal/registry"
	"burrow/internal/routes"
	"burrow/internal/topology"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Multiplex isolated backend instances behind one reverse proxy",
	Long: `burrow maintains a registry of backend service instances, each reachable
under its own subdomain through a shared reverse proxy. Adding an instance
assigns it a free port, rewrites the proxy's routing map and the compose
manifest from the registry, and starts the container. The registry stays the
single source of truth; routing and manifest are always derived from it.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid arguments, failed mutations)
	SilenceUsage: true,
}

// Execute runs the root command. Any failure exits 1.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (JSON; BURROW_* env vars override)")

	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newRemoveCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newStartCmd())
	rootCmd.AddCommand(newStopCmd())
	rootCmd.AddCommand(newRestartCmd())
	rootCmd.AddCommand(newLogsCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newCleanupCmd())
	rootCmd.AddCommand(newBuildCmd())
}

// app wires the components for one invocation.
type app struct {
	cfg        config.Config
	store      *registry.Store
	orch       *orchestrator.Docker
	registrar  *dns.Registrar
	dispatcher *topology.Dispatcher
}

func newApp() (*app, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}

	store := registry.NewStore(cfg.RegistryPath)
	orch, err := orchestrator.NewDocker(cfg.ComposePath, cfg.ComposeProject)
	if err != nil {
		return nil, err
	}

	registrar, err := dns.NewRegistrar(cfg.Cloudflare, cfg.ServerAddress)
	if err != nil {
		return nil, err
	}

	dispatcher := topology.NewDispatcher(
		store,
		ports.NewAllocator(cfg.PortRangeStart, cfg.PortRangeEnd),
		routes.NewSynthesizer(cfg.RoutesPath, cfg.DefaultRoutePort),
		manifest.NewLinker(cfg.ComposePath, cfg.ProxyService, cfg.BackendImage),
		orch,
		registrar,
		cfg.DataRoot,
	)

	return &app{cfg: cfg, store: store, orch: orch, registrar: registrar, dispatcher: dispatcher}, nil
}

// commandContext returns a context bounded by the configured orchestrator
// timeout and cancelled on ctrl-C.
func (a *app) commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout())
	return ctx, func() {
		cancel()
		stop()
	}
}

// streamContext returns a context for open-ended operations (log following,
// image builds) that ends only on interrupt or the given cap.
func (a *app) streamContext(limit time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if limit <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, limit)
	return ctx, func() {
		cancel()
		stop()
	}
}
