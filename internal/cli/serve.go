package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/tabwarden/tabwarden/internal/alert"
	"github.com/tabwarden/tabwarden/internal/audit"
	"github.com/tabwarden/tabwarden/internal/config"
	"github.com/tabwarden/tabwarden/internal/consent"
	"github.com/tabwarden/tabwarden/internal/engine"
	"github.com/tabwarden/tabwarden/internal/identity"
	"github.com/tabwarden/tabwarden/internal/logging"
	"github.com/tabwarden/tabwarden/internal/metrics"
	"github.com/tabwarden/tabwarden/internal/policy"
	"github.com/tabwarden/tabwarden/internal/server"
)

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (overrides config)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the governance daemon",
	Long: "Loads the policy document, opens the decision log, and serves the page\n" +
		"WebSocket plus the admin HTTP API. The policy file is watched and\n" +
		"hot-reloaded; every reload re-evaluates all connected tabs.",
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}
	log := logging.New(cfg.LogLevel)

	store := policy.NewStore(cfg.PolicyPath)
	snap, err := store.Load()
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	ident, err := identity.Load(filepath.Dir(cfg.PolicyPath))
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}

	var consentStore consent.Store
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		consentStore = consent.NewRedisStore(rdb, cfg.CooldownDuration(), cfg.ConsentTTLDuration())
		log.Info("consent state in redis", "addr", cfg.RedisAddr)
	} else {
		consentStore = consent.NewMemoryStore(cfg.CooldownDuration(), cfg.ConsentTTLDuration())
	}

	var (
		sink   audit.Sink
		export audit.Exporter
	)
	switch cfg.LogStore {
	case config.LogStoreSQLite:
		s, err := audit.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("open decision log: %w", err)
		}
		sink, export = s, s
	default:
		l, err := audit.Open(cfg.LogPath)
		if err != nil {
			return fmt.Errorf("open decision log: %w", err)
		}
		sink, export = l, l
	}
	defer sink.Close()

	reg := prometheus.NewRegistry()

	eng := engine.New(engine.Config{
		Store:        store,
		Consent:      consentStore,
		Sink:         sink,
		Logger:       log,
		Metrics:      metrics.New(reg),
		Alerts:       alert.NewDispatcher(cfg.Alerts),
		Identity:     ident,
		RetryBackoff: cfg.RetryBackoffDuration(),
	})

	srv := server.New(server.Config{Addr: cfg.ListenAddr, Metrics: reg}, eng, store, export, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := store.Watch(ctx, log, func(snap *policy.Snapshot) {
			eng.OnPolicyChanged(ctx, snap)
		}); err != nil {
			log.Error("policy watcher stopped", "err", err)
		}
	}()

	fmt.Fprintf(os.Stderr, "tabwarden listening on %s\n", cfg.ListenAddr)
	fmt.Fprintf(os.Stderr, "Profile: %s\n", snap.Active.ID)
	fmt.Fprintf(os.Stderr, "Policy:  %s (hot-reload enabled)\n", store.Path())
	fmt.Fprintln(os.Stderr)

	return srv.Run(ctx)
}
