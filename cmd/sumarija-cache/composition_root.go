package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/pogonboskrupa/sumarija-sub000/internal/config"
	"github.com/pogonboskrupa/sumarija-sub000/internal/fetcher"
	"github.com/pogonboskrupa/sumarija-sub000/internal/gateway"
	"github.com/pogonboskrupa/sumarija-sub000/internal/httpserver"
	"github.com/pogonboskrupa/sumarija-sub000/internal/policy"
	"github.com/pogonboskrupa/sumarija-sub000/internal/proxy"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store/keydb"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store/memory"
	"github.com/pogonboskrupa/sumarija-sub000/internal/store/noop"
)

// CompositionRoot holds all application dependencies and provides a
// centralized place for dependency injection and service initialization.
type CompositionRoot struct {
	Config    *config.Config
	Logger    *zap.Logger
	Schedules *policy.Provider

	// The two subsystems manage separate stores and never share entries.
	GatewayStore store.Store
	ProxyStore   store.Store

	Gateway    *gateway.Gateway
	Proxy      *proxy.Proxy
	HTTPServer *httpserver.Server
}

// NewCompositionRoot creates and initializes all application dependencies.
//
// Initialization order:
// 1. Logger (needed by all other components)
// 2. Configuration
// 3. TTL schedules (with optional hot reload)
// 4. Stores (gateway KeyDB, proxy in-memory)
// 5. Gateway and proxy subsystems
// 6. HTTP server (uses all above components)
func NewCompositionRoot() (*CompositionRoot, error) {
	root := &CompositionRoot{}

	if err := root.initLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := root.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := root.loadSchedules(); err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}

	if err := root.initStores(); err != nil {
		return nil, fmt.Errorf("failed to initialize stores: %w", err)
	}

	root.initSubsystems()

	root.initHTTPServer()

	return root, nil
}

// initLogger initializes the application logger
func (r *CompositionRoot) initLogger() error {
	logger, err := zap.NewProduction()
	if err != nil {
		return err
	}
	r.Logger = logger
	return nil
}

// loadConfig loads the application configuration
func (r *CompositionRoot) loadConfig() error {
	configPath := os.Getenv("CACHE_CONFIG_FILE")
	if configPath == "" {
		configPath = "/app/cache_config.yaml"
	}

	cfg, err := config.LoadConfig(configPath, r.Logger)
	if err != nil {
		return err
	}

	r.Config = cfg
	return nil
}

// loadSchedules loads the TTL schedules and starts the file watcher when a
// schedules file is configured.
func (r *CompositionRoot) loadSchedules() error {
	if r.Config.Schedules == "" {
		r.Schedules = policy.NewProvider(policy.Default(), r.Logger)
		r.Logger.Info("Using built-in TTL schedules")
		return nil
	}

	schedules, err := policy.Load(r.Config.Schedules, r.Logger)
	if err != nil {
		return err
	}

	r.Schedules = policy.NewProvider(*schedules, r.Logger)
	if err := r.Schedules.Watch(r.Config.Schedules); err != nil {
		r.Logger.Warn("Schedule hot reload disabled", zap.Error(err))
	}
	return nil
}

// initStores initializes both subsystem stores.
func (r *CompositionRoot) initStores() error {
	if err := r.initGatewayStore(); err != nil {
		return err
	}
	return r.initProxyStore()
}

// initGatewayStore initializes the durable store for the report gateway,
// falling back to an in-memory store when KeyDB is unreachable.
func (r *CompositionRoot) initGatewayStore() error {
	if !r.Config.KeyDB.Enabled {
		r.GatewayStore = noop.New()
		r.Logger.Info("KeyDB gateway store disabled")
		return nil
	}

	keydbURL := r.Config.KeyDB.ResolveURL(r.Logger)
	client, err := keydb.NewRedisClient(&r.Config.KeyDB, keydbURL, r.Logger)
	if err != nil {
		r.Logger.Warn("Failed to connect to KeyDB, falling back to in-memory gateway store",
			zap.String("keydb_url", keydbURL),
			zap.Error(err))
		mem, memErr := memory.New(r.Config.Memory.SizeMB, r.Config.Memory.Retention, r.Logger)
		if memErr != nil {
			return memErr
		}
		r.GatewayStore = mem
		return nil
	}

	r.GatewayStore = keydb.New(&r.Config.KeyDB, client, r.Logger)
	r.Logger.Info("KeyDB gateway store initialized", zap.String("keydb_url", keydbURL))
	return nil
}

// initProxyStore initializes the in-memory store for the interception proxy.
func (r *CompositionRoot) initProxyStore() error {
	if !r.Config.Memory.Enabled {
		r.ProxyStore = noop.New()
		r.Logger.Info("Proxy store disabled")
		return nil
	}

	mem, err := memory.New(r.Config.Memory.SizeMB, r.Config.Memory.Retention, r.Logger)
	if err != nil {
		return err
	}
	r.ProxyStore = mem
	r.Logger.Info("Proxy store initialized", zap.Int("size_mb", r.Config.Memory.SizeMB))
	return nil
}

// initSubsystems wires the gateway and the interception proxy.
func (r *CompositionRoot) initSubsystems() {
	r.Gateway = gateway.New(
		r.GatewayStore,
		fetcher.NewClient(r.Config.API.BaseURL, r.Config.API.Timeout, r.Logger),
		r.Schedules.Page,
		r.Logger,
	)

	r.Proxy = proxy.New(
		r.ProxyStore,
		r.Schedules.Worker,
		r.Config.Proxy.GenerationTag(),
		r.Config.API.Hosts,
		r.Config.Proxy.Precache,
		r.Logger,
	)
}

// initHTTPServer initializes the HTTP server
func (r *CompositionRoot) initHTTPServer() {
	client := fetcher.NewClient(r.Config.API.BaseURL, r.Config.API.Timeout, r.Logger)
	session := fetcher.Session{
		Username: r.Config.API.Username,
		Password: r.Config.API.Password,
	}

	reports := httpserver.NewReportHandler(r.Gateway, client, session, r.Logger)
	r.HTTPServer = httpserver.NewServer(r.Gateway, r.Proxy, reports, r.Logger)
}

// Cleanup performs cleanup of all resources
func (r *CompositionRoot) Cleanup() error {
	var errors []error

	if r.Schedules != nil && r.Config != nil && r.Config.Schedules != "" {
		r.Schedules.Stop()
	}

	if r.Logger != nil {
		if err := r.Logger.Sync(); err != nil {
			errors = append(errors, fmt.Errorf("failed to sync logger: %w", err))
		}
	}

	if closer, ok := r.GatewayStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close gateway store: %w", err))
		}
	}

	if closer, ok := r.ProxyStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errors = append(errors, fmt.Errorf("failed to close proxy store: %w", err))
		}
	}

	if len(errors) > 0 {
		return errors[0]
	}

	return nil
}
