package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/nftrelay/internal/core/config"
	"github.com/vietddude/nftrelay/internal/core/cursor"
	"github.com/vietddude/nftrelay/internal/core/worker"
	"github.com/vietddude/nftrelay/internal/eventsync"
	"github.com/vietddude/nftrelay/internal/health"
	"github.com/vietddude/nftrelay/internal/infra/ledger"
	redisclient "github.com/vietddude/nftrelay/internal/infra/redis"
	"github.com/vietddude/nftrelay/internal/infra/rpc"
	"github.com/vietddude/nftrelay/internal/infra/rpc/provider"
	"github.com/vietddude/nftrelay/internal/metrics"
	"github.com/vietddude/nftrelay/internal/relay"
	"github.com/vietddude/nftrelay/internal/resilience"
	"github.com/vietddude/nftrelay/internal/txn"
)

// App owns every long-lived relay component and their lifecycle.
type App struct {
	cfg          *config.AppConfig
	service      *relay.Service
	providers    []provider.Provider
	rpcClient    *rpc.Client
	healthMon    *health.Monitor
	healthServer *health.Server
	pruner       *worker.Pruner
	store        *Storage
	redisClient  *redisclient.Client
	log          *slog.Logger
	cancel       context.CancelFunc
}

// NewApp builds the relay from configuration. Postgres and Redis are used
// when configured; otherwise state lives in process memory.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	// 1. Storage
	store, err := OpenStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	// 2. Ledger transport with failover
	providers := make([]provider.Provider, 0, len(cfg.Ledger.Providers))
	for _, p := range cfg.Ledger.Providers {
		hp := provider.NewHTTPProvider(p.Name, p.URL, p.Timeout, p.RPS)
		if p.DailyLimit > 0 {
			hp.Monitor.SetDailyLimit(p.DailyLimit)
		}
		providers = append(providers, hp)
	}
	rpcClient := rpc.NewClient(providers...)
	client := ledger.NewRPCClient(rpcClient)

	// 3. Contracts
	contracts := ledger.NewRegistry()
	for _, c := range cfg.Contracts {
		addr := common.HexToAddress(c.Address)
		if c.ABIPath != "" {
			_, err = contracts.RegisterFile(c.Key, addr, c.ABIPath)
		} else {
			_, err = contracts.Register(c.Key, addr, c.ABI)
		}
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to register contract %s: %w", c.Key, err)
		}
		slog.Info("Registered contract", "key", c.Key, "address", addr.Hex())
	}

	// 4. Submission path
	signer, err := txn.NewKeySigner(cfg.Signer.PrivateKey)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to load signer: %w", err)
	}
	breakers := resilience.NewRegistry(cfg.Breaker)
	retry := resilience.NewCoordinator(breakers, cfg.Retry)
	submitter := txn.NewSubmitter(
		client,
		signer,
		txn.NewGasEstimator(client, cfg.Gas),
		txn.NewNonceAllocator(client),
		retry,
		cfg.Submitter,
	)
	submitter.SetJournal(store.Journal)

	// 5. Shared state: rate windows and the sync lease
	var redisClient *redisclient.Client
	var windows resilience.WindowStore
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, using in-process rate limits", "error", err)
		} else {
			windows = redisclient.NewWindowStore(redisClient)
		}
	}

	// 6. Event sync
	cursors := cursor.NewManager(store.Cursors)
	cursors.SetStateChangeCallback(func(key string, t cursor.Transition) {
		slog.Info("Sync state changed", "cursor", key, "from", t.From, "to", t.To, "reason", t.Reason)
	})
	syncer := eventsync.New(client, contracts, cursors, cfg.Sync)
	if redisClient != nil {
		syncer.SetLease(redisclient.NewLease(redisClient, "sync:"+syncer.Config().CursorKey, syncer.Config().LeaseTTL))
	}

	service := relay.New(relay.Deps{
		Contracts: contracts,
		Submitter: submitter,
		Sync:      syncer,
		Limiter:   resilience.NewRateLimiter(windows),
		Journal:   store.Journal,
	})

	// 7. Health
	deps := map[string]health.Check{}
	if store.DB != nil {
		deps["postgres"] = store.DB.Health
	}
	if redisClient != nil {
		deps["redis"] = redisClient.Health
	}
	healthMon := health.NewMonitor(health.Sources{
		Cursors:      cursors,
		CursorKey:    syncer.Config().CursorKey,
		Head:         client,
		Monitoring:   syncer.Running,
		Providers:    providers,
		Breakers:     breakers.Snapshot,
		Pending:      func() int { return len(submitter.Pending()) },
		Dependencies: deps,
	})

	return &App{
		cfg:          cfg,
		service:      service,
		providers:    providers,
		rpcClient:    rpcClient,
		healthMon:    healthMon,
		healthServer: health.NewServer(healthMon, cfg.Server.Port),
		pruner:       worker.NewPruner(cfg.Journal.Retention, store.Journal),
		store:        store,
		redisClient:  redisClient,
		log:          slog.Default(),
	}, nil
}

// Service returns the relay facade.
func (a *App) Service() *relay.Service {
	return a.service
}

// Health returns the health monitor.
func (a *App) Health() *health.Monitor {
	return a.healthMon
}

// Start launches the background components and begins monitoring.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.store.DB != nil {
		a.store.DB.StartMetricsCollector(ctx)
	}

	if a.cfg.Journal.Retention > 0 {
		a.log.Info("Starting journal pruner", "retention", a.cfg.Journal.Retention)
		go a.pruner.Start(ctx)
	}

	go a.runMetricsUpdater(ctx)

	for _, c := range a.cfg.Contracts {
		for _, event := range c.Events {
			if _, err := a.service.Subscribe(c.Key, event, LogEvent(a.log), nil); err != nil {
				return fmt.Errorf("failed to subscribe %s.%s: %w", c.Key, event, err)
			}
			a.log.Info("Logging contract event", "contract", c.Key, "event", event)
		}
	}

	if err := a.service.StartMonitoring(ctx); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	return nil
}

// Stop stops monitoring and releases every connection.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping relay...")

	if err := a.service.StopMonitoring(ctx); err != nil {
		a.log.Warn("Failed to stop monitoring cleanly", "error", err)
	}
	a.service.UnsubscribeAll()
	if a.cancel != nil {
		a.cancel()
	}

	err := a.healthServer.Stop(ctx)

	if a.redisClient != nil {
		if cerr := a.redisClient.Close(); cerr != nil {
			a.log.Warn("Failed to close Redis", "error", cerr)
		}
	}
	if cerr := a.rpcClient.Close(); cerr != nil {
		a.log.Warn("Failed to close RPC providers", "error", cerr)
	}
	a.store.Close()
	return err
}

func (a *App) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, p := range a.providers {
				v := 0.0
				if p.IsAvailable() {
					v = 1
				}
				metrics.ProviderAvailable.WithLabelValues(p.GetName()).Set(v)
			}
			slog.Debug("Updated provider metrics", "providers", len(a.providers))
		}
	}
}
