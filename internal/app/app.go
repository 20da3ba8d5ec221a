package app

import (
	"context"
	"fmt"
	"net/http"
	stdsync "sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/internal/api"
	"github.com/cbusillo/product-connect/internal/cache"
	"github.com/cbusillo/product-connect/internal/messaging"
	"github.com/cbusillo/product-connect/internal/notify"
	"github.com/cbusillo/product-connect/internal/shopify"
	"github.com/cbusillo/product-connect/internal/store"
	"github.com/cbusillo/product-connect/internal/sync"
	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/logger"
	"github.com/cbusillo/product-connect/pkg/models"
)

// lockTTL bounds how long an abandoned pass can keep the engine locked.
const lockTTL = 2 * time.Hour

// App wires the synchronization engine together.
type App struct {
	cfg    *config.Config
	logger *logrus.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     stdsync.WaitGroup

	// Core components
	mysqlDB    *store.Store
	redisCache *cache.RedisClient
	natsClient *messaging.NATSClient
	client     *shopify.Client
	logs       *logger.RingBuffer

	// Services
	orchestrator *sync.Orchestrator
	staleFinder  *sync.StaleFinder
	apiServer    *api.Server

	passMu  stdsync.Mutex
	running bool
}

// New creates a new application instance.
func New(cfg *config.Config, logger *logrus.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())

	return &App{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Initialize connects every backing service and wires the engine.
func (a *App) Initialize() error {
	a.logs = logger.NewRingBuffer(a.cfg.Sync.LogBufferSize)
	a.logger.AddHook(a.logs)

	if err := a.initializeStore(); err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := a.initializeCache(); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	if err := a.initializeMessaging(); err != nil {
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	if err := a.initializeShopify(); err != nil {
		return fmt.Errorf("failed to initialize remote client: %w", err)
	}

	a.initializeSyncEngine()
	a.initializeAPIServer()
	return nil
}

func (a *App) initializeStore() error {
	st, err := store.New(&a.cfg.MySQL, a.cfg.GetMySQLDSN(), a.logger)
	if err != nil {
		return err
	}
	a.mysqlDB = st
	return nil
}

func (a *App) initializeCache() error {
	redisCache, err := cache.NewRedisClient(&a.cfg.Redis, a.logger)
	if err != nil {
		return err
	}
	a.redisCache = redisCache
	return nil
}

func (a *App) initializeMessaging() error {
	natsClient, err := messaging.NewNATSClient(&a.cfg.NATS, a.logger)
	if err != nil {
		// The notification mirror is optional; the engine stays functional
		// without it.
		a.logger.WithField("error", err.Error()).Warn("NATS unavailable, notifications stay local")
		return nil
	}
	a.natsClient = natsClient
	return nil
}

func (a *App) initializeShopify() error {
	if err := a.resolveCredentials(); err != nil {
		return err
	}

	rate, err := shopify.NewRateController(a.cfg.Shopify.MaxBucketSize, a.cfg.Shopify.RestoreRate, a.logger)
	if err != nil {
		return err
	}

	client, err := shopify.NewClient(&a.cfg.Shopify, rate, a.logger)
	if err != nil {
		return err
	}
	a.client = client
	return nil
}

// resolveCredentials falls back to credentials stored as config params when
// the environment does not carry them.
func (a *App) resolveCredentials() error {
	ctx, cancel := context.WithTimeout(a.ctx, 10*time.Second)
	defer cancel()

	if a.cfg.Shopify.StoreKey == "" {
		value, err := a.mysqlDB.GetParam(ctx, store.ParamStoreKey)
		if err != nil {
			return err
		}
		a.cfg.Shopify.StoreKey = value
	}
	if a.cfg.Shopify.APIToken == "" {
		value, err := a.mysqlDB.GetParam(ctx, store.ParamAPIToken)
		if err != nil {
			return err
		}
		a.cfg.Shopify.APIToken = value
	}
	if version, err := a.mysqlDB.GetParam(ctx, store.ParamAPIVersion); err == nil && version != "" {
		a.cfg.Shopify.APIVersion = version
	}
	return nil
}

func (a *App) initializeSyncEngine() {
	walker := shopify.NewWalker(a.client, a.cfg.Shopify.PageSize, a.logger)
	notifier := notify.New(a.mysqlDB, a.natsClient, &a.cfg.Sync, a.logger)
	images := sync.NewImageFetcher(a.cfg.Shopify.MinRetryDelay, a.logger)

	importer := sync.NewImporter(a.mysqlDB, walker, notifier, images, a.logs, &a.cfg.Sync, a.logger)
	exporter := sync.NewExporter(a.mysqlDB, a.client, notifier, a.logs, &a.cfg.Sync, a.logger)

	a.orchestrator = sync.NewOrchestrator(
		a.mysqlDB, a.client, a.redisCache,
		importer, exporter, notifier,
		a.logs, &a.cfg.Sync, a.logger,
	)
	a.staleFinder = sync.NewStaleFinder(walker, a.logger)
}

func (a *App) initializeAPIServer() {
	a.apiServer = api.NewServer(a.cfg, a.logger, a.mysqlDB, a.redisCache, a.natsClient, a)
}

// Status implements api.SyncRunner.
func (a *App) Status() models.PassStatus {
	return a.orchestrator.Status()
}

// TriggerPass implements api.SyncRunner: it starts a pass in the background
// unless one is already running.
func (a *App) TriggerPass() error {
	a.passMu.Lock()
	if a.running {
		a.passMu.Unlock()
		return fmt.Errorf("a sync pass is already running")
	}
	a.running = true
	a.passMu.Unlock()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			a.passMu.Lock()
			a.running = false
			a.passMu.Unlock()
		}()
		if err := a.RunOnce(a.ctx); err != nil {
			a.logger.WithField("error", err.Error()).Error("Triggered sync pass failed")
		}
	}()
	return nil
}

// RunOnce executes one synchronization pass under the shared lock. A second
// engine instance holding the lock makes this a no-op.
func (a *App) RunOnce(ctx context.Context) error {
	acquired, err := a.redisCache.AcquireSyncLock(ctx, lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire sync lock: %w", err)
	}
	if !acquired {
		a.logger.Info("Another sync pass holds the lock, skipping")
		return nil
	}
	defer func() {
		if err := a.redisCache.ReleaseSyncLock(context.Background()); err != nil {
			a.logger.WithField("error", err.Error()).Warn("Failed to release sync lock")
		}
	}()

	return a.orchestrator.RunPass(ctx)
}

// FindStaleProducts reports remote product ids that carry stock but have not
// sold since the cutoff.
func (a *App) FindStaleProducts(ctx context.Context, cutoff time.Time) ([]int64, error) {
	return a.staleFinder.Find(ctx, cutoff)
}

// Migrate applies the local store schema.
func (a *App) Migrate(ctx context.Context) error {
	return a.mysqlDB.Migrate(ctx)
}

// Start runs the API server and the pass scheduler until Stop is called.
func (a *App) Start() error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.apiServer.Start(); err != nil && err != http.ErrServerClosed {
			a.logger.WithField("error", err.Error()).Error("API server error")
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.runScheduler()
	}()

	return nil
}

// runScheduler runs one pass immediately, then one per configured interval.
func (a *App) runScheduler() {
	a.logger.WithField("interval", a.cfg.Sync.Interval.String()).Info("Starting sync scheduler")

	if err := a.TriggerPass(); err != nil {
		a.logger.WithField("error", err.Error()).Warn("Initial sync pass not started")
	}

	ticker := time.NewTicker(a.cfg.Sync.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			if err := a.TriggerPass(); err != nil {
				a.logger.WithField("error", err.Error()).Debug("Scheduled sync pass skipped")
			}
		}
	}
}

// Stop gracefully stops the application.
func (a *App) Stop() error {
	a.logger.Info("Stopping application...")
	a.cancel()

	if a.apiServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.apiServer.Stop(ctx); err != nil {
			a.logger.WithField("error", err.Error()).Error("Error stopping API server")
		}
		cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		a.logger.Warn("Timeout waiting for goroutines to finish")
	}

	if a.natsClient != nil {
		if err := a.natsClient.Close(); err != nil {
			a.logger.WithField("error", err.Error()).Error("Error closing NATS connection")
		}
	}
	if a.redisCache != nil {
		if err := a.redisCache.Close(); err != nil {
			a.logger.WithField("error", err.Error()).Error("Error closing Redis connection")
		}
	}
	if a.mysqlDB != nil {
		if err := a.mysqlDB.Close(); err != nil {
			a.logger.WithField("error", err.Error()).Error("Error closing MySQL connection")
		}
	}

	a.logger.Info("Application stopped")
	return nil
}
