package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cbusillo/product-connect/internal/cache"
	"github.com/cbusillo/product-connect/internal/notify"
	"github.com/cbusillo/product-connect/internal/shopify"
	"github.com/cbusillo/product-connect/internal/store"
	"github.com/cbusillo/product-connect/pkg/config"
	"github.com/cbusillo/product-connect/pkg/logger"
	"github.com/cbusillo/product-connect/pkg/models"
)

// Orchestrator drives one full synchronization pass: session setup, the
// import phase, the checkpoint update and the export phase, in that order.
type Orchestrator struct {
	store    *store.Store
	client   *shopify.Client
	redis    *cache.RedisClient
	importer *Importer
	exporter *Exporter
	notifier *notify.Notifier
	logs     *logger.RingBuffer
	logger   *logrus.Entry
	cfg      *config.SyncConfig

	mu     sync.RWMutex
	status models.PassStatus
}

// NewOrchestrator wires a pass orchestrator.
func NewOrchestrator(
	st *store.Store,
	client *shopify.Client,
	redis *cache.RedisClient,
	importer *Importer,
	exporter *Exporter,
	notifier *notify.Notifier,
	logs *logger.RingBuffer,
	cfg *config.SyncConfig,
	log *logrus.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    st,
		client:   client,
		redis:    redis,
		importer: importer,
		exporter: exporter,
		notifier: notifier,
		logs:     logs,
		logger:   log.WithField("component", "orchestrator"),
		cfg:      cfg,
		status:   models.PassStatus{State: models.PassIdle},
	}
}

// Status returns a snapshot of the pass state.
func (o *Orchestrator) Status() models.PassStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// RunPass executes one full import-then-export pass. Any failure escalates a
// notification and leaves the engine in the failed state; the next pass
// starts clean.
func (o *Orchestrator) RunPass(ctx context.Context) error {
	started := time.Now().UTC()
	o.logs.Reset()
	o.setState(ctx, func(s *models.PassStatus) {
		s.State = models.PassImporting
		s.LastStarted = &started
		s.LastError = ""
		s.Imported = models.ImportResult{}
		s.Exported = 0
	})

	if err := o.runPhases(ctx, started); err != nil {
		o.logger.WithField("error", err.Error()).Error("Sync pass failed")
		o.notifier.NotifyOnError(ctx, "Shopify sync failed", err.Error(), nil, o.logs.Lines())

		finished := time.Now().UTC()
		o.setState(ctx, func(s *models.PassStatus) {
			s.State = models.PassFailed
			s.LastFinished = &finished
			s.LastError = err.Error()
		})
		return err
	}

	finished := time.Now().UTC()
	o.setState(ctx, func(s *models.PassStatus) {
		s.State = models.PassIdle
		s.LastFinished = &finished
	})
	o.logger.WithField("duration", finished.Sub(started).String()).Info("Sync pass finished")
	return nil
}

func (o *Orchestrator) runPhases(ctx context.Context, started time.Time) error {
	if err := o.setupSession(ctx); err != nil {
		return err
	}

	sinceStr, since, err := o.importWindow(ctx)
	if err != nil {
		return err
	}

	o.logger.WithField("since", sinceStr).Info("Starting import phase")
	result, err := o.importer.Run(ctx, sinceStr, since)
	if err != nil {
		return err
	}
	o.setState(ctx, func(s *models.PassStatus) {
		s.State = models.PassExporting
		s.Imported = result
	})

	// The checkpoint moves to the pass start only once the import phase has
	// fully succeeded, so an aborted pass re-reads the same window.
	if err := o.store.SetParam(ctx, store.ParamLastImportTime, started.Format("2006-01-02T15:04:05Z")); err != nil {
		return err
	}

	o.notifySummary(ctx, result)

	o.logger.Info("Starting export phase")
	exported, err := o.exporter.Run(ctx)
	o.setState(ctx, func(s *models.PassStatus) {
		s.Exported = exported
	})
	if err != nil {
		return err
	}
	o.logger.WithField("exported", exported).Info("Export phase finished")
	return nil
}

// setupSession verifies the remote shop is reachable and resolves the stock
// location, preferring the cached one over a remote round trip.
func (o *Orchestrator) setupSession(ctx context.Context) error {
	shop, err := o.client.GetShop(ctx)
	if err != nil {
		return fmt.Errorf("failed to open remote session: %w", err)
	}
	o.logger.WithField("shop", shop.Name).Debug("Remote session established")

	gid, err := o.redis.CachedLocationGID(ctx)
	if err != nil {
		o.logger.WithField("error", err.Error()).Warn("Location cache unavailable")
	}
	if gid == "" {
		location, err := o.client.GetPrimaryLocation(ctx)
		if err != nil {
			return fmt.Errorf("failed to resolve stock location: %w", err)
		}
		gid = location.ID
		if err := o.redis.SetCachedLocationGID(ctx, gid); err != nil {
			o.logger.WithField("error", err.Error()).Warn("Failed to cache stock location")
		}
	}
	o.exporter.SetLocation(gid)
	return nil
}

// importWindow reads the last successful import checkpoint. A missing
// checkpoint starts from the epoch sentinel, a full backfill.
func (o *Orchestrator) importWindow(ctx context.Context) (string, time.Time, error) {
	value, err := o.store.GetParam(ctx, store.ParamLastImportTime)
	if err != nil {
		return "", time.Time{}, err
	}
	if value == "" {
		return epoch.Format("2006-01-02T15:04:05Z"), epoch, nil
	}
	since, err := time.Parse("2006-01-02T15:04:05Z", value)
	if err != nil {
		return "", time.Time{}, &shopify.ConfigurationError{
			Reason: fmt.Sprintf("stored import checkpoint %q is not a valid timestamp", value),
		}
	}
	return value, since, nil
}

func (o *Orchestrator) notifySummary(ctx context.Context, result models.ImportResult) {
	body := fmt.Sprintf(
		"Shopify imported %d out of %d items successfully at %s",
		result.Changed(), result.Total, time.Now().UTC().Format("2006-01-02 15:04:05"),
	)
	if err := o.notifier.Notify(ctx, "Shopify import finished", body, o.cfg.SyncChannel, nil, nil); err != nil {
		o.logger.WithField("error", err.Error()).Warn("Failed to post import summary")
	}
}

// setState applies a mutation to the status under lock and mirrors the
// result into the shared cache, best effort.
func (o *Orchestrator) setState(ctx context.Context, mutate func(*models.PassStatus)) {
	o.mu.Lock()
	mutate(&o.status)
	snapshot := o.status
	o.mu.Unlock()

	if err := o.redis.SetPassStatus(ctx, &snapshot); err != nil {
		o.logger.WithField("error", err.Error()).Debug("Failed to cache pass status")
	}
}
