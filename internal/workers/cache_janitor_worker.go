package workers

import (
	"context"
	"time"

	"github.com/chronolens/chronolens/internal/services"
	"github.com/chronolens/chronolens/pkg/logger"
)

// CacheJanitorWorker periodically removes expired cache entries. Stale
// entries already miss on lookup; this just keeps the table from growing.
type CacheJanitorWorker struct {
	*BaseWorker
	cache    *services.CacheService
	interval time.Duration
}

// NewCacheJanitorWorker creates a new cache janitor worker
func NewCacheJanitorWorker(workerID string, cache *services.CacheService) *CacheJanitorWorker {
	return &CacheJanitorWorker{
		BaseWorker: NewBaseWorker(workerID),
		cache:      cache,
		interval:   15 * time.Minute,
	}
}

// Start begins the purge loop until the context or worker stops
func (w *CacheJanitorWorker) Start(ctx context.Context) error {
	w.Running = true
	log := logger.WithComponent("worker").WithField("worker_id", w.WorkerID)
	log.Infof("cache janitor started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.StopChan:
			return nil
		case <-ticker.C:
			purged, err := w.cache.PurgeExpired()
			if err != nil {
				log.WithError(err).Errorf("cache purge failed")
				continue
			}
			if purged > 0 {
				log.Infof("purged %d expired cache entries", purged)
			}
		}
	}
}
