package workers

import (
	"context"
	"fmt"
	"sync"

	"github.com/chronolens/chronolens/internal/services"
	"github.com/chronolens/chronolens/pkg/logger"
)

// WorkerManager manages the analysis pool and the cache janitor
type WorkerManager struct {
	workers []Worker
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager() *WorkerManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerManager{
		workers: make([]Worker, 0),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// StartAll starts the analysis pool and supporting workers. analysisWorkers
// is the global cap on concurrently running repository analyses.
func (wm *WorkerManager) StartAll(orchestrator *services.OrchestratorService, cache *services.CacheService, analysisWorkers int) error {
	logger.WithComponent("workers").Infof("starting %d analysis workers", analysisWorkers)

	for i := 0; i < analysisWorkers; i++ {
		worker := NewAnalysisWorker(fmt.Sprintf("analysis-%d", i+1), orchestrator)
		wm.workers = append(wm.workers, worker)
		wm.startWorker(worker)
	}

	janitor := NewCacheJanitorWorker("cache-janitor-1", cache)
	wm.workers = append(wm.workers, janitor)
	wm.startWorker(janitor)

	logger.WithComponent("workers").Infof("started %d total workers", len(wm.workers))
	return nil
}

// StopAll gracefully stops all workers
func (wm *WorkerManager) StopAll() error {
	logger.WithComponent("workers").Infof("stopping all workers")

	wm.cancel()
	for _, worker := range wm.workers {
		if err := worker.Stop(); err != nil {
			logger.WithComponent("workers").WithError(err).
				Errorf("error stopping worker %s", worker.GetWorkerID())
		}
	}
	wm.wg.Wait()

	logger.WithComponent("workers").Infof("all workers stopped")
	return nil
}

// startWorker starts a single worker in a goroutine
func (wm *WorkerManager) startWorker(worker Worker) {
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		if err := worker.Start(wm.ctx); err != nil {
			logger.WithComponent("workers").WithError(err).
				Errorf("worker %s stopped with error", worker.GetWorkerID())
		}
	}()
}

// GetWorkerStatus returns the running state of all workers
func (wm *WorkerManager) GetWorkerStatus() map[string]bool {
	status := make(map[string]bool)
	for _, worker := range wm.workers {
		switch w := worker.(type) {
		case *AnalysisWorker:
			status[worker.GetWorkerID()] = w.IsRunning()
		case *CacheJanitorWorker:
			status[worker.GetWorkerID()] = w.IsRunning()
		default:
			status[worker.GetWorkerID()] = false
		}
	}
	return status
}
