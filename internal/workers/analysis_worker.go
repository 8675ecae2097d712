package workers

import (
	"context"

	"github.com/chronolens/chronolens/internal/services"
	"github.com/chronolens/chronolens/pkg/logger"
)

// AnalysisWorker drains the orchestrator's FIFO queue and runs one analysis
// at a time. The pool size bounds how many repositories are analyzed
// concurrently; queued submissions wait their turn here.
type AnalysisWorker struct {
	*BaseWorker
	orchestrator *services.OrchestratorService
}

// NewAnalysisWorker creates a new analysis worker
func NewAnalysisWorker(workerID string, orchestrator *services.OrchestratorService) *AnalysisWorker {
	return &AnalysisWorker{
		BaseWorker:   NewBaseWorker(workerID),
		orchestrator: orchestrator,
	}
}

// Start begins consuming analysis jobs until the context or worker stops
func (w *AnalysisWorker) Start(ctx context.Context) error {
	w.Running = true
	log := logger.WithComponent("worker").WithField("worker_id", w.WorkerID)
	log.Infof("analysis worker started")

	for {
		select {
		case <-ctx.Done():
			log.Infof("analysis worker stopping: context cancelled")
			return nil
		case <-w.StopChan:
			log.Infof("analysis worker stopping")
			return nil
		case repoID, ok := <-w.orchestrator.Queue():
			if !ok {
				return nil
			}
			// A failed run is contained to its repository; the worker
			// keeps serving the queue.
			if err := w.orchestrator.RunAnalysis(ctx, repoID); err != nil {
				log.WithError(err).WithField("repo_id", repoID).Errorf("analysis run failed")
			}
		}
	}
}
