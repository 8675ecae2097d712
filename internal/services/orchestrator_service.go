package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/internal/repositories"
	"github.com/chronolens/chronolens/pkg/logger"
)

// RepositoryFetcher brings a repository's working copy up to date before
// the log is mined
type RepositoryFetcher interface {
	CloneOrUpdate(ctx context.Context, owner, name, url string) error
}

// AnalysisResult bundles everything one completed run produced. Replaced
// wholesale on re-analysis; never patched incrementally.
type AnalysisResult struct {
	Snapshot     *models.RepositorySnapshot
	Commits      []*models.Commit
	Resolution   *IdentityResolution
	Ownership    *OwnershipAnalysis
	Trends       *TrendAnalysis
	Contributors []*models.ContributorStat
}

// OrchestratorService drives analysis runs through their lifecycle and is
// the only writer of RepositorySnapshot status. Submissions queue FIFO up to
// the configured depth; beyond that they fail fast with a capacity error.
type OrchestratorService struct {
	snapshots   *repositories.SnapshotRepository
	commits     *repositories.CommitRepository
	commitFiles *repositories.CommitFileRepository
	fetcher     RepositoryFetcher
	walker      *CommitWalkerService
	identity    *IdentityService
	ownership   *OwnershipService
	trends      *TrendService

	queue chan string

	mu       sync.RWMutex
	results  map[string]*AnalysisResult
	inFlight map[string]struct{} // repo IDs queued or running
}

// NewOrchestratorService creates the orchestrator with its bounded queue
func NewOrchestratorService(
	snapshots *repositories.SnapshotRepository,
	commits *repositories.CommitRepository,
	commitFiles *repositories.CommitFileRepository,
	fetcher RepositoryFetcher,
	walker *CommitWalkerService,
	identity *IdentityService,
	ownership *OwnershipService,
	trends *TrendService,
	queueDepth int,
) *OrchestratorService {
	if queueDepth <= 0 {
		queueDepth = 32
	}
	return &OrchestratorService{
		snapshots:   snapshots,
		commits:     commits,
		commitFiles: commitFiles,
		fetcher:     fetcher,
		walker:      walker,
		identity:    identity,
		ownership:   ownership,
		trends:      trends,
		queue:       make(chan string, queueDepth),
		results:     make(map[string]*AnalysisResult),
		inFlight:    make(map[string]struct{}),
	}
}

// Queue is consumed by the analysis workers
func (s *OrchestratorService) Queue() <-chan string {
	return s.queue
}

// Submit enqueues a repository for analysis in FIFO order. A repository
// already queued or running is rejected so a snapshot never has two writers;
// a full queue fails fast rather than blocking the caller.
func (s *OrchestratorService) Submit(repoID string) error {
	snapshot, err := s.snapshots.GetByID(repoID)
	if err != nil {
		return ErrRepositoryNotFound
	}

	s.mu.Lock()
	if _, dup := s.inFlight[repoID]; dup {
		s.mu.Unlock()
		return fmt.Errorf("analysis already queued for %s/%s", snapshot.Owner, snapshot.Name)
	}
	s.inFlight[repoID] = struct{}{}
	s.mu.Unlock()

	select {
	case s.queue <- repoID:
		logger.WithComponent("orchestrator").WithField("repo_id", repoID).Infof("analysis queued")
		return nil
	default:
		s.release(repoID)
		return ErrCapacityExceeded
	}
}

// release clears the in-flight mark once a run ends or a submission fails
func (s *OrchestratorService) release(repoID string) {
	s.mu.Lock()
	delete(s.inFlight, repoID)
	s.mu.Unlock()
}

// RunAnalysis executes one full run: clone, mine, analyze. Failures mark
// the snapshot failed and are contained to this run; the worker pool and
// other repositories' cache entries are untouched.
func (s *OrchestratorService) RunAnalysis(ctx context.Context, repoID string) error {
	defer s.release(repoID)

	snapshot, err := s.snapshots.GetByID(repoID)
	if err != nil {
		return ErrRepositoryNotFound
	}

	log := logger.WithComponent("orchestrator").WithField("repo_id", repoID)

	fail := func(stage string, cause error) error {
		snapshot.MarkFailed(fmt.Sprintf("%s: %v", stage, cause))
		if updateErr := s.snapshots.Update(snapshot); updateErr != nil {
			log.WithError(updateErr).Errorf("failed to persist failure state")
		}
		log.WithError(cause).Errorf("analysis failed during %s", stage)
		return cause
	}

	if err := s.transition(snapshot, models.AnalysisStatusCloning); err != nil {
		return err
	}
	if err := s.fetcher.CloneOrUpdate(ctx, snapshot.Owner, snapshot.Name, snapshot.URL); err != nil {
		return fail("cloning", err)
	}

	if err := s.transition(snapshot, models.AnalysisStatusMining); err != nil {
		return err
	}
	walk, err := s.walker.Walk(ctx, snapshot.ID, snapshot.Owner, snapshot.Name)
	if err != nil {
		return fail("mining", err)
	}

	if err := s.transition(snapshot, models.AnalysisStatusAnalyzing); err != nil {
		return err
	}

	resolution := s.identity.Resolve(walk.Commits)
	ownership, err := s.ownership.Build(walk.Commits)
	if err != nil {
		return fail("analyzing", err)
	}
	trends := s.trends.Build(walk.Commits)
	contributors := s.ownership.Contributors(walk.Commits, resolution, ownership)

	if err := s.commits.ReplaceHistory(snapshot.ID, walk.Commits); err != nil {
		return fail("persisting", err)
	}

	snapshot.MarkCompleted(walk.HeadSHA, len(walk.Commits), len(ownership.LiveFiles()),
		len(resolution.Identities), walk.Truncated)
	if err := s.snapshots.Update(snapshot); err != nil {
		return fail("persisting", err)
	}

	s.mu.Lock()
	s.results[repoID] = &AnalysisResult{
		Snapshot:     snapshot.Clone(),
		Commits:      walk.Commits,
		Resolution:   resolution,
		Ownership:    ownership,
		Trends:       trends,
		Contributors: contributors,
	}
	s.mu.Unlock()

	log.WithFields(map[string]interface{}{
		"commits":   len(walk.Commits),
		"authors":   len(resolution.Identities),
		"truncated": walk.Truncated,
	}).Infof("analysis completed at %s", shortSHA(walk.HeadSHA))
	return nil
}

// transition moves the snapshot to the next lifecycle state and publishes it
func (s *OrchestratorService) transition(snapshot *models.RepositorySnapshot, status models.AnalysisStatus) error {
	snapshot.Status = status
	if err := s.snapshots.Update(snapshot); err != nil {
		return fmt.Errorf("persist status %s: %w", status, err)
	}
	logger.WithComponent("orchestrator").WithFields(map[string]interface{}{
		"repo_id": snapshot.ID,
		"status":  status,
	}).Infof("analysis progress")
	return nil
}

// CompletedAnalysis returns the analysis artifacts for a repository,
// rebuilding them from persisted commits after a restart.
func (s *OrchestratorService) CompletedAnalysis(repoID string) (*AnalysisResult, error) {
	s.mu.RLock()
	result, ok := s.results[repoID]
	s.mu.RUnlock()
	if ok {
		return result, nil
	}
	return s.rebuild(repoID)
}

// rebuild reconstructs in-memory analysis state from the durable tables
func (s *OrchestratorService) rebuild(repoID string) (*AnalysisResult, error) {
	snapshot, err := s.snapshots.GetByID(repoID)
	if err != nil {
		return nil, ErrRepositoryNotFound
	}
	if !snapshot.IsCompleted() {
		return nil, ErrAnalysisNotCompleted
	}

	commits, err := s.commits.GetByRepositoryID(repoID)
	if err != nil {
		return nil, err
	}
	filesByCommit, err := s.commitFiles.GetByRepositoryID(repoID)
	if err != nil {
		return nil, err
	}
	for _, commit := range commits {
		commit.Files = filesByCommit[commit.ID]
	}

	resolution := s.identity.Resolve(commits)
	ownership, err := s.ownership.Build(commits)
	if err != nil {
		return nil, err
	}

	result := &AnalysisResult{
		Snapshot:     snapshot,
		Commits:      commits,
		Resolution:   resolution,
		Ownership:    ownership,
		Trends:       s.trends.Build(commits),
		Contributors: s.ownership.Contributors(commits, resolution, ownership),
	}

	s.mu.Lock()
	s.results[repoID] = result
	s.mu.Unlock()

	logger.WithComponent("orchestrator").WithField("repo_id", repoID).
		Infof("rebuilt analysis state from %d persisted commits", len(commits))
	return result, nil
}

// Forget drops the in-memory artifacts for a repository, used on delete
func (s *OrchestratorService) Forget(repoID string) {
	s.mu.Lock()
	delete(s.results, repoID)
	s.mu.Unlock()
}
