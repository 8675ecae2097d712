package services

import "errors"

var (
	// ErrHistoryUnavailable means the commit-log provider could not produce a
	// log. Fatal for the analysis run; the orchestrator decides on retries.
	ErrHistoryUnavailable = errors.New("commit history unavailable")

	// ErrClassificationTimeout means the LLM classifier did not answer within
	// its deadline. Recovered locally via the keyword fallback.
	ErrClassificationTimeout = errors.New("query classification timed out")

	// ErrClassificationUnavailable means no LLM collaborator is configured or
	// it returned an error. Recovered locally via the keyword fallback.
	ErrClassificationUnavailable = errors.New("query classification unavailable")

	// ErrRetrievalAnswerFailed means the LLM collaborator failed to produce a
	// retrieval answer. Surfaced as a degraded chat response.
	ErrRetrievalAnswerFailed = errors.New("retrieval answer failed")

	// ErrCapacityExceeded means the analysis queue is full.
	ErrCapacityExceeded = errors.New("analysis capacity exceeded")

	// ErrInconsistentOwnership flags ownership percentages drifting away from
	// 100%. Logged and renormalized, never returned to callers as data.
	ErrInconsistentOwnership = errors.New("inconsistent ownership state")

	ErrRepositoryNotFound   = errors.New("repository not found")
	ErrFileNotFound         = errors.New("file not found")
	ErrAnalysisNotCompleted = errors.New("repository analysis not completed")
)
