package services

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/chronolens/chronolens/internal/models"
	"github.com/chronolens/chronolens/pkg/logger"
)

// CacheStore is the persistence surface the cache service needs
type CacheStore interface {
	Upsert(entry *models.CacheEntry) error
	GetByKey(key string) (*models.CacheEntry, error)
	IncrementHitCount(key string) error
	GetRecentByRepoID(repoID string, limit int) ([]*models.CacheEntry, error)
	DeleteExpired(now time.Time) (int64, error)
}

// CacheService memoizes query answers keyed by repository state. Keys embed
// the analyzed commit id, so a new analysis invalidates old entries by key
// mismatch alone; nothing is deleted eagerly. Concurrent callers sharing a
// key ride a single computation.
type CacheService struct {
	store CacheStore
	ttl   time.Duration
	group singleflight.Group
}

// NewCacheService creates a cache service with the default entry TTL
func NewCacheService(store CacheStore, ttl time.Duration) *CacheService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CacheService{store: store, ttl: ttl}
}

// DeriveKey hashes repository id, analyzed commit id, and the normalized
// query text into a stable cache key.
func (s *CacheService) DeriveKey(repoID, commitSHA, query string) string {
	sum := sha256.Sum256([]byte(repoID + "\x00" + commitSHA + "\x00" + normalizeQuery(query)))
	return hex.EncodeToString(sum[:])
}

// normalizeQuery lowercases and collapses whitespace so trivially rephrased
// queries share a key
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}

// flightResult carries a payload through singleflight along with whether it
// was served from the store
type flightResult struct {
	payload string
	cached  bool
}

// GetOrCompute returns the stored payload when the key is live, otherwise
// computes it via fn, stores it, and returns it. The bool reports whether
// the payload came from the cache. At most one fn runs per key at a time;
// duplicate concurrent callers await that single computation.
func (s *CacheService) GetOrCompute(key, repoID, queryText string, fn func() (string, error)) (string, bool, error) {
	if payload, ok := s.lookup(key); ok {
		return payload, true, nil
	}

	value, err, _ := s.group.Do(key, func() (interface{}, error) {
		// Re-check under the flight: a concurrent caller may have stored
		// the entry between our miss and this computation.
		if payload, ok := s.lookup(key); ok {
			return flightResult{payload: payload, cached: true}, nil
		}

		payload, err := fn()
		if err != nil {
			return flightResult{}, err
		}

		entry := models.NewCacheEntry(key, repoID, queryText, payload, s.ttl)
		if storeErr := s.store.Upsert(entry); storeErr != nil {
			// A failed write degrades to uncached, not to a failed query.
			logger.WithComponent("cache").WithError(storeErr).Warnf("failed to store cache entry")
		}
		return flightResult{payload: payload}, nil
	})
	if err != nil {
		return "", false, err
	}
	result := value.(flightResult)
	return result.payload, result.cached, nil
}

// lookup returns a live payload for the key and bumps its hit counter
func (s *CacheService) lookup(key string) (string, bool) {
	entry, err := s.store.GetByKey(key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.WithComponent("cache").WithError(err).Warnf("cache lookup failed")
		}
		return "", false
	}
	if entry == nil || entry.IsExpired(time.Now()) {
		return "", false
	}
	if err := s.store.IncrementHitCount(key); err != nil {
		logger.WithComponent("cache").WithError(err).Warnf("failed to bump hit count")
	}
	return entry.Payload, true
}

// Recent returns the latest cached queries for a repository, for the chat
// history view
func (s *CacheService) Recent(repoID string, limit int) ([]*models.CacheEntry, error) {
	return s.store.GetRecentByRepoID(repoID, limit)
}

// PurgeExpired removes entries past their TTL and returns how many went
func (s *CacheService) PurgeExpired() (int64, error) {
	return s.store.DeleteExpired(time.Now())
}
