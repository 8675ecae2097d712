package models

import (
	"time"

	"github.com/google/uuid"
)

// CacheEntry is one memoized payload. The key is a content hash over
// repository id + analyzed commit id + normalized query parameters, so a new
// analysis invalidates prior entries implicitly through key mismatch.
type CacheEntry struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	RepoID    string    `json:"repo_id"`
	QueryText string    `json:"query_text"`
	Payload   string    `json:"payload"`
	HitCount  int       `json:"hit_count"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewCacheEntry creates a cache entry with a generated UUID
func NewCacheEntry(key, repoID, queryText, payload string, ttl time.Duration) *CacheEntry {
	now := time.Now()
	return &CacheEntry{
		ID:        uuid.New().String(),
		Key:       key,
		RepoID:    repoID,
		QueryText: queryText,
		Payload:   payload,
		HitCount:  1,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
}

// IsExpired checks the entry against the given instant
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}
