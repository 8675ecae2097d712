package services

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolens/chronolens/internal/models"
)

type memoryCacheStore struct {
	mu      sync.Mutex
	entries map[string]*models.CacheEntry
}

func newMemoryCacheStore() *memoryCacheStore {
	return &memoryCacheStore{entries: make(map[string]*models.CacheEntry)}
}

func (m *memoryCacheStore) Upsert(entry *models.CacheEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.Key] = entry
	return nil
}

func (m *memoryCacheStore) GetByKey(key string) (*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *entry
	return &copied, nil
}

func (m *memoryCacheStore) IncrementHitCount(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.entries[key]; ok {
		entry.HitCount++
	}
	return nil
}

func (m *memoryCacheStore) GetRecentByRepoID(repoID string, limit int) ([]*models.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*models.CacheEntry
	for _, entry := range m.entries {
		if entry.RepoID == repoID && len(result) < limit {
			copied := *entry
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (m *memoryCacheStore) DeleteExpired(now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for key, entry := range m.entries {
		if entry.IsExpired(now) {
			delete(m.entries, key)
			n++
		}
	}
	return n, nil
}

func TestCacheGetOrComputeMissThenHit(t *testing.T) {
	store := newMemoryCacheStore()
	service := NewCacheService(store, time.Hour)
	key := service.DeriveKey("repo-1", "abc123", "who wrote main.go")

	calls := 0
	compute := func() (string, error) {
		calls++
		return "alice did", nil
	}

	payload, cached, err := service.GetOrCompute(key, "repo-1", "who wrote main.go", compute)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "alice did", payload)
	assert.Equal(t, 1, calls)

	payload, cached, err = service.GetOrCompute(key, "repo-1", "who wrote main.go", compute)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "alice did", payload)
	assert.Equal(t, 1, calls, "hit must not recompute")

	entry, err := store.GetByKey(key)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.HitCount)
}

func TestCacheKeyDerivationIsIdempotent(t *testing.T) {
	service := NewCacheService(newMemoryCacheStore(), time.Hour)

	a := service.DeriveKey("repo-1", "abc123", "Who   wrote MAIN.go")
	b := service.DeriveKey("repo-1", "abc123", "who wrote main.go")
	assert.Equal(t, a, b, "normalized queries share a key")

	// a new analyzed commit invalidates by key mismatch
	c := service.DeriveKey("repo-1", "def456", "who wrote main.go")
	assert.NotEqual(t, a, c)

	d := service.DeriveKey("repo-2", "abc123", "who wrote main.go")
	assert.NotEqual(t, a, d)
}

func TestCacheExpiredEntryMisses(t *testing.T) {
	store := newMemoryCacheStore()
	service := NewCacheService(store, time.Hour)
	key := service.DeriveKey("repo-1", "abc123", "query")

	entry := models.NewCacheEntry(key, "repo-1", "query", "stale", -time.Minute)
	require.NoError(t, store.Upsert(entry))

	payload, cached, err := service.GetOrCompute(key, "repo-1", "query", func() (string, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "fresh", payload)
}

func TestCacheConcurrentCallersComputeOnce(t *testing.T) {
	store := newMemoryCacheStore()
	service := NewCacheService(store, time.Hour)
	key := service.DeriveKey("repo-1", "abc123", "expensive question")

	var calls int32
	release := make(chan struct{})
	compute := func() (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "answer", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload, _, err := service.GetOrCompute(key, "repo-1", "expensive question", compute)
			assert.NoError(t, err)
			results[i] = payload
		}(i)
	}

	// Let the racers pile up on the flight before releasing the compute.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, payload := range results {
		assert.Equal(t, "answer", payload)
	}
}

// missOnceStore reports a miss on the first GetByKey, then delegates. It
// models a racer storing the entry between the outer lookup and the flight's
// re-check.
type missOnceStore struct {
	*memoryCacheStore
	missed bool
}

func (s *missOnceStore) GetByKey(key string) (*models.CacheEntry, error) {
	if !s.missed {
		s.missed = true
		return nil, sql.ErrNoRows
	}
	return s.memoryCacheStore.GetByKey(key)
}

func TestCacheFlightRecheckReportsCached(t *testing.T) {
	inner := newMemoryCacheStore()
	store := &missOnceStore{memoryCacheStore: inner}
	service := NewCacheService(store, time.Hour)
	key := service.DeriveKey("repo-1", "abc123", "query")

	require.NoError(t, inner.Upsert(models.NewCacheEntry(key, "repo-1", "query", "stored by racer", time.Hour)))

	payload, cached, err := service.GetOrCompute(key, "repo-1", "query", func() (string, error) {
		t.Fatal("re-check hit must not recompute")
		return "", nil
	})
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, "stored by racer", payload)
}

func TestCacheComputeErrorIsNotStored(t *testing.T) {
	store := newMemoryCacheStore()
	service := NewCacheService(store, time.Hour)
	key := service.DeriveKey("repo-1", "abc123", "query")

	_, _, err := service.GetOrCompute(key, "repo-1", "query", func() (string, error) {
		return "", assert.AnError
	})
	require.Error(t, err)

	_, err = store.GetByKey(key)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestCachePurgeExpired(t *testing.T) {
	store := newMemoryCacheStore()
	service := NewCacheService(store, time.Hour)

	require.NoError(t, store.Upsert(models.NewCacheEntry("k1", "repo-1", "q1", "p1", -time.Minute)))
	require.NoError(t, store.Upsert(models.NewCacheEntry("k2", "repo-1", "q2", "p2", time.Hour)))

	purged, err := service.PurgeExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)
}
