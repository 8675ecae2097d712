package repositories

import (
	"database/sql"
	"time"

	"github.com/chronolens/chronolens/internal/models"
)

type QueryCacheRepository struct {
	db *sql.DB
}

func NewQueryCacheRepository(db *sql.DB) *QueryCacheRepository {
	return &QueryCacheRepository{db: db}
}

// Upsert stores a cache entry, replacing any prior payload under the same key
func (r *QueryCacheRepository) Upsert(entry *models.CacheEntry) error {
	query := `
		INSERT INTO query_cache (id, key, repo_id, query_text, payload, hit_count, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			payload = excluded.payload,
			hit_count = 1,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`

	_, err := r.db.Exec(query,
		entry.ID, entry.Key, entry.RepoID, entry.QueryText, entry.Payload,
		entry.HitCount, entry.CreatedAt, entry.ExpiresAt,
	)

	return err
}

// GetByKey retrieves a cache entry by its content-hash key
func (r *QueryCacheRepository) GetByKey(key string) (*models.CacheEntry, error) {
	query := `
		SELECT id, key, repo_id, query_text, payload, hit_count, created_at, expires_at
		FROM query_cache WHERE key = ?
	`

	entry := &models.CacheEntry{}
	err := r.db.QueryRow(query, key).Scan(
		&entry.ID, &entry.Key, &entry.RepoID, &entry.QueryText, &entry.Payload,
		&entry.HitCount, &entry.CreatedAt, &entry.ExpiresAt,
	)

	if err != nil {
		return nil, err
	}

	return entry, nil
}

// IncrementHitCount bumps the hit counter for an entry
func (r *QueryCacheRepository) IncrementHitCount(key string) error {
	query := `UPDATE query_cache SET hit_count = hit_count + 1 WHERE key = ?`
	_, err := r.db.Exec(query, key)
	return err
}

// GetRecentByRepoID returns recent query entries for a repository
func (r *QueryCacheRepository) GetRecentByRepoID(repoID string, limit int) ([]*models.CacheEntry, error) {
	query := `
		SELECT id, key, repo_id, query_text, payload, hit_count, created_at, expires_at
		FROM query_cache WHERE repo_id = ?
		ORDER BY created_at DESC LIMIT ?
	`

	rows, err := r.db.Query(query, repoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.CacheEntry
	for rows.Next() {
		entry := &models.CacheEntry{}
		err := rows.Scan(
			&entry.ID, &entry.Key, &entry.RepoID, &entry.QueryText, &entry.Payload,
			&entry.HitCount, &entry.CreatedAt, &entry.ExpiresAt,
		)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// DeleteExpired removes entries whose TTL elapsed before the given instant
func (r *QueryCacheRepository) DeleteExpired(now time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM query_cache WHERE expires_at < ?`, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
