package repositories

import (
	"database/sql"

	"github.com/chronolens/chronolens/internal/models"
)

type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

const snapshotColumns = `id, name, owner, url, status, last_commit_sha, total_commits,
	total_files, total_authors, truncated, error_message, last_analyzed_at, created_at, updated_at`

// Create creates a new repository snapshot
func (r *SnapshotRepository) Create(s *models.RepositorySnapshot) error {
	query := `
		INSERT INTO repositories (
			id, name, owner, url, status, last_commit_sha, total_commits,
			total_files, total_authors, truncated, error_message, last_analyzed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.Exec(query,
		s.ID, s.Name, s.Owner, s.URL, s.Status, s.LastCommitSHA, s.TotalCommits,
		s.TotalFiles, s.TotalAuthors, s.Truncated, s.ErrorMessage, s.LastAnalyzedAt,
	)

	return err
}

// GetByID retrieves a snapshot by ID
func (r *SnapshotRepository) GetByID(id string) (*models.RepositorySnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM repositories WHERE id = ?`
	return r.scanOne(r.db.QueryRow(query, id))
}

// GetByURL retrieves a snapshot by its repository URL
func (r *SnapshotRepository) GetByURL(url string) (*models.RepositorySnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM repositories WHERE url = ?`
	return r.scanOne(r.db.QueryRow(query, url))
}

// GetAll retrieves all snapshots, most recently updated first
func (r *SnapshotRepository) GetAll() ([]*models.RepositorySnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM repositories ORDER BY updated_at DESC`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []*models.RepositorySnapshot
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}

	return snapshots, rows.Err()
}

// Update replaces the stored snapshot fields
func (r *SnapshotRepository) Update(s *models.RepositorySnapshot) error {
	query := `
		UPDATE repositories SET
			name = ?, owner = ?, url = ?, status = ?, last_commit_sha = ?,
			total_commits = ?, total_files = ?, total_authors = ?, truncated = ?,
			error_message = ?, last_analyzed_at = ?, updated_at = ?
		WHERE id = ?
	`

	_, err := r.db.Exec(query,
		s.Name, s.Owner, s.URL, s.Status, s.LastCommitSHA,
		s.TotalCommits, s.TotalFiles, s.TotalAuthors, s.Truncated,
		s.ErrorMessage, s.LastAnalyzedAt, s.UpdatedAt,
		s.ID,
	)

	return err
}

// Delete deletes a snapshot by ID
func (r *SnapshotRepository) Delete(id string) error {
	query := `DELETE FROM repositories WHERE id = ?`
	_, err := r.db.Exec(query, id)
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *SnapshotRepository) scanOne(row *sql.Row) (*models.RepositorySnapshot, error) {
	return r.scanRow(row)
}

func (r *SnapshotRepository) scanRow(row rowScanner) (*models.RepositorySnapshot, error) {
	s := &models.RepositorySnapshot{}
	err := row.Scan(
		&s.ID, &s.Name, &s.Owner, &s.URL, &s.Status, &s.LastCommitSHA, &s.TotalCommits,
		&s.TotalFiles, &s.TotalAuthors, &s.Truncated, &s.ErrorMessage, &s.LastAnalyzedAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
