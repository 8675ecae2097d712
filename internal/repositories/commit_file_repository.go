package repositories

import (
	"database/sql"

	"github.com/chronolens/chronolens/internal/models"
)

type CommitFileRepository struct {
	db *sql.DB
}

func NewCommitFileRepository(db *sql.DB) *CommitFileRepository {
	return &CommitFileRepository{db: db}
}

// GetByRepositoryID retrieves all file changes for a repository keyed by commit ID
func (r *CommitFileRepository) GetByRepositoryID(repositoryID string) (map[string][]*models.CommitFile, error) {
	query := `
		SELECT cf.id, cf.commit_id, cf.path, cf.old_path, cf.change_type, cf.additions, cf.deletions, cf.created_at
		FROM commit_files cf
		JOIN commits c ON c.id = cf.commit_id
		WHERE c.repository_id = ?
		ORDER BY c.commit_date ASC
	`

	rows, err := r.db.Query(query, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	files, err := r.scanRows(rows)
	if err != nil {
		return nil, err
	}

	byCommit := make(map[string][]*models.CommitFile)
	for _, file := range files {
		byCommit[file.CommitID] = append(byCommit[file.CommitID], file)
	}

	return byCommit, nil
}

func (r *CommitFileRepository) scanRows(rows *sql.Rows) ([]*models.CommitFile, error) {
	var files []*models.CommitFile
	for rows.Next() {
		file := &models.CommitFile{}
		err := rows.Scan(
			&file.ID, &file.CommitID, &file.Path, &file.OldPath,
			&file.ChangeType, &file.Additions, &file.Deletions, &file.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, rows.Err()
}
