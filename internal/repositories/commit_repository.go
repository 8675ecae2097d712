package repositories

import (
	"database/sql"

	"github.com/chronolens/chronolens/internal/models"
)

type CommitRepository struct {
	db *sql.DB
}

func NewCommitRepository(db *sql.DB) *CommitRepository {
	return &CommitRepository{db: db}
}

// ReplaceHistory swaps the repository's persisted history in one
// transaction: the previous commits and their file rows go out and the new
// run's rows go in together, so readers never observe a half-replaced state.
func (r *CommitRepository) ReplaceHistory(repositoryID string, commits []*models.Commit) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec(`
		DELETE FROM commit_files WHERE commit_id IN (
			SELECT id FROM commits WHERE repository_id = ?
		)
	`, repositoryID); err != nil {
		tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`DELETE FROM commits WHERE repository_id = ?`, repositoryID); err != nil {
		tx.Rollback()
		return err
	}

	commitStmt, err := tx.Prepare(`
		INSERT INTO commits (
			id, repository_id, sha, message, author_name, author_email,
			identity_key, commit_date, is_merge_commit, additions, deletions
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer commitStmt.Close()

	fileStmt, err := tx.Prepare(`
		INSERT INTO commit_files (id, commit_id, path, old_path, change_type, additions, deletions)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer fileStmt.Close()

	for _, commit := range commits {
		if _, err := commitStmt.Exec(
			commit.ID, commit.RepositoryID, commit.SHA, commit.Message,
			commit.AuthorName, commit.AuthorEmail, commit.IdentityKey,
			commit.CommitDate, commit.IsMergeCommit, commit.Additions, commit.Deletions,
		); err != nil {
			tx.Rollback()
			return err
		}
		for _, file := range commit.Files {
			if _, err := fileStmt.Exec(
				file.ID, file.CommitID, file.Path, file.OldPath,
				file.ChangeType, file.Additions, file.Deletions,
			); err != nil {
				tx.Rollback()
				return err
			}
		}
	}

	return tx.Commit()
}

// GetByRepositoryID retrieves all commits for a repository, oldest first
func (r *CommitRepository) GetByRepositoryID(repositoryID string) ([]*models.Commit, error) {
	query := `
		SELECT id, repository_id, sha, message, author_name, author_email,
			   identity_key, commit_date, is_merge_commit, additions, deletions, created_at
		FROM commits WHERE repository_id = ?
		ORDER BY commit_date ASC
	`

	rows, err := r.db.Query(query, repositoryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commits []*models.Commit
	for rows.Next() {
		commit := &models.Commit{}
		err := rows.Scan(
			&commit.ID, &commit.RepositoryID, &commit.SHA, &commit.Message,
			&commit.AuthorName, &commit.AuthorEmail, &commit.IdentityKey,
			&commit.CommitDate, &commit.IsMergeCommit, &commit.Additions, &commit.Deletions,
			&commit.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		commits = append(commits, commit)
	}

	return commits, rows.Err()
}

// CountByRepositoryID counts the stored commits for a repository
func (r *CommitRepository) CountByRepositoryID(repositoryID string) (int, error) {
	query := `SELECT COUNT(*) FROM commits WHERE repository_id = ?`
	var count int
	err := r.db.QueryRow(query, repositoryID).Scan(&count)
	return count, err
}

