package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const projectColumns = `id, user_id, repository_id, owner, name, default_branch, status, accessible,
    file_tree, error_message, created_at, updated_at`

func scanProject(row interface{ Scan(...any) error }) (Project, error) {
	var i Project
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.RepositoryID,
		&i.Owner,
		&i.Name,
		&i.DefaultBranch,
		&i.Status,
		&i.Accessible,
		&i.FileTree,
		&i.ErrorMessage,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getProject = `-- name: GetProject :one
SELECT ` + projectColumns + `
FROM projects
WHERE id = $1
`

func (q *Queries) GetProject(ctx context.Context, id string) (Project, error) {
	row := q.db.QueryRow(ctx, getProject, id)
	return scanProject(row)
}

const listProjectsByUser = `-- name: ListProjectsByUser :many
SELECT ` + projectColumns + `
FROM projects
WHERE user_id = $1
ORDER BY created_at DESC
`

func (q *Queries) ListProjectsByUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := q.db.Query(ctx, listProjectsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Project
	for rows.Next() {
		i, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const upsertProject = `-- name: UpsertProject :exec
INSERT INTO projects (
    id, user_id, repository_id, owner, name, default_branch, status, accessible,
    file_tree, error_message, created_at, updated_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
)
ON CONFLICT (id) DO UPDATE SET
    default_branch = EXCLUDED.default_branch,
    status         = EXCLUDED.status,
    accessible     = EXCLUDED.accessible,
    file_tree      = EXCLUDED.file_tree,
    error_message  = EXCLUDED.error_message,
    updated_at     = EXCLUDED.updated_at
`

type UpsertProjectParams struct {
	ID            string
	UserID        string
	RepositoryID  string
	Owner         string
	Name          string
	DefaultBranch string
	Status        string
	Accessible    bool
	FileTree      []byte
	ErrorMessage  string
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

func (q *Queries) UpsertProject(ctx context.Context, arg UpsertProjectParams) error {
	_, err := q.db.Exec(ctx, upsertProject,
		arg.ID,
		arg.UserID,
		arg.RepositoryID,
		arg.Owner,
		arg.Name,
		arg.DefaultBranch,
		arg.Status,
		arg.Accessible,
		arg.FileTree,
		arg.ErrorMessage,
		arg.CreatedAt,
		arg.UpdatedAt,
	)
	return err
}

const deleteProject = `-- name: DeleteProject :execrows
DELETE FROM projects
WHERE id = $1
`

func (q *Queries) DeleteProject(ctx context.Context, id string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteProject, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
