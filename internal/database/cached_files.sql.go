package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const cachedFileColumns = `project_id, path, content, size, content_hash, last_updated, last_accessed`

func scanCachedFile(row interface{ Scan(...any) error }) (CachedFile, error) {
	var i CachedFile
	err := row.Scan(
		&i.ProjectID,
		&i.Path,
		&i.Content,
		&i.Size,
		&i.ContentHash,
		&i.LastUpdated,
		&i.LastAccessed,
	)
	return i, err
}

const getCachedFile = `-- name: GetCachedFile :one
SELECT ` + cachedFileColumns + `
FROM cached_files
WHERE project_id = $1 AND path = $2
`

type GetCachedFileParams struct {
	ProjectID string
	Path      string
}

func (q *Queries) GetCachedFile(ctx context.Context, arg GetCachedFileParams) (CachedFile, error) {
	row := q.db.QueryRow(ctx, getCachedFile, arg.ProjectID, arg.Path)
	return scanCachedFile(row)
}

const listCachedFilesByProject = `-- name: ListCachedFilesByProject :many
SELECT ` + cachedFileColumns + `
FROM cached_files
WHERE project_id = $1
ORDER BY path
`

func (q *Queries) ListCachedFilesByProject(ctx context.Context, projectID string) ([]CachedFile, error) {
	rows, err := q.db.Query(ctx, listCachedFilesByProject, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CachedFile
	for rows.Next() {
		i, err := scanCachedFile(rows)
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

const upsertCachedFile = `-- name: UpsertCachedFile :exec
INSERT INTO cached_files (
    project_id, path, content, size, content_hash, last_updated, last_accessed
) VALUES (
    $1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (project_id, path) DO UPDATE SET
    content       = EXCLUDED.content,
    size          = EXCLUDED.size,
    content_hash  = EXCLUDED.content_hash,
    last_updated  = EXCLUDED.last_updated,
    last_accessed = EXCLUDED.last_accessed
`

type UpsertCachedFileParams struct {
	ProjectID    string
	Path         string
	Content      string
	Size         pgtype.Int8
	ContentHash  string
	LastUpdated  pgtype.Timestamptz
	LastAccessed pgtype.Timestamptz
}

func (q *Queries) UpsertCachedFile(ctx context.Context, arg UpsertCachedFileParams) error {
	_, err := q.db.Exec(ctx, upsertCachedFile,
		arg.ProjectID,
		arg.Path,
		arg.Content,
		arg.Size,
		arg.ContentHash,
		arg.LastUpdated,
		arg.LastAccessed,
	)
	return err
}

const touchCachedFile = `-- name: TouchCachedFile :execrows
UPDATE cached_files
SET last_accessed = $3
WHERE project_id = $1 AND path = $2
`

type TouchCachedFileParams struct {
	ProjectID    string
	Path         string
	LastAccessed pgtype.Timestamptz
}

func (q *Queries) TouchCachedFile(ctx context.Context, arg TouchCachedFileParams) (int64, error) {
	result, err := q.db.Exec(ctx, touchCachedFile, arg.ProjectID, arg.Path, arg.LastAccessed)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const deleteCachedFilesByProject = `-- name: DeleteCachedFilesByProject :execrows
DELETE FROM cached_files
WHERE project_id = $1
`

func (q *Queries) DeleteCachedFilesByProject(ctx context.Context, projectID string) (int64, error) {
	result, err := q.db.Exec(ctx, deleteCachedFilesByProject, projectID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
