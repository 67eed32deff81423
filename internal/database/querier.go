package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type Querier interface {
	ClearUserProfile(ctx context.Context, id string) error
	DeleteCachedFilesByProject(ctx context.Context, projectID string) (int64, error)
	DeleteProject(ctx context.Context, id string) (int64, error)
	GetCachedFile(ctx context.Context, arg GetCachedFileParams) (CachedFile, error)
	GetProject(ctx context.Context, id string) (Project, error)
	GetUser(ctx context.Context, id string) (User, error)
	ListCachedFilesByProject(ctx context.Context, projectID string) ([]CachedFile, error)
	ListExpiringCredentials(ctx context.Context, before pgtype.Timestamptz) ([]User, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]Project, error)
	TouchCachedFile(ctx context.Context, arg TouchCachedFileParams) (int64, error)
	UpsertCachedFile(ctx context.Context, arg UpsertCachedFileParams) error
	UpsertProject(ctx context.Context, arg UpsertProjectParams) error
	UpsertUserCredential(ctx context.Context, arg UpsertUserCredentialParams) error
	UpsertUserProfile(ctx context.Context, arg UpsertUserProfileParams) error
}

var _ Querier = (*Queries)(nil)
