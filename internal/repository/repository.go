package repository

import (
	"context"
	"database/sql"

	"kiln_controller/internal/models"
)

// Authorization stores users and their password hashes.
type Authorization interface {
	Create(ctx context.Context, username, hash string) (int, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	Count(ctx context.Context) (int, error)
}

// ProfileRepo stores schedule documents by name.
type ProfileRepo interface {
	Upsert(ctx context.Context, doc models.ScheduleDocument) error
	Get(ctx context.Context, name string) (*models.StoredSchedule, error)
	List(ctx context.Context) ([]models.StoredSchedule, error)
	Delete(ctx context.Context, name string) (bool, error)
}

type Repository struct {
	Profiles ProfileRepo
	Auth     Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		Profiles: NewProfileSQLite(db),
		Auth:     NewUserRepository(db),
	}
}
