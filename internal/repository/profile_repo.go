package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kiln_controller/internal/models"
)

type ProfileSQLite struct {
	db  *sql.DB
	now func() time.Time
}

func NewProfileSQLite(db *sql.DB) *ProfileSQLite {
	return &ProfileSQLite{db: db, now: time.Now}
}

var _ ProfileRepo = (*ProfileSQLite)(nil)

const (
	upsertProfileSQL = `
		INSERT INTO profiles (name, type, data, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			type=excluded.type,
			data=excluded.data,
			updated_at=excluded.updated_at
	`

	selectProfileSQL = `
		SELECT name, type, data, created_at, updated_at
		FROM profiles WHERE name=?
	`

	listProfilesSQL = `
		SELECT name, type, data, created_at, updated_at
		FROM profiles ORDER BY name ASC
	`

	deleteProfileSQL = `DELETE FROM profiles WHERE name=?`
)

// Upsert inserts doc or replaces the stored document with the same name.
// Data rows are kept as a JSON array.
func (r *ProfileSQLite) Upsert(ctx context.Context, doc models.ScheduleDocument) error {
	data, err := json.Marshal(doc.Data)
	if err != nil {
		return fmt.Errorf("marshal profile %q data: %w", doc.Name, err)
	}
	ts := r.now().UTC()
	if _, err := r.db.ExecContext(ctx, upsertProfileSQL, doc.Name, doc.Type, string(data), ts, ts); err != nil {
		return fmt.Errorf("upsert profile %q: %w", doc.Name, err)
	}
	return nil
}

// Get returns (nil, nil) when no profile has that name.
func (r *ProfileSQLite) Get(ctx context.Context, name string) (*models.StoredSchedule, error) {
	s, err := scanProfile(r.db.QueryRowContext(ctx, selectProfileSQL, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select profile %q: %w", name, err)
	}
	return &s, nil
}

func (r *ProfileSQLite) List(ctx context.Context) ([]models.StoredSchedule, error) {
	rows, err := r.db.QueryContext(ctx, listProfilesSQL)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := make([]models.StoredSchedule, 0)
	for rows.Next() {
		s, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// Delete reports whether a profile was removed.
func (r *ProfileSQLite) Delete(ctx context.Context, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, deleteProfileSQL, name)
	if err != nil {
		return false, fmt.Errorf("delete profile %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete profile %q: %w", name, err)
	}
	return n > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (models.StoredSchedule, error) {
	var (
		s    models.StoredSchedule
		data string
	)
	if err := row.Scan(&s.Name, &s.Type, &data, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return models.StoredSchedule{}, err
	}
	if err := json.Unmarshal([]byte(data), &s.Data); err != nil {
		return models.StoredSchedule{}, fmt.Errorf("decode profile %q data: %w", s.Name, err)
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return s, nil
}
