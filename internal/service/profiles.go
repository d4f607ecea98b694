package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
	"kiln_controller/internal/repository"
	"kiln_controller/internal/schedule"
)

var ErrProfileNotFound = errors.New("profile not found")

type ProfileService struct {
	repo  repository.ProfileRepo
	scale schedule.Scale
	log   *logger.Logger
}

func NewProfileService(repo repository.ProfileRepo, scale schedule.Scale, log *logger.Logger) *ProfileService {
	return &ProfileService{repo: repo, scale: scale, log: log}
}

func (s *ProfileService) List(ctx context.Context) ([]models.StoredSchedule, error) {
	return s.repo.List(ctx)
}

// Get returns the stored document with its duration and graph points.
func (s *ProfileService) Get(ctx context.Context, name string) (*models.ProfileDetail, error) {
	stored, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	p, err := schedule.Parse(stored.ScheduleDocument, s.scale)
	if err != nil {
		return nil, fmt.Errorf("stored profile %q: %w", name, err)
	}
	return detail(*stored, p), nil
}

// Save validates doc and stores it, replacing a profile of the same name.
// Invalid documents are rejected with schedule.ErrMalformed.
func (s *ProfileService) Save(ctx context.Context, doc models.ScheduleDocument) (*models.ProfileDetail, error) {
	p, err := schedule.Parse(doc, s.scale)
	if err != nil {
		return nil, err
	}
	doc = p.Document()
	if err := s.repo.Upsert(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Infow("profile_saved", "profile", doc.Name, "type", doc.Type, "duration_s", p.Duration())
	return detail(models.StoredSchedule{ScheduleDocument: doc}, p), nil
}

func (s *ProfileService) Delete(ctx context.Context, name string) error {
	ok, err := s.repo.Delete(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	s.log.Infow("profile_deleted", "profile", name)
	return nil
}

func (s *ProfileService) Load(ctx context.Context, name string) (schedule.Profile, error) {
	stored, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}
	return schedule.Parse(stored.ScheduleDocument, s.scale)
}

// ImportDir stores every valid *.json, *.yaml and *.yml schedule found in
// dir. Invalid files are logged and skipped. A missing dir imports nothing.
func (s *ProfileService) ImportDir(ctx context.Context, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("read profiles dir %q: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	imported := 0
	for _, e := range entries {
		if e.IsDir() || !isScheduleFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		p, err := schedule.ParseFile(path, s.scale)
		if err != nil {
			s.log.Warnw("profile_import_skipped", "file", path, "error", err)
			continue
		}
		if err := s.repo.Upsert(ctx, p.Document()); err != nil {
			return imported, err
		}
		imported++
	}
	s.log.Infow("profiles_imported", "dir", dir, "count", imported)
	return imported, nil
}

func isScheduleFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func detail(stored models.StoredSchedule, p schedule.Profile) *models.ProfileDetail {
	d := &models.ProfileDetail{StoredSchedule: stored, Duration: p.Duration()}
	switch v := p.(type) {
	case *schedule.RampHold:
		d.Points = v.Projection()
	case *schedule.Waypoint:
		d.Points = v.Points()
	}
	return d
}
