package service

import (
	"context"
	"fmt"

	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
)

type KilnService struct {
	oven     Oven
	profiles Profiles
	log      *logger.Logger
}

func NewKilnService(oven Oven, profiles Profiles, log *logger.Logger) *KilnService {
	return &KilnService{oven: oven, profiles: profiles, log: log}
}

// Start loads the named profile from the catalog and runs it.
func (s *KilnService) Start(ctx context.Context, name string) (models.OvenStatus, error) {
	p, err := s.profiles.Load(ctx, name)
	if err != nil {
		return s.oven.State(), err
	}
	if err := s.oven.RunProfile(p); err != nil {
		return s.oven.State(), fmt.Errorf("run profile %q: %w", name, err)
	}
	return s.oven.State(), nil
}

func (s *KilnService) Abort(ctx context.Context) models.OvenStatus {
	s.oven.AbortRun()
	return s.oven.State()
}
