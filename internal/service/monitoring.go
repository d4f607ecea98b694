package service

import (
	"context"

	"kiln_controller/internal/models"
)

type MonitoringService struct {
	oven Oven
	runs *RunLog
}

// NewMonitoringService reads state from oven and the backlog from runs,
// which may be nil when nothing records one.
func NewMonitoringService(oven Oven, runs *RunLog) *MonitoringService {
	return &MonitoringService{oven: oven, runs: runs}
}

// GetState returns the current oven snapshot.
func (s *MonitoringService) GetState(ctx context.Context) (models.OvenStatus, error) {
	if err := ctx.Err(); err != nil {
		return models.OvenStatus{}, err
	}
	return s.oven.State(), nil
}

func (s *MonitoringService) Backlog(ctx context.Context) (models.Backlog, error) {
	if err := ctx.Err(); err != nil {
		return models.Backlog{}, err
	}
	if s.runs == nil {
		return models.Backlog{Log: []models.OvenStatus{}}, nil
	}
	return s.runs.Backlog(), nil
}

type SettingsService struct {
	ui models.UIConfig
}

func NewSettingsService(ui models.UIConfig) *SettingsService {
	return &SettingsService{ui: ui}
}

func (s *SettingsService) UIConfig(context.Context) models.UIConfig { return s.ui }
