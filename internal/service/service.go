package service

import (
	"context"
	"time"

	"kiln_controller/internal/logger"
	"kiln_controller/internal/models"
	"kiln_controller/internal/repository"
	"kiln_controller/internal/schedule"
)

type Authorization interface {
	SignUp(ctx context.Context, username, password string) (int, error)
	GenerateToken(ctx context.Context, username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
	// Bootstrap creates the first user when none exist yet.
	Bootstrap(ctx context.Context, username, password string) (bool, error)
}

// Profiles manages the catalog of firing schedules.
type Profiles interface {
	List(ctx context.Context) ([]models.StoredSchedule, error)
	Get(ctx context.Context, name string) (*models.ProfileDetail, error)
	Save(ctx context.Context, doc models.ScheduleDocument) (*models.ProfileDetail, error)
	Delete(ctx context.Context, name string) error
	// Load builds a runnable schedule from the stored document.
	Load(ctx context.Context, name string) (schedule.Profile, error)
	ImportDir(ctx context.Context, dir string) (int, error)
}

// Monitoring exposes the oven snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.OvenStatus, error)
	// Backlog is the active run's history, empty while idle.
	Backlog(ctx context.Context) (models.Backlog, error)
}

// Settings serves the display configuration to dashboards.
type Settings interface {
	UIConfig(ctx context.Context) models.UIConfig
}

// Kiln starts and aborts runs. It is only wired to the local CLI.
type Kiln interface {
	Start(ctx context.Context, profile string) (models.OvenStatus, error)
	Abort(ctx context.Context) models.OvenStatus
}

// Oven is the part of the controller the services use.
type Oven interface {
	RunProfile(p schedule.Profile) error
	AbortRun()
	State() models.OvenStatus
}

type Service struct {
	Profiles
	Monitoring
	Kiln
	Authorization
	Settings
}

// Deps are the collaborators NewService wires together.
type Deps struct {
	Repos      *repository.Repository
	Oven       Oven
	RunLog     *RunLog
	UI         models.UIConfig
	Scale      schedule.Scale
	SigningKey string
	TokenTTL   time.Duration
	Log        *logger.Logger
}

func NewService(d Deps) *Service {
	if d.Log == nil {
		d.Log = logger.NewNop()
	}
	profiles := NewProfileService(d.Repos.Profiles, d.Scale, d.Log)
	return &Service{
		Profiles:      profiles,
		Monitoring:    NewMonitoringService(d.Oven, d.RunLog),
		Kiln:          NewKilnService(d.Oven, profiles, d.Log),
		Authorization: NewAuthService(d.Repos.Auth, d.SigningKey, d.TokenTTL),
		Settings:      NewSettingsService(d.UI),
	}
}
