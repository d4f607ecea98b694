package handlers

import (
	"context"
	"fmt"
	"sync"

	"kiln_controller/internal/models"
	"kiln_controller/internal/schedule"
	"kiln_controller/internal/service"
)

// Test doubles for the service layer. They live beside the handlers so
// every handler test can share them.

type mockAuth struct {
	signUpID    int
	signUpErr   error
	token       string
	genTokenErr error
	parseID     int
	parseErr    error

	lastSignUpUsername string
	lastGenUsername    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(_ context.Context, username, _ string) (int, error) {
	m.lastSignUpUsername = username
	return m.signUpID, m.signUpErr
}

func (m *mockAuth) GenerateToken(_ context.Context, username, _ string) (string, error) {
	m.lastGenUsername = username
	return m.token, m.genTokenErr
}

func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

func (m *mockAuth) Bootstrap(context.Context, string, string) (bool, error) {
	return false, nil
}

type mockProfiles struct {
	list    []models.StoredSchedule
	details map[string]*models.ProfileDetail
	saveErr error
	listErr error

	saved   []models.ScheduleDocument
	deleted []string
}

func (m *mockProfiles) List(context.Context) ([]models.StoredSchedule, error) {
	return m.list, m.listErr
}

func (m *mockProfiles) Get(_ context.Context, name string) (*models.ProfileDetail, error) {
	d, ok := m.details[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", service.ErrProfileNotFound, name)
	}
	return d, nil
}

func (m *mockProfiles) Save(_ context.Context, doc models.ScheduleDocument) (*models.ProfileDetail, error) {
	if m.saveErr != nil {
		return nil, m.saveErr
	}
	m.saved = append(m.saved, doc)
	return &models.ProfileDetail{StoredSchedule: models.StoredSchedule{ScheduleDocument: doc}}, nil
}

func (m *mockProfiles) Delete(_ context.Context, name string) error {
	if _, ok := m.details[name]; !ok {
		return fmt.Errorf("%w: %q", service.ErrProfileNotFound, name)
	}
	m.deleted = append(m.deleted, name)
	return nil
}

func (m *mockProfiles) Load(context.Context, string) (schedule.Profile, error) {
	return nil, fmt.Errorf("not used by handlers")
}

func (m *mockProfiles) ImportDir(context.Context, string) (int, error) {
	return 0, nil
}

// mockMonitoring returns states in order and then repeats the last one.
type mockMonitoring struct {
	mu         sync.Mutex
	states     []models.OvenStatus
	err        error
	calls      int
	backlog    models.Backlog
	backlogErr error
}

func (m *mockMonitoring) Backlog(context.Context) (models.Backlog, error) {
	if m.backlogErr != nil {
		return models.Backlog{}, m.backlogErr
	}
	if m.backlog.Log == nil {
		return models.Backlog{Log: []models.OvenStatus{}}, nil
	}
	return m.backlog, nil
}

func (m *mockMonitoring) GetState(context.Context) (models.OvenStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return models.OvenStatus{}, m.err
	}
	if len(m.states) == 0 {
		return models.OvenStatus{State: "IDLE"}, nil
	}
	st := m.states[0]
	if len(m.states) > 1 {
		m.states = m.states[1:]
	}
	return st, nil
}

func (m *mockMonitoring) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockSettings struct {
	ui models.UIConfig
}

func (m mockSettings) UIConfig(context.Context) models.UIConfig { return m.ui }
