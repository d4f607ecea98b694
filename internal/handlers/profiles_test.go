package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kiln_controller/internal/models"
	"kiln_controller/internal/schedule"
	"kiln_controller/internal/service"
)

func newCatalog() *mockProfiles {
	doc := models.ScheduleDocument{Name: "bisque", Type: models.ScheduleWaypoint, Data: [][]float64{{0, 20}, {3600, 600}}}
	return &mockProfiles{
		list: []models.StoredSchedule{{ScheduleDocument: doc}},
		details: map[string]*models.ProfileDetail{
			"bisque": {
				StoredSchedule: models.StoredSchedule{ScheduleDocument: doc},
				Duration:       3600,
				Points:         doc.Data,
			},
		},
	}
}

func TestProfiles_PublicReads(t *testing.T) {
	r := newTestRouter(&service.Service{Profiles: newCatalog()})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", w.Code, w.Body.String())
	}
	var list []models.StoredSchedule
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(list) != 1 || list[0].Name != "bisque" {
		t.Fatalf("unexpected list: %+v", list)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/bisque", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status=%d body=%s", w.Code, w.Body.String())
	}
	var d models.ProfileDetail
	if err := json.Unmarshal(w.Body.Bytes(), &d); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if d.Duration != 3600 || len(d.Points) != 2 || d.Type != "profile" {
		t.Fatalf("unexpected detail: %+v", d)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles/glaze", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown profile, got %d", w.Code)
	}
}

func TestProfiles_ListFailure(t *testing.T) {
	cat := newCatalog()
	cat.listErr = errors.New("db closed")
	r := newTestRouter(&service.Service{Profiles: cat})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestProfiles_SaveRequiresToken(t *testing.T) {
	cat := newCatalog()
	r := newTestRouter(&service.Service{Profiles: cat, Authorization: &mockAuth{parseErr: errors.New("no")}})

	w := postJSON(t, r, "/api/v1/profiles", `{"name":"x","type":"profile","data":[[0,20],[60,100]]}`, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
	if len(cat.saved) != 0 {
		t.Fatal("Save must not be reached without a token")
	}
}

func TestProfiles_Save(t *testing.T) {
	cat := newCatalog()
	r := newTestRouter(&service.Service{Profiles: cat, Authorization: &mockAuth{parseID: 1}})

	w := postJSON(t, r, "/api/v1/profiles", `{"name":"glaze","type":"ramp-hold","data":[[100,1000,10]]}`, "tok")
	if w.Code != http.StatusCreated {
		t.Fatalf("save status=%d body=%s", w.Code, w.Body.String())
	}
	if len(cat.saved) != 1 || cat.saved[0].Name != "glaze" || cat.saved[0].Type != models.ScheduleRampHold {
		t.Fatalf("unexpected saved docs: %+v", cat.saved)
	}

	cat.saveErr = fmt.Errorf("%w: rows must be sorted", schedule.ErrMalformed)
	w = postJSON(t, r, "/api/v1/profiles", `{"name":"bad","type":"profile","data":[[60,20],[0,100]]}`, "tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed schedule, got %d", w.Code)
	}

	w = postJSON(t, r, "/api/v1/profiles", `not json`, "tok")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestProfiles_Delete(t *testing.T) {
	cat := newCatalog()
	r := newTestRouter(&service.Service{Profiles: cat, Authorization: &mockAuth{parseID: 1}})

	del := func(name string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/profiles/"+name, nil)
		req.Header.Set("Authorization", "Bearer tok")
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := del("bisque"); code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", code)
	}
	if len(cat.deleted) != 1 || cat.deleted[0] != "bisque" {
		t.Fatalf("unexpected deletes: %v", cat.deleted)
	}
	if code := del("missing"); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
}
