package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskboard-api/calendar"
	"taskboard-api/depgraph"
	"taskboard-api/domain"
	"taskboard-api/notify"
	"taskboard-api/storage"
	"taskboard-api/taskstore"
)

type stubAuth struct{}

func (stubAuth) UserIDFromAuthHeader(string) (string, error) { return "user", nil }

type deniedAuth struct{}

func (deniedAuth) UserIDFromAuthHeader(string) (string, error) {
	return "", errMissingAuthorization
}

type mockTasks struct {
	tasks   []domain.Task
	created domain.Task
	err     error

	lastCreate taskstore.CreateRequest
	lastPatch  domain.TaskUpdate
	lastMove   domain.Status
	lastDep    [2]string
	updates    int
}

func (m *mockTasks) List(context.Context, string) ([]domain.Task, error) {
	return m.tasks, m.err
}

func (m *mockTasks) Get(_ context.Context, _ string, id string) (domain.Task, error) {
	for _, t := range m.tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return domain.Task{}, storage.ErrNotFound
}

func (m *mockTasks) Create(_ context.Context, _ string, req taskstore.CreateRequest) (domain.Task, error) {
	m.lastCreate = req
	return m.created, m.err
}

func (m *mockTasks) Update(_ context.Context, _, _ string, patch domain.TaskUpdate) (domain.Task, error) {
	m.updates++
	m.lastPatch = patch
	return m.created, m.err
}

func (m *mockTasks) Move(_ context.Context, _, _ string, status domain.Status) (domain.Task, error) {
	m.lastMove = status
	return m.created, m.err
}

func (m *mockTasks) Delete(context.Context, string, string) error { return m.err }

func (m *mockTasks) AddDependency(_ context.Context, _, taskID, depID string) error {
	m.lastDep = [2]string{taskID, depID}
	return m.err
}

func (m *mockTasks) RemoveDependency(context.Context, string, string, string) error {
	return m.err
}

type mockCategories struct {
	categories []domain.Category
	err        error
}

func (m *mockCategories) List(context.Context, string) ([]domain.Category, error) {
	return m.categories, m.err
}

func (m *mockCategories) Create(_ context.Context, _, name, color string) (domain.Category, error) {
	if m.err != nil {
		return domain.Category{}, m.err
	}
	return domain.Category{ID: "cat-1", Name: name, Color: color}, nil
}

func (m *mockCategories) Update(_ context.Context, _ string, cat domain.Category) (domain.Category, error) {
	return cat, m.err
}

func (m *mockCategories) Delete(context.Context, string, string) error { return m.err }

type mockProfiles struct {
	profile domain.UserProfile
	saved   *domain.UserProfile
}

func (m *mockProfiles) GetProfile(context.Context, string) (domain.UserProfile, error) {
	return m.profile, nil
}

func (m *mockProfiles) UpsertProfile(_ context.Context, p domain.UserProfile) error {
	m.saved = &p
	return nil
}

type mockCalendar struct {
	status calendar.Status
	result calendar.SyncResult
	err    error
}

func (m *mockCalendar) BeginConnect(context.Context, string) (calendar.Authorization, error) {
	return calendar.Authorization{URL: "https://login.example.com/authorize?x=1", State: "s"}, m.err
}
func (m *mockCalendar) CompleteConnect(context.Context, string, string, string) error { return m.err }
func (m *mockCalendar) EnableSync(context.Context, string) error                      { return m.err }
func (m *mockCalendar) DisableSync(context.Context, string) error                     { return m.err }
func (m *mockCalendar) Sync(context.Context, string) (calendar.SyncResult, error) {
	return m.result, m.err
}
func (m *mockCalendar) Disconnect(context.Context, string) error { return m.err }
func (m *mockCalendar) Status(context.Context, string) (calendar.Status, error) {
	return m.status, m.err
}

type mockInviter struct {
	success, failure int
	gotAttendees     []string
}

func (m *mockInviter) SendMeetingInvites(_ context.Context, attendees []string, _ notify.MeetingDetails) (int, int) {
	m.gotAttendees = attendees
	return m.success, m.failure
}

func testDeps() Deps {
	return Deps{
		Tasks:      &mockTasks{},
		Categories: &mockCategories{},
		Profiles:   &mockProfiles{},
		Calendar:   &mockCalendar{},
		Auth:       stubAuth{},
		Logger:     log.New(),
	}
}

func doRequest(t *testing.T, handler echo.HandlerFunc, method, target, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderAuthorization, "Bearer a.b.c")
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if len(params) > 0 {
		names := make([]string, 0, len(params)/2)
		values := make([]string, 0, len(params)/2)
		for i := 0; i+1 < len(params); i += 2 {
			names = append(names, params[i])
			values = append(values, params[i+1])
		}
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func TestListTasks(t *testing.T) {
	d := testDeps()
	d.Tasks = &mockTasks{tasks: []domain.Task{{ID: "1", Title: "t"}}}

	rec := doRequest(t, listTasks(d), http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var resp tasksResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Tasks) != 1 || resp.Tasks[0].ID != "1" {
		t.Fatalf("unexpected tasks: %#v", resp.Tasks)
	}
}

func TestListTasksUnauthorized(t *testing.T) {
	d := testDeps()
	d.Auth = deniedAuth{}

	rec := doRequest(t, listTasks(d), http.MethodGet, "/api/tasks", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
}

func TestCreateTask(t *testing.T) {
	d := testDeps()
	tasks := &mockTasks{created: domain.Task{ID: "t1", Title: "write report"}}
	d.Tasks = tasks

	body := `{"title":"write report","priority":"high","dependencies":["t0"]}`
	rec := doRequest(t, createTask(d), http.MethodPost, "/api/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	if tasks.lastCreate.Title != "write report" || len(tasks.lastCreate.Dependencies) != 1 {
		t.Fatalf("request not forwarded: %+v", tasks.lastCreate)
	}
	var resp createTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Task.ID != "t1" || resp.Invites != nil {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestCreateTaskUnknownFieldRejected(t *testing.T) {
	d := testDeps()

	rec := doRequest(t, createTask(d), http.MethodPost, "/api/tasks", `{"title":"x","bogus":1}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestCreateMeetingReportsInviteCounts(t *testing.T) {
	d := testDeps()
	d.Tasks = &mockTasks{created: domain.Task{
		ID:        "t1",
		Title:     "kickoff",
		EventType: domain.EventTypeMeeting,
		StartTime: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC),
		Attendees: []string{"a@example.com", "bounce@example.com", "b@example.com"},
	}}
	inviter := &mockInviter{success: 2, failure: 1}
	d.Inviter = inviter

	body := `{"title":"kickoff","eventType":"meeting","attendees":["a@example.com","bounce@example.com","b@example.com"]}`
	rec := doRequest(t, createTask(d), http.MethodPost, "/api/tasks", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d: %s", rec.Code, rec.Body.String())
	}
	var resp createTaskResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp.Invites == nil || resp.Invites.Sent != 2 || resp.Invites.Failed != 1 {
		t.Fatalf("unexpected invite summary: %+v", resp.Invites)
	}
	if len(inviter.gotAttendees) != 3 {
		t.Fatalf("attendees not forwarded: %v", inviter.gotAttendees)
	}
}

func TestCreateTaskCycleIsConflict(t *testing.T) {
	d := testDeps()
	d.Tasks = &mockTasks{err: &depgraph.ValidationError{
		Kind: depgraph.KindCircular, TaskID: "a", OtherID: "b",
	}}

	rec := doRequest(t, createTask(d), http.MethodPost, "/api/tasks", `{"title":"x"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "circular dependency") {
		t.Fatalf("expected specific message, got %q", rec.Body.String())
	}
}

func TestMoveTaskCompletionGated(t *testing.T) {
	d := testDeps()
	tasks := &mockTasks{err: &depgraph.ValidationError{
		Kind: depgraph.KindDependenciesOpen, TaskID: "t1", OtherID: "t0",
	}}
	d.Tasks = tasks

	rec := doRequest(t, moveTask(d), http.MethodPost, "/api/tasks/t1/move", `{"status":"completed"}`, "id", "t1")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
	if tasks.lastMove != domain.StatusCompleted {
		t.Fatalf("status not forwarded: %v", tasks.lastMove)
	}
	if !strings.Contains(rec.Body.String(), "not completed") {
		t.Fatalf("expected gating message, got %q", rec.Body.String())
	}
}

func TestDeleteTaskWithDependents(t *testing.T) {
	d := testDeps()
	d.Tasks = &mockTasks{err: &depgraph.ValidationError{
		Kind: depgraph.KindHasDependents, TaskID: "t0", OtherID: "t1",
	}}

	rec := doRequest(t, deleteTask(d), http.MethodDelete, "/api/tasks/t0", "", "id", "t0")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestAddDependencyUnknownTask(t *testing.T) {
	d := testDeps()
	d.Tasks = &mockTasks{err: &depgraph.ValidationError{
		Kind: depgraph.KindUnknownTask, TaskID: "nope",
	}}

	rec := doRequest(t, addDependency(d), http.MethodPost, "/api/tasks/t1/dependencies", `{"dependencyId":"nope"}`, "id", "t1")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestUpdateTaskNotFound(t *testing.T) {
	d := testDeps()
	d.Tasks = &mockTasks{err: storage.ErrNotFound}

	rec := doRequest(t, updateTask(d), http.MethodPatch, "/api/tasks/missing", `{"title":"x"}`, "id", "missing")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 got %d", rec.Code)
	}
}

func TestUpdateTaskForwardsPatch(t *testing.T) {
	d := testDeps()
	tasks := &mockTasks{created: domain.Task{ID: "t1", Title: "renamed"}}
	d.Tasks = tasks

	rec := doRequest(t, updateTask(d), http.MethodPatch, "/api/tasks/t1", `{"title":"renamed","status":"in-progress"}`, "id", "t1")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if tasks.lastPatch.Title == nil || *tasks.lastPatch.Title != "renamed" {
		t.Fatalf("title not forwarded: %+v", tasks.lastPatch)
	}
	if tasks.lastPatch.Status == nil || *tasks.lastPatch.Status != domain.StatusInProgress {
		t.Fatalf("status not forwarded: %+v", tasks.lastPatch)
	}
	if tasks.lastPatch.DueDate != nil {
		t.Fatalf("absent field must stay nil: %+v", tasks.lastPatch)
	}
}

func TestUpdateTaskEmptyPatch(t *testing.T) {
	d := testDeps()
	tasks := &mockTasks{}
	d.Tasks = tasks

	rec := doRequest(t, updateTask(d), http.MethodPatch, "/api/tasks/t1", `{}`, "id", "t1")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
	if tasks.updates != 0 {
		t.Fatalf("empty patch must not reach the store, got %d updates", tasks.updates)
	}
}

func TestCreateCategory(t *testing.T) {
	d := testDeps()

	rec := doRequest(t, createCategory(d), http.MethodPost, "/api/categories", `{"name":"Work","color":"#333"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201 got %d", rec.Code)
	}
	var cat domain.Category
	if err := sonic.Unmarshal(rec.Body.Bytes(), &cat); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if cat.ID == "" || cat.Name != "Work" {
		t.Fatalf("unexpected category: %+v", cat)
	}
}

func TestCreateCategoryEmptyName(t *testing.T) {
	d := testDeps()
	d.Categories = &mockCategories{err: taskstore.ErrEmptyCategoryName}

	rec := doRequest(t, createCategory(d), http.MethodPost, "/api/categories", `{"name":""}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestPutProfileKeepsRefreshCredential(t *testing.T) {
	d := testDeps()
	profiles := &mockProfiles{profile: domain.UserProfile{ID: "user", RefreshToken: "rt-1"}}
	d.Profiles = profiles

	rec := doRequest(t, putProfile(d), http.MethodPut, "/api/profile", `{"email":"a@example.com","theme":"dark","notificationsEnabled":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if profiles.saved == nil {
		t.Fatal("profile not saved")
	}
	if profiles.saved.RefreshToken != "rt-1" {
		t.Fatal("refresh credential lost on profile update")
	}
	if profiles.saved.Theme != "dark" || profiles.saved.Email != "a@example.com" {
		t.Fatalf("unexpected saved profile: %+v", profiles.saved)
	}
}

func TestGetProfileNeverExposesCredential(t *testing.T) {
	d := testDeps()
	d.Profiles = &mockProfiles{profile: domain.UserProfile{ID: "user", RefreshToken: "rt-secret"}}

	rec := doRequest(t, getProfile(d), http.MethodGet, "/api/profile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "rt-secret") {
		t.Fatal("refresh token leaked into response")
	}
}

func TestEnableSyncExpiredCredential(t *testing.T) {
	d := testDeps()
	d.Calendar = &mockCalendar{err: calendar.ErrConnectionExpired}

	rec := doRequest(t, enableSync(d), http.MethodPost, "/api/integrations/microsoft/sync/enable", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "reconnect") {
		t.Fatalf("expected reconnect hint, got %q", rec.Body.String())
	}
}

func TestSyncWhileDisabled(t *testing.T) {
	d := testDeps()
	d.Calendar = &mockCalendar{err: calendar.ErrSyncDisabled}

	rec := doRequest(t, syncNow(d), http.MethodPost, "/api/integrations/microsoft/sync", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409 got %d", rec.Code)
	}
}

func TestBeginConnectReturnsAuthorization(t *testing.T) {
	d := testDeps()

	rec := doRequest(t, beginConnect(d), http.MethodPost, "/api/integrations/microsoft/connect", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
	var auth calendar.Authorization
	if err := sonic.Unmarshal(rec.Body.Bytes(), &auth); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if auth.URL == "" || auth.State == "" {
		t.Fatalf("unexpected authorization: %+v", auth)
	}
}

func TestCompleteConnectRequiresCodeAndState(t *testing.T) {
	d := testDeps()

	rec := doRequest(t, completeConnect(d), http.MethodPost, "/api/integrations/microsoft/callback", `{"code":"abc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	rec := doRequest(t, healthz(), http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 got %d", rec.Code)
	}
}
