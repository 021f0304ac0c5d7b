package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/schedule"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/domain/user"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/repo/postgres"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/security"
	"github.com/yashrajsinhjadej/health-hustle-sub000/internal/tz"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func doJSON(r *gin.Engine, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	return w, env
}

// --- schedules ---

type fakeScheduleService struct {
	created  []schedule.CreateRequest
	paused   []string
	resumed  []string
	err      error
	schedule schedule.Schedule
}

func (f *fakeScheduleService) Create(ctx context.Context, req schedule.CreateRequest) (schedule.Schedule, error) {
	f.created = append(f.created, req)
	return f.schedule, f.err
}

func (f *fakeScheduleService) Pause(ctx context.Context, id string) (schedule.Schedule, error) {
	f.paused = append(f.paused, id)
	return f.schedule, f.err
}

func (f *fakeScheduleService) Resume(ctx context.Context, id string) (schedule.Schedule, error) {
	f.resumed = append(f.resumed, id)
	s := f.schedule
	s.IsActive = true
	return s, f.err
}

type fakeScheduleLister struct {
	items []schedule.Schedule
}

func (f *fakeScheduleLister) List(ctx context.Context, p postgres.ListParams) ([]schedule.Schedule, error) {
	return f.items, nil
}

func (f *fakeScheduleLister) Count(ctx context.Context, p postgres.ListParams) (int, error) {
	return len(f.items), nil
}

func schedulesRouter(svc *fakeScheduleService, lister *fakeScheduleLister) *gin.Engine {
	r := gin.New()
	h := NewSchedulesHandler(svc, lister)
	r.POST("/schedules", h.Create)
	r.POST("/schedules/:id/status", h.SetStatus)
	r.GET("/schedules", h.List)
	return r
}

func TestCreateSchedule_OK(t *testing.T) {
	svc := &fakeScheduleService{schedule: schedule.Schedule{ID: "s1", Status: schedule.StatusActive}}
	r := schedulesRouter(svc, &fakeScheduleLister{})

	w, env := doJSON(r, http.MethodPost, "/schedules",
		`{"title":"Hydrate","message":"Drink water","kind":"daily","localTime":"09:00","audience":"all"}`)

	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if !env.Success {
		t.Fatalf("expected success envelope")
	}
	if len(svc.created) != 1 || svc.created[0].Kind != schedule.KindDaily {
		t.Fatalf("service not called correctly: %+v", svc.created)
	}
}

func TestCreateSchedule_ValidationError(t *testing.T) {
	svc := &fakeScheduleService{}
	r := schedulesRouter(svc, &fakeScheduleLister{})

	w, env := doJSON(r, http.MethodPost, "/schedules", `{"message":"x","kind":"daily","audience":"all"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if env.Error == nil || env.Error.Code != "VALIDATION_ERROR" {
		t.Fatalf("expected VALIDATION_ERROR, got %+v", env.Error)
	}
	if len(svc.created) != 0 {
		t.Fatalf("service must not be called on bind failure")
	}
}

func TestCreateSchedule_ExpiredFireAt(t *testing.T) {
	svc := &fakeScheduleService{err: schedule.ErrScheduleExpired}
	r := schedulesRouter(svc, &fakeScheduleLister{})

	past := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	w, env := doJSON(r, http.MethodPost, "/schedules",
		`{"title":"Launch","message":"Go","kind":"once","fireAt":"`+past+`","audience":"all"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if env.Error.Code != "INVALID_SCHEDULE_DATE" {
		t.Fatalf("expected INVALID_SCHEDULE_DATE, got %s", env.Error.Code)
	}
}

func TestSetStatus_RoutesPauseAndResume(t *testing.T) {
	svc := &fakeScheduleService{schedule: schedule.Schedule{ID: "s1"}}
	r := schedulesRouter(svc, &fakeScheduleLister{})

	if w, _ := doJSON(r, http.MethodPost, "/schedules/s1/status", `{"isActive":false}`); w.Code != http.StatusOK {
		t.Fatalf("pause status = %d", w.Code)
	}
	if len(svc.paused) != 1 || svc.paused[0] != "s1" {
		t.Fatalf("pause not routed: %v", svc.paused)
	}

	if w, _ := doJSON(r, http.MethodPost, "/schedules/s1/status", `{"isActive":true}`); w.Code != http.StatusOK {
		t.Fatalf("resume status = %d", w.Code)
	}
	if len(svc.resumed) != 1 {
		t.Fatalf("resume not routed: %v", svc.resumed)
	}
}

func TestSetStatus_MissingBody(t *testing.T) {
	svc := &fakeScheduleService{}
	r := schedulesRouter(svc, &fakeScheduleLister{})

	w, _ := doJSON(r, http.MethodPost, "/schedules/s1/status", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("isActive is required, status = %d", w.Code)
	}
}

func TestSetStatus_NotFound(t *testing.T) {
	svc := &fakeScheduleService{err: schedule.ErrScheduleNotFound}
	r := schedulesRouter(svc, &fakeScheduleLister{})

	w, env := doJSON(r, http.MethodPost, "/schedules/missing/status", `{"isActive":false}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if env.Error.Code != "SCHEDULE_NOT_FOUND" {
		t.Fatalf("expected SCHEDULE_NOT_FOUND, got %s", env.Error.Code)
	}
}

func TestListSchedules_EmptyIsArray(t *testing.T) {
	r := schedulesRouter(&fakeScheduleService{}, &fakeScheduleLister{})

	w, env := doJSON(r, http.MethodGet, "/schedules", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(string(env.Data), `"items":[]`) {
		t.Fatalf("empty list must serialize as [], got %s", env.Data)
	}
}

func TestListSchedules_ETagNotModified(t *testing.T) {
	lister := &fakeScheduleLister{items: []schedule.Schedule{{ID: "s1", Title: "Hydrate"}}}
	r := schedulesRouter(&fakeScheduleService{}, lister)

	w1, _ := doJSON(r, http.MethodGet, "/schedules", "")
	if w1.Code != http.StatusOK {
		t.Fatalf("status = %d", w1.Code)
	}
	etag := w1.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	req := httptest.NewRequest(http.MethodGet, "/schedules", nil)
	req.Header.Set("If-None-Match", etag)
	w2 := httptest.NewRecorder()
	r.ServeHTTP(w2, req)

	if w2.Code != http.StatusNotModified {
		t.Fatalf("unchanged page must 304, got %d", w2.Code)
	}
}

// --- auth ---

type fakeUserFinder struct {
	user user.User
	err  error
}

func (f *fakeUserFinder) GetByEmail(ctx context.Context, email string) (user.User, error) {
	return f.user, f.err
}

type fakeSigner struct{}

func (fakeSigner) Sign(userID, role string) (string, time.Time, error) {
	return "signed-token", time.Now().Add(time.Hour), nil
}

func TestLogin(t *testing.T) {
	hash, err := security.HashPassword("hunter22")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}

	finder := &fakeUserFinder{user: user.User{ID: "u1", Email: "ops@example.com", Role: "admin", PasswordHash: hash}}
	r := gin.New()
	r.POST("/auth/login", NewAuthHandler(finder, fakeSigner{}).Login)

	w, env := doJSON(r, http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"hunter22"}`)
	if w.Code != http.StatusOK || !env.Success {
		t.Fatalf("login failed: %d %s", w.Code, w.Body.String())
	}
	if !strings.Contains(string(env.Data), "signed-token") {
		t.Fatalf("token missing from response: %s", env.Data)
	}

	w, env = doJSON(r, http.MethodPost, "/auth/login", `{"email":"ops@example.com","password":"wrong"}`)
	if w.Code != http.StatusUnauthorized || env.Error.Code != "UNAUTHORIZED" {
		t.Fatalf("bad password must 401: %d %+v", w.Code, env.Error)
	}

	finder.err = user.ErrUserNotFound
	w, _ = doJSON(r, http.MethodPost, "/auth/login", `{"email":"nobody@example.com","password":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user must 401 like a bad password, got %d", w.Code)
	}
}

// --- device registration ---

type fakeRegistrar struct {
	err   error
	calls []string // timezone per call
}

func (f *fakeRegistrar) Register(ctx context.Context, userID, token, platform, rawTimezone string) (string, error) {
	f.calls = append(f.calls, rawTimezone)
	if f.err != nil {
		return "", f.err
	}
	return "asia/kolkata", nil
}

func deviceRouter(reg *fakeRegistrar) *gin.Engine {
	r := gin.New()
	r.POST("/fcm-token", func(c *gin.Context) {
		c.Set("auth.userID", "u1")
		c.Next()
	}, NewDeviceHandler(reg).Register)
	return r
}

func TestRegisterDevice(t *testing.T) {
	reg := &fakeRegistrar{}
	r := deviceRouter(reg)

	req := httptest.NewRequest(http.MethodPost, "/fcm-token", strings.NewReader(`{"token":"tok-1","platform":"android"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("timezone", "Asia/Kolkata")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if len(reg.calls) != 1 || reg.calls[0] != "Asia/Kolkata" {
		t.Fatalf("registrar not called with raw timezone: %v", reg.calls)
	}
}

func TestRegisterDevice_MissingTimezoneHeader(t *testing.T) {
	reg := &fakeRegistrar{}
	r := deviceRouter(reg)

	w, env := doJSON(r, http.MethodPost, "/fcm-token", `{"token":"tok-1","platform":"android"}`)
	if w.Code != http.StatusBadRequest || env.Error.Code != "INVALID_TIMEZONE" {
		t.Fatalf("missing header must fail with INVALID_TIMEZONE: %d %+v", w.Code, env.Error)
	}
	if len(reg.calls) != 0 {
		t.Fatalf("registrar must not be called")
	}
}

func TestRegisterDevice_InvalidTimezone(t *testing.T) {
	reg := &fakeRegistrar{err: tz.ErrInvalidTimezone}
	r := deviceRouter(reg)

	req := httptest.NewRequest(http.MethodPost, "/fcm-token", strings.NewReader(`{"token":"tok-1","platform":"android"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("timezone", "not/a/zone")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}

	var env envelope
	_ = json.Unmarshal(w.Body.Bytes(), &env)
	if env.Error.Code != "INVALID_TIMEZONE" {
		t.Fatalf("expected INVALID_TIMEZONE, got %s", env.Error.Code)
	}
}
