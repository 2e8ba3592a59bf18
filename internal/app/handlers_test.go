package app

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/klabast/wb-services/duty-calendar/internal/assignment"
	"github.com/klabast/wb-services/duty-calendar/internal/calendar"
	"github.com/klabast/wb-services/duty-calendar/internal/roster"
	"github.com/klabast/wb-services/duty-calendar/internal/storage"
)

type testEnv struct {
	server  *Server
	handler http.Handler
	blobs   *storage.Memory
}

func newTestEnv(t *testing.T, editMode bool, students, assignments string) *testEnv {
	t.Helper()
	ctx := context.Background()

	blobs := storage.NewMemory()
	if students != "" {
		blobs.Seed(storage.StudentsKey, students)
	}
	if assignments != "" {
		blobs.Seed(storage.AssignmentsKey, assignments)
	}

	r, err := roster.Load(ctx, blobs, nil)
	if err != nil {
		t.Fatal(err)
	}
	a, err := assignment.Load(ctx, blobs, nil)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		Server:   ServerConfig{Port: 8080, EditMode: editMode},
		Calendar: CalendarConfig{HolidayRegion: calendar.HolidayRegionNRW},
	}
	s := NewServer(cfg, r, a, &Auth{}, nil)
	s.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &testEnv{server: s, handler: s.Routes(), blobs: blobs}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatalf("response is not JSON: %v", err)
	}
	return out
}

func TestEditRoutesNeedEditMode(t *testing.T) {
	env := newTestEnv(t, false, "", "")

	for _, rt := range []struct{ method, path string }{
		{"POST", "/api/students"},
		{"DELETE", "/api/students/Ann"},
		{"POST", "/api/assignments/2024-05-01"},
		{"DELETE", "/api/assignments/2024-05-01"},
		{"DELETE", "/api/assignments/2024-05-01/Ann"},
	} {
		w := env.do(t, rt.method, rt.path, `{"name":"Ann","student":"Ann"}`)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s = %d, want 403", rt.method, rt.path, w.Code)
		}
	}
	if env.blobs.Writes() != 0 {
		t.Error("serve mode must not write")
	}
}

func TestEditRoutesNeedAuth(t *testing.T) {
	env := newTestEnv(t, true, "", "")
	hash, err := HashPassword("secret-password")
	if err != nil {
		t.Fatal(err)
	}
	env.server.auth = &Auth{user: "admin", hash: hash}
	env.handler = env.server.Routes()

	w := env.do(t, "POST", "/api/students", `{"name":"Ann"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated add = %d, want 401", w.Code)
	}

	req := httptest.NewRequest("POST", "/api/students", strings.NewReader(`{"name":"Ann"}`))
	req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:secret-password")))
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Errorf("authenticated add = %d, want 201", rec.Code)
	}

	if w := env.do(t, "GET", "/api/students", ""); w.Code != http.StatusOK {
		t.Errorf("read routes stay public, got %d", w.Code)
	}
}

func TestStudentRoutes(t *testing.T) {
	env := newTestEnv(t, true, "", "")

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		wantCode int
		wantList []string
	}{
		{name: "add", method: "POST", path: "/api/students", body: `{"name":" Ann "}`, wantCode: http.StatusCreated, wantList: []string{"Ann"}},
		{name: "add second", method: "POST", path: "/api/students", body: `{"name":"Bo"}`, wantCode: http.StatusCreated, wantList: []string{"Ann", "Bo"}},
		{name: "duplicate", method: "POST", path: "/api/students", body: `{"name":"ann"}`, wantCode: http.StatusConflict},
		{name: "empty", method: "POST", path: "/api/students", body: `{"name":"   "}`, wantCode: http.StatusBadRequest},
		{name: "bad body", method: "POST", path: "/api/students", body: `{`, wantCode: http.StatusBadRequest},
		{name: "remove", method: "DELETE", path: "/api/students/ANN", wantCode: http.StatusOK, wantList: []string{"Bo"}},
		{name: "remove missing", method: "DELETE", path: "/api/students/Ann", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		w := env.do(t, tt.method, tt.path, tt.body)
		if w.Code != tt.wantCode {
			t.Fatalf("%s: status = %d, want %d (%s)", tt.name, w.Code, tt.wantCode, w.Body.String())
		}
		if tt.wantList == nil {
			continue
		}
		resp := decode[struct {
			Students []string `json:"students"`
		}](t, w)
		if !slices.Equal(resp.Students, tt.wantList) {
			t.Errorf("%s: students = %v, want %v", tt.name, resp.Students, tt.wantList)
		}
	}

	if got := env.blobs.Raw(storage.StudentsKey); got != `["Bo"]` {
		t.Errorf("persisted roster = %s", got)
	}
}

func TestAssignmentRoutes(t *testing.T) {
	env := newTestEnv(t, true, `["Ann","Bo","Bo Berg"]`, `{"2024-05-02":"Ann"}`)

	w := env.do(t, "POST", "/api/assignments/2024-05-01", `{"student":"Ann"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("assign = %d: %s", w.Code, w.Body.String())
	}
	summary := decode[calendar.Summary](t, w)
	if !slices.Equal(summary.Students, []string{"Ann"}) || summary.DisplayDate != "Wed May 01 2024" {
		t.Errorf("assign summary = %+v", summary)
	}

	if w := env.do(t, "POST", "/api/assignments/2024-05-01", `{"student":"Ann"}`); w.Code != http.StatusConflict {
		t.Errorf("assign twice = %d, want 409", w.Code)
	}
	if w := env.do(t, "POST", "/api/assignments/2024-05-01", `{"student":"Zed"}`); w.Code != http.StatusNotFound {
		t.Errorf("assign unknown student = %d, want 404", w.Code)
	}
	if w := env.do(t, "POST", "/api/assignments/05-01-2024", `{"student":"Ann"}`); w.Code != http.StatusBadRequest {
		t.Errorf("assign bad date = %d, want 400", w.Code)
	}

	env.do(t, "POST", "/api/assignments/2024-05-01", `{"student":"Bo Berg"}`)

	w = env.do(t, "DELETE", "/api/assignments/2024-05-01/Bo%20Berg", "")
	if w.Code != http.StatusOK {
		t.Fatalf("unassign = %d", w.Code)
	}
	if got := decode[calendar.Summary](t, w); !slices.Equal(got.Students, []string{"Ann"}) {
		t.Errorf("unassign summary = %+v", got)
	}

	// Legacy date is cleared whatever name is passed
	if w := env.do(t, "DELETE", "/api/assignments/2024-05-02/Bo", ""); w.Code != http.StatusOK {
		t.Fatalf("unassign legacy = %d", w.Code)
	}
	w = env.do(t, "GET", "/api/assignments/2024-05-02", "")
	if got := decode[calendar.Summary](t, w); got.Count != 0 || got.Message != calendar.NoAssignmentText {
		t.Errorf("legacy date after removal = %+v", got)
	}

	if w := env.do(t, "DELETE", "/api/assignments/2024-05-01", ""); w.Code != http.StatusOK {
		t.Fatalf("clear = %d", w.Code)
	}
	if got := env.blobs.Raw(storage.AssignmentsKey); got != `{}` {
		t.Errorf("persisted assignments = %s", got)
	}
}

func TestListAssignmentsNormalizesLegacy(t *testing.T) {
	env := newTestEnv(t, false, "", `{"2024-05-01":"Ann","2024-05-02":["Ann","Bo"]}`)

	resp := decode[struct {
		Assignments map[string][]string `json:"assignments"`
	}](t, env.do(t, "GET", "/api/assignments", ""))

	if !slices.Equal(resp.Assignments["2024-05-01"], []string{"Ann"}) {
		t.Errorf("legacy entry = %v", resp.Assignments["2024-05-01"])
	}
	if !slices.Equal(resp.Assignments["2024-05-02"], []string{"Ann", "Bo"}) {
		t.Errorf("multi entry = %v", resp.Assignments["2024-05-02"])
	}

	dates := decode[struct {
		Dates []string `json:"dates"`
	}](t, env.do(t, "GET", "/api/students/Ann/dates", ""))
	if !slices.Equal(dates.Dates, []string{"2024-05-01", "2024-05-02"}) {
		t.Errorf("student dates = %v", dates.Dates)
	}
}

func TestHandleCalendar(t *testing.T) {
	env := newTestEnv(t, false, `["Ann","Bo"]`, `{"2024-05-01":["Bo"],"2024-05-02":"Ann"}`)

	w := env.do(t, "GET", "/api/calendar?selected=2024-05-01&student=Ann", "")
	if w.Code != http.StatusOK {
		t.Fatalf("calendar = %d", w.Code)
	}
	resp := decode[struct {
		Marked   calendar.Marking  `json:"marked_dates"`
		Filters  []calendar.Chip   `json:"filters"`
		Holidays map[string]string `json:"holidays"`
		Selected calendar.Summary  `json:"selected"`
	}](t, w)

	if m := resp.Marked["2024-05-01"]; !m.Selected || m.Highlighted {
		t.Errorf("selected date outside filter = %+v", m)
	}
	if m := resp.Marked["2024-05-02"]; !m.Highlighted || m.Category != calendar.CategoryFiltered {
		t.Errorf("filtered legacy date = %+v", m)
	}
	if len(resp.Filters) != 3 || !resp.Filters[1].Active {
		t.Errorf("filters = %+v", resp.Filters)
	}
	if resp.Holidays["2024-05-09"] != "Ascension Day" {
		t.Error("holidays should follow the selected year")
	}
	if !slices.Equal(resp.Selected.Students, []string{"Bo"}) {
		t.Errorf("selected summary = %+v", resp.Selected)
	}

	if w := env.do(t, "GET", "/api/calendar?selected=tomorrow", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad selected date = %d, want 400", w.Code)
	}
}

func TestGetConfig(t *testing.T) {
	env := newTestEnv(t, true, `["Ann"]`, "")

	resp := decode[struct {
		Students    []string          `json:"students"`
		EditMode    bool              `json:"editMode"`
		Mode        string            `json:"mode"`
		CurrentYear int               `json:"currentYear"`
		Holidays    map[string]string `json:"holidays"`
	}](t, env.do(t, "GET", "/api/config", ""))

	if !resp.EditMode || resp.Mode != ModeEdit || resp.CurrentYear != 2025 {
		t.Errorf("config = %+v", resp)
	}
	if resp.Holidays["2025-04-18"] != "Good Friday" {
		t.Error("config should carry holidays of the current year")
	}
}

func TestPersistenceFailureReturns500(t *testing.T) {
	env := newTestEnv(t, true, `["Ann"]`, "")
	env.blobs.FailWrites(errors.New("disk full"))

	w := env.do(t, "POST", "/api/assignments/2024-05-01", `{"student":"Ann"}`)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("assign with failing storage = %d, want 500", w.Code)
	}
	if got := decode[map[string]string](t, w)["error"]; got != ErrFailedToSave {
		t.Errorf("error = %q", got)
	}

	// Memory is not rolled back
	w = env.do(t, "GET", "/api/assignments/2024-05-01", "")
	if got := decode[calendar.Summary](t, w); got.Count != 1 {
		t.Errorf("in-memory state lost: %+v", got)
	}
}

func TestHandleDownload(t *testing.T) {
	env := newTestEnv(t, false, "", `{"2024-12-30":["Ann"],"2025-01-15":["Ann","Bo"]}`)

	w := env.do(t, "GET", "/api/download?format=csv&student=Ann&year=2025", "")
	if w.Code != http.StatusOK {
		t.Fatalf("csv download = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "2025-01-15,Wed Jan 15 2025,Ann") || strings.Contains(body, "2024-12-30") || strings.Contains(body, "Bo") {
		t.Errorf("csv body = %s", body)
	}

	for _, format := range []string{"ics", "json", "xlsx"} {
		if w := env.do(t, "GET", "/api/download?format="+format, ""); w.Code != http.StatusOK {
			t.Errorf("%s download = %d", format, w.Code)
		}
	}

	if w := env.do(t, "GET", "/api/download?format=pdf", ""); w.Code != http.StatusBadRequest {
		t.Errorf("unknown format = %d, want 400", w.Code)
	}
	if w := env.do(t, "GET", "/api/download?format=csv&year=soon", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad year = %d, want 400", w.Code)
	}
}

func TestHandleSubscribe(t *testing.T) {
	env := newTestEnv(t, false, "", `{"2023-06-01":["Ann"],"2024-06-01":"Ann","2025-06-01":["Bo","Ann"]}`)

	w := env.do(t, "GET", "/api/subscribe/Ann", "")
	body := w.Body.String()

	// now is 2025, so the feed starts in 2024
	if got := strings.Count(body, "BEGIN:VEVENT"); got != 2 {
		t.Errorf("Expected 2 events, got %d", got)
	}
	if strings.Contains(body, "20230601") {
		t.Error("Duties older than last year should be dropped")
	}
	if !strings.Contains(body, "X-WR-CALNAME:Duty Roster Ann") {
		t.Error("Missing calendar name")
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t, false, "", "")

	w := env.do(t, "GET", "/api/students", "")
	if len(w.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("generated request id = %q", w.Header().Get(RequestIDHeader))
	}

	req := httptest.NewRequest("GET", "/api/students", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if rec.Header().Get(RequestIDHeader) != "abc-123" {
		t.Errorf("client request id not reused: %q", rec.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest("GET", "/api/students", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", 100))
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Error("oversized request id should be replaced")
	}
}
