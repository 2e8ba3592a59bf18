package app

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/calendar"
)

// GetConfig returns what the client needs to draw its chrome.
// Query param: student (optional, marks the active filter chip)
func (s *Server) GetConfig(w http.ResponseWriter, r *http.Request) {
	year := s.now().Year()
	students := s.roster.List()

	writeJSON(w, http.StatusOK, map[string]any{
		"students":    students,
		"filters":     calendar.FilterChips(students, r.URL.Query().Get("student")),
		"editMode":    s.cfg.Server.EditMode,
		"mode":        s.cfg.Mode(),
		"currentYear": year,
		"holidays":    calendar.Holidays(s.cfg.Calendar.HolidayRegion, year),
	})
}

func (s *Server) ListStudents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"students": s.roster.List()})
}

// StudentDates lists the dates a student is on duty.
func (s *Server) StudentDates(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	writeJSON(w, http.StatusOK, map[string]any{
		"student": name,
		"dates":   s.assignments.EntriesForStudent(name),
	})
}

// ListAssignments returns every date with its students, legacy entries
// normalized to lists.
func (s *Server) ListAssignments(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"assignments": s.assignments.Snapshot().Normalized(),
	})
}

// GetAssignment returns the summary for one date.
func (s *Server) GetAssignment(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}
	e, found := s.assignments.Entry(date)
	writeJSON(w, http.StatusOK, calendar.Summarize(date, e, found))
}

// HandleCalendar returns the calendar marking.
// Query params: selected (date key), student (filter), year (holidays)
func (s *Server) HandleCalendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	selected := q.Get("selected")
	student := q.Get("student")

	if selected != "" && !calendar.ValidDate(selected) {
		writeError(w, http.StatusBadRequest, ErrInvalidDateFormat)
		return
	}

	year := s.now().Year()
	if selected != "" {
		year, _ = strconv.Atoi(selected[:4])
	}
	if y := q.Get("year"); y != "" {
		var err error
		if year, err = strconv.Atoi(y); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year")
			return
		}
	}

	snapshot := s.assignments.Snapshot()
	resp := map[string]any{
		"marked_dates": calendar.Project(snapshot, selected, student),
		"filters":      calendar.FilterChips(s.roster.List(), student),
		"holidays":     calendar.Holidays(s.cfg.Calendar.HolidayRegion, year),
	}
	if selected != "" {
		e, found := snapshot[selected]
		resp["selected"] = calendar.Summarize(selected, e, found)
	}
	writeJSON(w, http.StatusOK, resp)
}

// AddStudent adds a student to the roster (edit mode only)
func (s *Server) AddStudent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	students, err := s.roster.Add(r.Context(), req.Name)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"students": students})
}

// RemoveStudent removes a student from the roster (edit mode only). Existing
// assignments of the student are kept.
func (s *Server) RemoveStudent(w http.ResponseWriter, r *http.Request) {
	students, err := s.roster.Remove(r.Context(), r.PathValue("name"))
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": students})
}

// AssignStudent puts a roster student on duty for a date (edit mode only)
func (s *Server) AssignStudent(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}

	var req struct {
		Student string `json:"student"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if !s.roster.Has(req.Student) {
		writeError(w, http.StatusNotFound, ErrUnknownStudent)
		return
	}

	entry, err := s.assignments.Assign(r.Context(), date, req.Student)
	if err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, calendar.Summarize(date, entry, true))
}

// ClearDate removes every student from a date (edit mode only)
func (s *Server) ClearDate(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}
	if err := s.assignments.RemoveAll(r.Context(), date); err != nil {
		writeCoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// UnassignStudent removes one student from a date (edit mode only)
func (s *Server) UnassignStudent(w http.ResponseWriter, r *http.Request) {
	date, ok := requireDate(w, r)
	if !ok {
		return
	}
	if err := s.assignments.RemoveOne(r.Context(), date, r.PathValue("student")); err != nil {
		writeCoreError(w, err)
		return
	}
	e, found := s.assignments.Entry(date)
	writeJSON(w, http.StatusOK, calendar.Summarize(date, e, found))
}

// HandleDownload exports the duty list as ICS, CSV, JSON or XLSX.
// Query params: format, student (optional), year (optional)
func (s *Server) HandleDownload(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	student := q.Get("student")

	duties := Duties(s.assignments.Snapshot(), student)
	if y := q.Get("year"); y != "" {
		year, err := strconv.Atoi(y)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid year")
			return
		}
		duties = FilterFromYear(duties, year, year)
	}

	name := exportName(student)
	switch q.Get("format") {
	case "ics":
		GenerateICS(w, r, name, duties)
	case "csv":
		GenerateCSV(w, name, duties)
	case "json":
		GenerateJSON(w, name, duties)
	case "xlsx":
		if err := GenerateXLSX(w, name, duties); err != nil {
			s.logger.Error("error generating xlsx export", zap.Error(err))
		}
	default:
		writeError(w, http.StatusBadRequest, ErrInvalidFormat)
	}
}

// HandleSubscribe serves an ICS feed of one student's duties from the
// previous year onwards.
func (s *Server) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	student := r.PathValue("student")
	minYear := s.now().Year() - 1

	duties := FilterFromYear(Duties(s.assignments.Snapshot(), student), minYear, 0)
	GenerateSubscriptionICS(w, exportName(student), duties)
}

func exportName(student string) string {
	if student == "" {
		return "Duty Roster"
	}
	return "Duty Roster " + strings.TrimSpace(student)
}

// parseYear extracts the year of a date key; ok is false for malformed keys.
func parseYear(date string) (int, bool) {
	t, err := time.Parse(calendar.DateLayout, date)
	if err != nil {
		return 0, false
	}
	return t.Year(), true
}
