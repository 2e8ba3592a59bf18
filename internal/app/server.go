package app

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/assignment"
	"github.com/klabast/wb-services/duty-calendar/internal/roster"
)

// Server is the HTTP surface over the roster and the assignment store.
type Server struct {
	cfg         *Config
	roster      *roster.Roster
	assignments *assignment.Store
	auth        *Auth
	logger      *zap.Logger
	now         func() time.Time
}

func NewServer(cfg *Config, r *roster.Roster, a *assignment.Store, auth *Auth, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg:         cfg,
		roster:      r,
		assignments: a,
		auth:        auth,
		logger:      logger,
		now:         time.Now,
	}
}

// Routes returns the complete handler including middleware.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/config", s.GetConfig)
	mux.HandleFunc("GET /api/students", s.ListStudents)
	mux.HandleFunc("GET /api/students/{name}/dates", s.StudentDates)
	mux.HandleFunc("GET /api/assignments", s.ListAssignments)
	mux.HandleFunc("GET /api/assignments/{date}", s.GetAssignment)
	mux.HandleFunc("GET /api/calendar", s.HandleCalendar)
	mux.HandleFunc("GET /api/download", s.HandleDownload)
	mux.HandleFunc("GET /api/subscribe/{student}", s.HandleSubscribe)

	// Edit routes (edit mode + Basic Auth)
	mux.Handle("POST /api/students", s.edit(s.AddStudent))
	mux.Handle("DELETE /api/students/{name}", s.edit(s.RemoveStudent))
	mux.Handle("POST /api/assignments/{date}", s.edit(s.AssignStudent))
	mux.Handle("DELETE /api/assignments/{date}", s.edit(s.ClearDate))
	mux.Handle("DELETE /api/assignments/{date}/{student}", s.edit(s.UnassignStudent))

	return WithRequestID(WithAccessLog(s.logger, mux))
}

func (s *Server) edit(h http.HandlerFunc) http.Handler {
	return s.RequireEditMode(s.auth.Require(h))
}
