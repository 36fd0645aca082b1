package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	"github.com/hamed0406/sitemonitor/internal/events"
	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
	"github.com/hamed0406/sitemonitor/internal/monitor"
	"github.com/hamed0406/sitemonitor/internal/scheduler"
)

// Monitor is the slice of monitor.Service the API needs. Every registry
// change goes through it so the scheduler sees the change at once.
type Monitor interface {
	AddSite(ctx context.Context, rawURL string, intervalSeconds int) (domain.Site, bool, error)
	UpdateSite(ctx context.Context, id int64, upd domain.SiteUpdate) (domain.Site, error)
	RemoveSite(ctx context.Context, id int64) error
	Sites(ctx context.Context) ([]domain.Site, error)
	Site(ctx context.Context, id int64) (domain.Site, error)
	RecentChecks(ctx context.Context, id int64, limit int) ([]domain.Check, error)
	Stats(ctx context.Context, id int64) (domain.Stats, error)
	Report(ctx context.Context) ([]monitor.SiteReport, error)
	CheckNow(ctx context.Context, id int64) (domain.Check, error)
	Schedule() []scheduler.EntryStatus
}

var _ Monitor = (*monitor.Service)(nil)

type Server struct {
	Logger  *zap.Logger
	Monitor Monitor
	Events  *events.Hub // nil disables /api/events
}

func NewServer(l *zap.Logger, m Monitor, hub *events.Hub) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Monitor: m, Events: hub}
}

// Router mounts the API. Reads need a public or admin key, writes an admin
// key; with no keys configured the API is open. origins empty allows any.
func (s *Server) Router(keys apimw.Keys, origins []string, pubRPM, pubBurst, admRPM, admBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(apimw.RequestID)
	r.Use(apimw.AccessLog(s.Logger))
	r.Use(corsHandler(origins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(apimw.RateLimit(pubRPM, pubBurst))
		r.Use(apimw.RequireAny(keys))

		r.Get("/sites", s.handleListSites)
		r.Get("/sites/{id}", s.handleGetSite)
		r.Get("/sites/{id}/checks", s.handleChecks)
		r.Get("/sites/{id}/stats", s.handleStats)
		r.Get("/report", s.handleReport)
		r.Get("/schedule", s.handleSchedule)
		r.Get("/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(apimw.RequireAdmin(keys))
			r.Use(apimw.RateLimit(admRPM, admBurst))

			r.Post("/sites", s.handleAddSite)
			r.Patch("/sites/{id}", s.handleUpdateSite)
			r.Delete("/sites/{id}", s.handleDeleteSite)
			r.Post("/sites/{id}/check", s.handleCheckNow)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-API-Key", apimw.RequestIDHeader},
		ExposedHeaders: []string{apimw.RequestIDHeader},
		MaxAge:         300,
	})
}
