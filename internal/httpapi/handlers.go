package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hamed0406/sitemonitor/internal/domain"
	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
)

const (
	defaultChecksLimit = 10
	maxBodyBytes       = 1 << 16
)

var errBadRequest = errors.New("bad request")

type addPayload struct {
	URL      string `json:"url"`
	Interval int    `json:"interval"`
}

type addResponse struct {
	Site    domain.Site `json:"site"`
	Created bool        `json:"created"`
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := decode(w, r, &p); err != nil {
		s.writeError(w, r, err)
		return
	}
	site, created, err := s.Monitor.AddSite(r.Context(), p.URL, p.Interval)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, addResponse{Site: site, Created: created})
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Monitor.Sites(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sites == nil {
		sites = []domain.Site{}
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	id, ok := s.siteID(w, r)
	if !ok {
		return
	}
	site, err := s.Monitor.Site(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := s.siteID(w, r)
	if !ok {
		return
	}
	var upd domain.SiteUpdate
	if err := decode(w, r, &upd); err != nil {
		s.writeError(w, r, err)
		return
	}
	site, err := s.Monitor.UpdateSite(r.Context(), id, upd)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (s *Server) handleDeleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := s.siteID(w, r)
	if !ok {
		return
	}
	if err := s.Monitor.RemoveSite(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleChecks(w http.ResponseWriter, r *http.Request) {
	id, ok := s.siteID(w, r)
	if !ok {
		return
	}
	limit := defaultChecksLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > domain.StatsWindow {
			apimw.WriteError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}
	checks, err := s.Monitor.RecentChecks(r.Context(), id, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checks)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	id, ok := s.siteID(w, r)
	if !ok {
		return
	}
	st, err := s.Monitor.Stats(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Monitor.Report(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Monitor.Schedule())
}

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.siteID(w, r)
	if !ok {
		return
	}
	c, err := s.Monitor.CheckNow(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// ---- helpers ----

func (s *Server) siteID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		apimw.WriteError(w, http.StatusBadRequest, "invalid site id")
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errBadRequest
	}
	return nil
}

// writeError maps domain errors onto status codes; anything unexpected is a
// 500 and gets logged with the request id.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errBadRequest):
		apimw.WriteError(w, http.StatusBadRequest, "bad payload")
	case errors.Is(err, domain.ErrInvalidURL), errors.Is(err, domain.ErrInvalidInterval):
		apimw.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		apimw.WriteError(w, http.StatusNotFound, "site not found")
	case errors.Is(err, domain.ErrBusy):
		apimw.WriteError(w, http.StatusConflict, err.Error())
	default:
		s.Logger.Error("http_handler_error",
			zap.String("request_id", apimw.RequestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		apimw.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
