package httpapi

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apimw "github.com/hamed0406/sitemonitor/internal/httpapi/middleware"
)

const (
	eventsWriteTimeout = 5 * time.Second
	eventsPingInterval = 30 * time.Second
	eventsBuffer       = 64
)

var eventsUpgrader = websocket.Upgrader{
	CheckOrigin: sameOrigin,
}

// sameOrigin accepts non-browser clients and pages served from the API host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, r.Host)
}

// handleEvents streams every newly stored check as a JSON message.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Events == nil {
		apimw.WriteError(w, http.StatusNotFound, "event stream disabled")
		return
	}
	hdr := http.Header{}
	if id := apimw.RequestIDFrom(r.Context()); id != "" {
		hdr.Set(apimw.RequestIDHeader, id)
	}
	conn, err := eventsUpgrader.Upgrade(w, r, hdr)
	if err != nil {
		return
	}
	defer conn.Close()

	sub := s.Events.Subscribe(eventsBuffer)
	defer sub.Close()

	log := s.Logger.With(zap.String("request_id", apimw.RequestIDFrom(r.Context())))
	log.Info("events_subscribed")
	defer func() { log.Info("events_unsubscribed", zap.Int("dropped", sub.Dropped())) }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(eventsPingInterval)
	defer ping.Stop()

	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(eventsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(eventsWriteTimeout)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
