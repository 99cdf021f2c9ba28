package ws

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/prediction-overlay/backend/internal/eventsub"
	"github.com/prediction-overlay/backend/internal/prediction"
)

// Server exposes the overlay's HTTP surface: the /ws fanout endpoint, a
// read-only snapshot API and a health endpoint.
type Server struct {
	source          func() prediction.Snapshot
	broadcaster     *Broadcaster
	health          *eventsub.Health
	staticDir       string
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	authToken       string
	startedAt       time.Time
}

func NewServer(source func() prediction.Snapshot, broadcaster *Broadcaster, health *eventsub.Health, staticDir string, embeddedHandler http.Handler, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		source:          source,
		broadcaster:     broadcaster,
		health:          health,
		staticDir:       staticDir,
		embeddedHandler: embeddedHandler,
		allowedOrigins:  make(map[string]bool),
		allowedHosts:    make(map[string]bool),
		authToken:       authToken,
		startedAt:       time.Now(),
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/prediction", s.handlePrediction)
	mux.HandleFunc("/healthz", s.handleHealthz)

	if s.staticDir != "" {
		log.Info().Str("dir", s.staticDir).Msg("serving overlay from filesystem")
		mux.Handle("/", http.FileServer(http.Dir(s.staticDir)))
	} else if s.embeddedHandler != nil {
		log.Info().Msg("serving embedded overlay")
		mux.Handle("/", s.embeddedHandler)
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	log.Info().Str("remote", r.RemoteAddr).Msg("overlay client connected")
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Info().Str("remote", r.RemoteAddr).Msg("overlay client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.source())
}

type healthzResponse struct {
	UptimeSeconds float64                 `json:"uptimeSeconds"`
	Clients       int                     `json:"clients"`
	CPUPercent    float64                 `json:"cpuPercent,omitempty"`
	RSSBytes      uint64                  `json:"rssBytes,omitempty"`
	EventSub      eventsub.HealthSnapshot `json:"eventsub"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := healthzResponse{
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		Clients:       s.broadcaster.ClientCount(),
		EventSub:      s.health.Snapshot(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			resp.CPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			resp.RSSBytes = mem.RSS
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if resp.EventSub.Status == eventsub.StatusFailed {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Info().Str("addr", addr).Msg("overlay server listening")
	return http.ListenAndServe(addr, mux)
}
