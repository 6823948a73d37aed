// Package api exposes the rover's controls and journal over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/rover.control/internal/car"
	"github.com/banshee-data/rover.control/internal/db"
	"github.com/banshee-data/rover.control/internal/dispatch"
	"github.com/banshee-data/rover.control/internal/httputil"
	"github.com/banshee-data/rover.control/internal/monitoring"
	"github.com/banshee-data/rover.control/internal/motion"
	"github.com/banshee-data/rover.control/internal/serialmux"
	"github.com/banshee-data/rover.control/internal/thumbstick"
	"github.com/banshee-data/rover.control/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultDispatchLimit = 50
	maxDispatchLimit     = 1000
	reconnectTimeout     = 5 * time.Second
)

// Journal is the read side of the dispatch journal.
type Journal interface {
	RecentDispatches(channel string, limit int) ([]db.DispatchRow, error)
	DispatchSummary() ([]db.ChannelSummary, error)
	Sessions(limit int) ([]db.Session, error)
}

// SerialControl switches the thumbstick port at runtime.
type SerialControl interface {
	Connection() serialmux.Connection
	Reconnect(ctx context.Context, path string, opts serialmux.PortOptions) (serialmux.Connection, error)
	Disconnect() serialmux.Connection
	Stats() serialmux.Stats
}

// Config wires the server to the running components. Car and Thumbstick
// are required; a nil Journal or Serial answers 503 on their routes.
type Config struct {
	Car         *car.Controller
	Thumbstick  *thumbstick.Controller
	Dispatchers []*dispatch.Dispatcher
	Observers   *dispatch.Observers
	Journal     Journal
	Serial      SerialControl
	// ListPorts defaults to serialmux.AvailablePorts.
	ListPorts func() ([]serialmux.PortInfo, error)
}

type Server struct {
	cfg Config
}

func NewServer(cfg Config) *Server {
	if cfg.ListPorts == nil {
		cfg.ListPorts = serialmux.AvailablePorts
	}
	if cfg.Observers == nil {
		cfg.Observers = dispatch.NewObservers()
	}
	return &Server{cfg: cfg}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Diagf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/car/{action}", s.handleCarAction)
	mux.HandleFunc("GET /api/car/speed", s.handleGetSpeed)
	mux.HandleFunc("PUT /api/car/speed", s.handleSetSpeed)
	mux.HandleFunc("GET /api/thumbstick", s.handleThumbstickStatus)
	mux.HandleFunc("PUT /api/thumbstick/enabled", s.handleThumbstickEnabled)
	mux.HandleFunc("POST /api/gripper/{grip}", s.handleGripper)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/dispatches", s.handleDispatches)
	mux.HandleFunc("GET /api/dispatches/summary", s.handleDispatchSummary)
	mux.HandleFunc("GET /api/sessions", s.handleSessions)
	mux.HandleFunc("GET /api/serial/ports", s.handleSerialPorts)
	mux.HandleFunc("GET /api/serial", s.handleSerialConnection)
	mux.HandleFunc("POST /api/serial/reconnect", s.handleSerialReconnect)
	mux.HandleFunc("POST /api/serial/disconnect", s.handleSerialDisconnect)
	mux.HandleFunc("GET /api/events", s.handleEvents)
	mux.HandleFunc("GET /api/version", s.handleVersion)
	return mux
}

func (s *Server) handleCarAction(w http.ResponseWriter, r *http.Request) {
	action := r.PathValue("action")
	if err := s.cfg.Car.Do(action); err != nil {
		if errors.Is(err, car.ErrUnknownAction) {
			httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
			return
		}
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Car.Status())
}

type speedRequest struct {
	Speed *int `json:"speed"`
}

func (s *Server) handleGetSpeed(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]int{"speed": s.cfg.Car.Speed()})
}

func (s *Server) handleSetSpeed(w http.ResponseWriter, r *http.Request) {
	var req speedRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Speed == nil {
		httputil.BadRequest(w, "missing 'speed'")
		return
	}
	s.cfg.Car.SetSpeed(*req.Speed)
	httputil.WriteJSONOK(w, map[string]int{"speed": s.cfg.Car.Speed()})
}

func (s *Server) handleThumbstickStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.cfg.Thumbstick.Status())
}

type enabledRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) handleThumbstickEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if req.Enabled == nil {
		httputil.BadRequest(w, "missing 'enabled'")
		return
	}
	s.cfg.Thumbstick.SetEnabled(*req.Enabled)
	httputil.WriteJSONOK(w, s.cfg.Thumbstick.Status())
}

func (s *Server) handleGripper(w http.ResponseWriter, r *http.Request) {
	g, err := motion.ParseGrip(r.PathValue("grip"))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return
	}
	cmd := s.cfg.Thumbstick.SendGripperCommand(g)
	httputil.WriteJSONOK(w, cmd)
}

// DispatcherStatus reports one dispatcher's link state and counters.
type DispatcherStatus struct {
	Source    string         `json:"source"`
	Connected bool           `json:"connected"`
	Stats     dispatch.Stats `json:"stats"`
}

// Status is the body of GET /api/status.
type Status struct {
	Car         car.Status            `json:"car"`
	Thumbstick  thumbstick.Status     `json:"thumbstick"`
	Dispatchers []DispatcherStatus    `json:"dispatchers"`
	Serial      *serialmux.Connection `json:"serial,omitempty"`
	SerialStats *serialmux.Stats      `json:"serial_stats,omitempty"`
	Version     string                `json:"version"`
}

func (s *Server) status() Status {
	st := Status{
		Car:         s.cfg.Car.Status(),
		Thumbstick:  s.cfg.Thumbstick.Status(),
		Dispatchers: make([]DispatcherStatus, 0, len(s.cfg.Dispatchers)),
		Version:     version.Version,
	}
	for _, d := range s.cfg.Dispatchers {
		st.Dispatchers = append(st.Dispatchers, DispatcherStatus{
			Source:    d.Source(),
			Connected: d.Connected(),
			Stats:     d.Stats(),
		})
	}
	if s.cfg.Serial != nil {
		conn := s.cfg.Serial.Connection()
		stats := s.cfg.Serial.Stats()
		st.Serial = &conn
		st.SerialStats = &stats
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, s.status())
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSONOK(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func parseLimit(r *http.Request) (int, error) {
	limit := defaultDispatchLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			return 0, errors.New("invalid 'limit' parameter")
		}
		limit = min(parsed, maxDispatchLimit)
	}
	return limit, nil
}

func (s *Server) handleDispatches(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	channel := strings.ToLower(r.URL.Query().Get("channel"))
	switch channel {
	case "", "motor", "arm", "gripper":
	default:
		httputil.BadRequest(w, "invalid 'channel' parameter")
		return
	}

	rows, err := s.cfg.Journal.RecentDispatches(channel, limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read dispatch journal")
		monitoring.Opsf("read dispatch journal: %v", err)
		return
	}
	if rows == nil {
		rows = []db.DispatchRow{}
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) handleDispatchSummary(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	summary, err := s.cfg.Journal.DispatchSummary()
	if err != nil {
		httputil.InternalServerError(w, "failed to summarise dispatch journal")
		monitoring.Opsf("summarise dispatch journal: %v", err)
		return
	}
	if summary == nil {
		summary = []db.ChannelSummary{}
	}
	httputil.WriteJSONOK(w, summary)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Journal == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "journal disabled")
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	sessions, err := s.cfg.Journal.Sessions(limit)
	if err != nil {
		httputil.InternalServerError(w, "failed to read sessions")
		monitoring.Opsf("read sessions: %v", err)
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	httputil.WriteJSONOK(w, sessions)
}
