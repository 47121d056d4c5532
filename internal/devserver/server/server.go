// Package server provides the HTTP server for the development backend.
package server

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/grovetools/cryoview/errors"
	"github.com/grovetools/cryoview/internal/devserver/engine"
	"github.com/grovetools/cryoview/internal/devserver/store"
	"github.com/grovetools/cryoview/pkg/api"
	"github.com/grovetools/cryoview/pkg/models"
	"github.com/grovetools/cryoview/pkg/notify"
)

const writeTimeout = 10 * time.Second

// RunningConfig holds the settings the server was started with. It is
// exposed via /api/devserver/config so clients can verify what is active.
type RunningConfig struct {
	Targets           int           `json:"targets"`
	DiscoveryInterval time.Duration `json:"discovery_interval"`
	RecordingInterval time.Duration `json:"recording_interval"`
	RuleInterval      time.Duration `json:"rule_interval"`
	AuthRequired      bool          `json:"auth_required"`
	StartedAt         time.Time     `json:"started_at"`
}

// Server serves the simulated diagnostics API.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	engine        *engine.Engine
	token         string
	runningConfig *RunningConfig
	upgrader      websocket.Upgrader

	registry      *prometheus.Registry
	requests      *prometheus.CounterVec
	notifications *prometheus.CounterVec
	clients       prometheus.Gauge

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
	done  chan struct{}
	once  sync.Once
}

// New creates a server. A non-empty token is required as a bearer token on
// every /api request.
func New(logger *logrus.Entry, token string) *Server {
	s := &Server{
		logger:   logger,
		token:    token,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview_devserver",
			Name:      "requests_total",
			Help:      "API requests by route and status code.",
		}, []string{"route", "code"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cryoview_devserver",
			Name:      "notifications_sent_total",
			Help:      "Notifications written to websocket clients by category.",
		}, []string{"category"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "cryoview_devserver",
			Name:      "websocket_clients",
			Help:      "Connected notification clients.",
		}),
		conns: make(map[*websocket.Conn]struct{}),
		done:  make(chan struct{}),
	}
	s.registry.MustRegister(s.requests, s.notifications, s.clients,
		prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	return s
}

// SetEngine sets the collector engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// Registry exposes the server's metrics registry.
func (s *Server) Registry() *prometheus.Registry { return s.registry }

// Handler builds the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET "+api.HealthPath, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET "+api.NotificationsPath, s.handleNotifications)
	mux.HandleFunc("GET /api/devserver/config", s.handleGetConfig)

	p := api.APIPrefix
	mux.HandleFunc("GET "+p+"/targets", s.handleTargets)
	mux.HandleFunc("GET "+p+"/targets/{jvm}/recordings", s.handleRecordings)
	mux.HandleFunc("POST "+p+"/targets/{jvm}/recordings", s.handleStartRecording)
	mux.HandleFunc("PATCH "+p+"/targets/{jvm}/recordings/{name}", s.handlePatchRecording)
	mux.HandleFunc("DELETE "+p+"/targets/{jvm}/recordings/{name}", s.handleDeleteRecording)
	mux.HandleFunc("PUT "+p+"/targets/{jvm}/recordings/{name}/metadata/labels", s.handleLabels)
	mux.HandleFunc("GET "+p+"/targets/{jvm}/threaddumps", s.handleThreadDumps)
	mux.HandleFunc("POST "+p+"/targets/{jvm}/threaddumps", s.handleCreateThreadDump)
	mux.HandleFunc("DELETE "+p+"/targets/{jvm}/threaddumps/{id}", s.handleDeleteThreadDump)
	mux.HandleFunc("GET "+p+"/targets/{jvm}/heapdumps", s.handleHeapDumps)
	mux.HandleFunc("POST "+p+"/targets/{jvm}/heapdumps", s.handleCreateHeapDump)
	mux.HandleFunc("DELETE "+p+"/targets/{jvm}/heapdumps/{id}", s.handleDeleteHeapDump)
	mux.HandleFunc("GET "+p+"/archives", s.handleArchives)
	mux.HandleFunc("GET "+p+"/archives/summary", s.handleArchiveSummary)
	mux.HandleFunc("DELETE "+p+"/archives/{name}", s.handleDeleteArchive)
	mux.HandleFunc("GET "+p+"/event_templates", s.handleTemplates)
	mux.HandleFunc("POST "+p+"/event_templates", s.handleUploadTemplate)
	mux.HandleFunc("DELETE "+p+"/event_templates/{name}", s.handleDeleteTemplate)
	mux.HandleFunc("GET "+p+"/rules", s.handleRules)
	mux.HandleFunc("POST "+p+"/rules", s.handleCreateRule)
	mux.HandleFunc("PATCH "+p+"/rules/{name}", s.handlePatchRule)
	mux.HandleFunc("DELETE "+p+"/rules/{name}", s.handleDeleteRule)

	return s.instrument(s.authenticate(mux))
}

// ListenAndServe serves on addr. It blocks until the server stops or fails.
func (s *Server) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Serve accepts connections on l.
func (s *Server) Serve(l net.Listener) error {
	s.server = &http.Server{
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("addr", l.Addr().String()).Info("Development server listening")
	return s.server.Serve(l)
}

// Shutdown gracefully stops the server and disconnects notification clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	s.once.Do(func() { close(s.done) })
	s.DropClients()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// DropClients closes every notification connection. Clients are expected
// to reconnect.
func (s *Server) DropClients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.conns)
	for c := range s.conns {
		c.Close()
		delete(s.conns, c)
	}
	return n
}

func (s *Server) store() *store.Store {
	return s.engine.Store()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(route, fmt.Sprint(rec.status)).Inc()
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || !strings.HasPrefix(r.URL.Path, "/api/") {
			next.ServeHTTP(w, r)
			return
		}
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
			s.logger.WithField("path", r.URL.Path).Debug("Rejected unauthenticated request")
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing or invalid bearer token"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errors.GetCode(err) {
	case errors.ErrCodeNotFound:
		status = http.StatusNotFound
	case errors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	}
	msg := err.Error()
	if ge, ok := errors.As(err); ok {
		msg = ge.Message
	}
	writeJSON(w, status, map[string]string{"message": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid request body: " + err.Error()})
		return false
	}
	return true
}

// reply writes v, or the error when err is set.
func reply(w http.ResponseWriter, status int, v interface{}, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, status, v)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.runningConfig)
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store().Targets())
}

func (s *Server) handleRecordings(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store().Recordings(r.PathValue("jvm"))
	reply(w, http.StatusOK, recs, err)
}

func (s *Server) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	var opts api.RecordingOptions
	if !decodeBody(w, r, &opts) {
		return
	}
	rec, err := s.store().StartRecording(r.PathValue("jvm"), opts)
	reply(w, http.StatusCreated, rec, err)
}

func (s *Server) handlePatchRecording(w http.ResponseWriter, r *http.Request) {
	var patch api.RecordingPatch
	if !decodeBody(w, r, &patch) {
		return
	}
	jvm, name := r.PathValue("jvm"), r.PathValue("name")
	switch strings.ToUpper(patch.Operation) {
	case api.OperationStop:
		reply(w, http.StatusNoContent, nil, s.store().StopRecording(jvm, name))
	case api.OperationSave:
		archived, err := s.store().ArchiveRecording(jvm, name)
		reply(w, http.StatusOK, archived, err)
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "unknown operation " + patch.Operation})
	}
}

func (s *Server) handleDeleteRecording(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusNoContent, nil, s.store().DeleteRecording(r.PathValue("jvm"), r.PathValue("name")))
}

func (s *Server) handleLabels(w http.ResponseWriter, r *http.Request) {
	var labels []models.Label
	if !decodeBody(w, r, &labels) {
		return
	}
	reply(w, http.StatusNoContent, nil, s.store().SetRecordingLabels(r.PathValue("jvm"), r.PathValue("name"), labels))
}

func (s *Server) handleThreadDumps(w http.ResponseWriter, r *http.Request) {
	dumps, err := s.store().ThreadDumps(r.PathValue("jvm"))
	reply(w, http.StatusOK, dumps, err)
}

func (s *Server) handleCreateThreadDump(w http.ResponseWriter, r *http.Request) {
	d, err := s.store().CreateThreadDump(r.PathValue("jvm"))
	reply(w, http.StatusAccepted, d, err)
}

func (s *Server) handleDeleteThreadDump(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusNoContent, nil, s.store().DeleteThreadDump(r.PathValue("jvm"), r.PathValue("id")))
}

func (s *Server) handleHeapDumps(w http.ResponseWriter, r *http.Request) {
	dumps, err := s.store().HeapDumps(r.PathValue("jvm"))
	reply(w, http.StatusOK, dumps, err)
}

func (s *Server) handleCreateHeapDump(w http.ResponseWriter, r *http.Request) {
	d, err := s.store().CreateHeapDump(r.PathValue("jvm"))
	reply(w, http.StatusAccepted, d, err)
}

func (s *Server) handleDeleteHeapDump(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusNoContent, nil, s.store().DeleteHeapDump(r.PathValue("jvm"), r.PathValue("id")))
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store().Archives(r.URL.Query().Get("jvmId")))
}

func (s *Server) handleArchiveSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store().ArchiveSummaries())
}

func (s *Server) handleDeleteArchive(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusNoContent, nil, s.store().DeleteArchive(r.URL.Query().Get("jvmId"), r.PathValue("name")))
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store().Templates())
}

func (s *Server) handleUploadTemplate(w http.ResponseWriter, r *http.Request) {
	var t models.EventTemplate
	if !decodeBody(w, r, &t) {
		return
	}
	reply(w, http.StatusCreated, nil, s.store().AddTemplate(t))
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusNoContent, nil, s.store().DeleteTemplate(r.PathValue("name")))
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.store().Rules())
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if !decodeBody(w, r, &rule) {
		return
	}
	created, err := s.store().CreateRule(rule)
	reply(w, http.StatusCreated, created, err)
}

func (s *Server) handlePatchRule(w http.ResponseWriter, r *http.Request) {
	var patch api.RulePatch
	if !decodeBody(w, r, &patch) {
		return
	}
	reply(w, http.StatusNoContent, nil, s.store().SetRuleEnabled(r.PathValue("name"), patch.Enabled))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	reply(w, http.StatusNoContent, nil, s.store().DeleteRule(r.PathValue("name")))
}

// handleNotifications upgrades to a websocket and streams every store
// notification as an envelope until either side closes.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Debug("Websocket upgrade failed")
		return
	}
	ch := s.store().Subscribe()
	defer s.store().Unsubscribe(ch)

	s.mu.Lock()
	s.conns[conn] = struct{}{}
	s.mu.Unlock()
	s.clients.Inc()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		s.clients.Dec()
		conn.Close()
	}()
	s.logger.Debug("Notification client connected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			s.logger.Debug("Notification client disconnected")
			return
		case <-s.done:
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			data, err := notify.Encode(n.Category, 0, n.Payload)
			if err != nil {
				s.logger.WithError(err).Error("Failed to encode notification")
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			s.notifications.WithLabelValues(n.Category).Inc()
		}
	}
}
