package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"callscope/internal/config"
	"callscope/internal/ingest"
	"callscope/internal/logging"
	"callscope/internal/report"
	"callscope/internal/services"
	"callscope/internal/stats"
	"callscope/internal/store"
)

const (
	healthPath          = "/api/health"
	maxHistoryLimit     = 200
	maxListLimit        = 500
	defaultListLimit    = 50
	shutdownGrace       = 5 * time.Second
	defaultWriteTimeout = 30 * time.Second
	analysisWriteSlack  = 30 * time.Second
	defaultAnalysisTime = 3 * time.Minute
)

// Syncer runs one synchronization.
type Syncer interface {
	Run(ctx context.Context, opts ingest.Options) (ingest.Outcome, error)
}

// Reports answers read-side queries.
type Reports interface {
	Analysis(ctx context.Context, q report.Query) (report.Analysis, error)
	Dashboard(ctx context.Context, q report.Query) (stats.Dashboard, error)
	SyncHistory(ctx context.Context, limit int) ([]store.SyncRun, error)
	Conversations(ctx context.Context, filter store.ListFilter) ([]store.Conversation, error)
	DefaultTimeframe() string
	Now() time.Time
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	bind    string
	logger  *slog.Logger
	syncer  Syncer
	reports Reports
	pinger  Pinger
	model   string
	started time.Time

	writeTimeout  time.Duration
	analysisWrite time.Duration

	baseCtx  context.Context
	listener net.Listener
	server   *http.Server
	handler  http.Handler
}

// Option configures a Server.
type Option func(*Server)

// WithPinger enables the database check in /api/health.
func WithPinger(p Pinger) Option {
	return func(s *Server) { s.pinger = p }
}

// WithModelName is reported by /api/health.
func WithModelName(name string) Option {
	return func(s *Server) { s.model = name }
}

// WithWriteTimeout overrides the write timeout of ordinary routes. Sync and
// analysis responses manage their own deadlines.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.writeTimeout = timeout
		}
	}
}

// NewServer wires the routes. Start must be called to listen.
func NewServer(cfg *config.Config, syncer Syncer, reports Reports, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	srv := &Server{
		logger:  logging.NewComponentLogger(logger, "api-server"),
		syncer:  syncer,
		reports: reports,
		started: time.Now(),
		baseCtx: context.Background(),

		writeTimeout:  defaultWriteTimeout,
		analysisWrite: defaultAnalysisTime,
	}
	var token string
	if cfg != nil {
		srv.bind = strings.TrimSpace(cfg.Paths.APIBind)
		token = cfg.Paths.APIToken
		if budget := cfg.AnalysisTimeout(); budget > 0 {
			srv.analysisWrite = budget + analysisWriteSlack
		}
	}
	for _, opt := range opts {
		opt(srv)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/sync", srv.handleSync)
	mux.HandleFunc("/api/sync/history", srv.handleSyncHistory)
	mux.HandleFunc("/api/analysis", srv.handleAnalysis)
	mux.HandleFunc("/api/dashboard-stats", srv.handleDashboard)
	mux.HandleFunc("/api/conversations", srv.handleConversations)
	mux.HandleFunc(healthPath, srv.handleHealth)
	srv.handler = requestMiddleware(srv.logger, authMiddleware(token, mux))

	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      srv.writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured bind address and serves until ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if s.bind == "" {
		return errors.New("api bind address is empty")
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.baseCtx = ctx

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	full, err := parseBool(r.URL.Query().Get("full_sync"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid full_sync", err.Error())
		return
	}

	// A sync runs as long as the source needs; the outcome must still reach
	// the caller. A dropped client connection does not abort the run; server
	// shutdown does.
	s.setWriteDeadline(w, time.Time{})
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	stop := context.AfterFunc(s.baseCtx, cancel)
	defer stop()

	outcome, err := s.syncer.Run(ctx, ingest.Options{Full: full})
	switch {
	case errors.Is(err, ingest.ErrSyncInProgress):
		s.writeError(w, http.StatusConflict, "sync already in progress", err.Error())
	case err != nil:
		s.writeJSON(w, services.HTTPStatus(err), outcome)
	default:
		s.writeJSON(w, http.StatusOK, outcome)
	}
}

func (s *Server) handleSyncHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"), 20, maxHistoryLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	runs, err := s.reports.SyncHistory(r.Context(), limit)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SyncHistoryResponse{Runs: FromSyncRuns(runs)})
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	query := r.URL.Query()
	q, err := report.AnalysisQuery(query.Get("start_date"), query.Get("end_date"), query.Get("agent_id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.setWriteDeadline(w, time.Now().Add(s.analysisWrite))
	result, err := s.reports.Analysis(r.Context(), q)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	cacheState := "miss"
	if result.CacheHit {
		cacheState = "hit"
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Cache", cacheState)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(result.Data); err != nil {
		s.logger.Warn("failed to write analysis response", logging.Error(err))
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	query := r.URL.Query()
	q, err := report.DashboardQuery(
		query.Get("timeframe"),
		query.Get("start_date"),
		query.Get("end_date"),
		query.Get("agent_id"),
		s.reports.DefaultTimeframe(),
		s.reports.Now(),
	)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	dashboard, err := s.reports.Dashboard(r.Context(), q)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, dashboard)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	query := r.URL.Query()
	limit, err := parseLimit(query.Get("limit"), defaultListLimit, maxListLimit)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid limit", err.Error())
		return
	}
	convs, err := s.reports.Conversations(r.Context(), store.ListFilter{
		AgentID: strings.TrimSpace(query.Get("agent_id")),
		Limit:   limit,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ConversationListResponse{Conversations: FromConversations(convs)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}
	health := Health{
		Status:        "ok",
		Database:      "unknown",
		Model:         s.model,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
	}
	status := http.StatusOK
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			health.Status = "degraded"
			health.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			health.Database = "ok"
		}
	}
	s.writeJSON(w, status, health)
}

// setWriteDeadline replaces the server-wide write timeout for one response.
// A zero deadline means none.
func (s *Server) setWriteDeadline(w http.ResponseWriter, deadline time.Time) {
	err := http.NewResponseController(w).SetWriteDeadline(deadline)
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		s.logger.Debug("write deadline not adjusted", logging.Error(err))
	}
}

func parseBool(value string) (bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return false, nil
	}
	return strconv.ParseBool(value)
}

func parseLimit(value string, fallback, ceiling int) (int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("limit must be a positive integer, got %q", value)
	}
	return min(limit, ceiling), nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message, details string) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Details: details})
}

// writeFailure maps a classified error to its status code.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	status := services.HTTPStatus(err)
	message := http.StatusText(status)
	switch {
	case errors.Is(err, services.ErrValidation):
		message = "invalid request"
	case errors.Is(err, context.Canceled):
		message = "request cancelled"
	}
	s.writeError(w, status, strings.ToLower(message), err.Error())
}

func writeErrorBody(w http.ResponseWriter, status int, message, details string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: message, Details: details})
}
