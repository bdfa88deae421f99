// Package gateway implements the single-port HTTP/1.1 surface (§4.H):
// chat dispatch into the agent engine, an OpenAI-compatible completions
// shim, channel-send passthrough, config introspection, and read-only
// debug routes over sessions/cron/hooks state.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/channels"
	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/cron"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/sessions"
)

const defaultMaxBodySize = 10 * 1024 * 1024

// exemptPaths never require an Authorization match (§4.H). /ui/ is
// checked by prefix separately.
var exemptPaths = map[string]bool{
	"/health":     true,
	"/api/status": true,
}

// Server is the gateway's single-port HTTP/1.1 surface. It holds
// references into already-running subsystems (engine, channel manager,
// cron, hooks, sessions) rather than owning them: cmd wiring constructs
// and starts those once, then hands them to NewServer.
type Server struct {
	cfg     *config.Store
	engine  *agent.Engine
	manager *channels.Manager
	cronRun *cron.Runner
	cronStr *cron.Store
	hooksD  *hooks.Dispatcher
	sess    *sessions.Store
	uiDir   string

	startedAt   time.Time
	rateLimiter *channels.WebhookRateLimiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// Config bundles the subsystems NewServer wires into HTTP routes. A nil
// field just means the routes that depend on it answer 500 (an Internal
// error) instead of panicking (e.g. no cron runner configured for this
// deployment).
type Config struct {
	Store     *config.Store
	Engine    *agent.Engine
	Manager   *channels.Manager
	CronRun   *cron.Runner
	CronStore *cron.Store
	Hooks     *hooks.Dispatcher
	Sessions  *sessions.Store
	UIDir     string
}

// NewServer builds a Server from already-running subsystems. Call
// ListenAndServe to start accepting connections.
func NewServer(c Config) *Server {
	s := &Server{
		cfg:         c.Store,
		engine:      c.Engine,
		manager:     c.Manager,
		cronRun:     c.CronRun,
		cronStr:     c.CronStore,
		hooksD:      c.Hooks,
		sess:        c.Sessions,
		uiDir:       c.UIDir,
		startedAt:   time.Now(),
		rateLimiter: channels.NewWebhookRateLimiter(),
	}

	s.mux = http.NewServeMux()
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/status", s.handleStatus)
	s.mux.HandleFunc("/api/chat", s.handleChat)
	s.mux.HandleFunc("/api/message/send", s.handleMessageSend)
	s.mux.HandleFunc("/api/config", s.handleConfig)
	s.mux.HandleFunc("/api/config/set", s.handleConfigSet)
	s.mux.HandleFunc("/v1/chat/completions", s.handleChatCompletions)
	s.mux.HandleFunc("/v1/models", s.handleModels)
	s.mux.HandleFunc("/api/sessions", s.handleSessions)
	s.mux.HandleFunc("/api/cron/jobs", s.handleCronJobs)
	s.mux.HandleFunc("/api/cron/stuck/remove", s.handleCronRemoveStuck)
	s.mux.HandleFunc("/api/hooks", s.handleHooks)
	s.mux.HandleFunc("/ui/", s.handleUI)

	return s
}

func (s *Server) maxBodySize() int64 {
	n := s.cfg.GetInt("gateway.maxBodySize", defaultMaxBodySize)
	if n <= 0 {
		return defaultMaxBodySize
	}
	return int64(n)
}

// ListenAndServe starts the HTTP server on the configured port and
// blocks until ctx is cancelled, at which point it drains in-flight
// requests via http.Server.Shutdown with a bounded grace period —
// the same signal.Notify-driven graceful-stop pattern the teacher's
// own cmd/gateway.go used for its WebSocket server.
func (s *Server) ListenAndServe(ctx context.Context) error {
	port := s.cfg.GetInt("gateway.port", 8780)
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.middleware(s.mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "port", port)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("gateway shutting down")
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("gateway shutdown did not complete cleanly", "error", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// middleware wraps next with the connection-level concerns common to
// every route, in this order: CORS headers (OPTIONS is answered 200 here),
// body-size enforcement, a rate limit keyed by the Authorization header or
// else the remote address (exempt paths skip it), auth, and rejection of
// /ui/ paths containing "..", so a too-large, rate-limited or
// unauthenticated request never reaches route logic.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		applyCORS(s.cfg, w, r)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		if r.ContentLength > s.maxBodySize() {
			writeError(w, bashclawerr.New(bashclawerr.ResourceExhausted, "request body exceeds maxBodySize"))
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodySize())

		if !s.isExempt(r.URL.Path) && !s.rateLimiter.Allow(clientKey(r)) {
			writeError(w, bashclawerr.New(bashclawerr.ResourceExhausted, "rate limit exceeded"))
			return
		}

		if !s.authorized(r) {
			writeError(w, bashclawerr.New(bashclawerr.AuthFailed, "invalid or missing authorization"))
			return
		}

		if strings.HasPrefix(r.URL.Path, "/ui/") && strings.Contains(r.URL.Path, "..") {
			writeError(w, bashclawerr.New(bashclawerr.ValidationError, "path traversal"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		return auth
	}
	return r.RemoteAddr
}

func (s *Server) isExempt(path string) bool {
	return exemptPaths[path] || strings.HasPrefix(path, "/ui/")
}

// authorized implements §4.H's auth rule: exempt paths and OPTIONS always
// pass; otherwise, if gateway.auth.token is set, require a matching
// Bearer token (or a raw token match for non-browser callers).
func (s *Server) authorized(r *http.Request) bool {
	if r.Method == http.MethodOptions || s.isExempt(r.URL.Path) {
		return true
	}
	token := s.cfg.GetString("gateway.auth.token", "")
	if token == "" {
		return true
	}
	got := r.Header.Get("Authorization")
	if got == "" {
		return false
	}
	return got == token || got == "Bearer "+token
}

// applyCORS implements §4.H's CORS rule: absent gateway.cors.origins ⇒
// wildcard; present ⇒ echo the Origin header only on an exact match.
func applyCORS(cfg *config.Store, w http.ResponseWriter, r *http.Request) {
	raw := cfg.Get("gateway.cors.origins", nil)
	origins := stringList(raw)
	if len(origins) == 0 {
		w.Header().Set("Access-Control-Allow-Origin", "*")
	} else {
		origin := r.Header.Get("Origin")
		for _, o := range origins {
			if o == origin {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				break
			}
		}
	}
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func stringList(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// --- route handlers --------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"status":  "ok",
		"started": s.startedAt.Format(time.RFC3339),
	}
	if s.manager != nil {
		status["channels"] = s.manager.GetStatus()
	}
	if s.cfg != nil {
		status["agents"] = s.cfg.AgentIDs()
	}
	writeJSON(w, http.StatusOK, status)
}

type chatRequest struct {
	Message string `json:"message"`
	Agent   string `json:"agent"`
	Channel string `json:"channel"`
	Sender  string `json:"sender"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "method not allowed"))
		return
	}
	if s.engine == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "agent engine not configured"))
		return
	}

	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.ValidationError, "invalid request body", err))
		return
	}
	if req.Message == "" {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "message is required"))
		return
	}
	if req.Agent == "" {
		req.Agent = "main"
	}
	if req.Channel == "" {
		req.Channel = "cli"
	}
	if req.Sender == "" {
		req.Sender = "api"
	}

	reply, err := s.engine.Run(r.Context(), req.Agent, req.Message, req.Channel, req.Sender, false)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeJSON(w, bashclawerr.HTTPStatus(bashclawerr.Timeout), map[string]any{
				"error":  "timeout",
				"status": "timeout",
			})
			return
		}
		writeError(w, bashclawerr.Wrap(bashclawerr.Internal, "agent run failed", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reply": reply, "agent": req.Agent})
}

type messageSendRequest struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chatId"`
	Content string `json:"content"`
}

func (s *Server) handleMessageSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "method not allowed"))
		return
	}
	if s.manager == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "channel manager not configured"))
		return
	}

	var req messageSendRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.ValidationError, "invalid request body", err))
		return
	}
	if req.Channel == "" || req.ChatID == "" {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "channel and chatId are required"))
		return
	}

	if err := s.manager.SendToChannel(r.Context(), req.Channel, req.ChatID, req.Content); err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.NotFound, "send failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sent": true})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if s.cfg == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "config store not configured"))
		return
	}
	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, s.cfg.Snapshot())
		return
	}
	if r.Method == http.MethodPost {
		s.handleConfigSet(w, r)
		return
	}
	writeError(w, bashclawerr.New(bashclawerr.ValidationError, "method not allowed"))
}

type configSetRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

func (s *Server) handleConfigSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "method not allowed"))
		return
	}
	if s.cfg == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "config store not configured"))
		return
	}

	var req configSetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.ValidationError, "invalid request body", err))
		return
	}
	if req.Path == "" {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "path is required"))
		return
	}
	if err := s.cfg.Set(req.Path, req.Value); err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.ConfigInvalid, "config set failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.sess == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "session store not configured"))
		return
	}
	agentID := r.URL.Query().Get("agent")
	infos, err := s.sess.ListAgentSessions(agentID)
	if err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.Internal, "list sessions failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": infos})
}

func (s *Server) handleCronJobs(w http.ResponseWriter, _ *http.Request) {
	if s.cronStr == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "cron store not configured"))
		return
	}
	jobs, err := s.cronStr.List()
	if err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.Internal, "list cron jobs failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

type cronRemoveStuckRequest struct {
	ID string `json:"id"`
}

// handleCronRemoveStuck exposes cron.Runner.RemoveStuck as an operator
// escape hatch alongside the automatic stuck-run cleaner (SPEC_FULL.md
// §3.G).
func (s *Server) handleCronRemoveStuck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "method not allowed"))
		return
	}
	if s.cronRun == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "cron runner not configured"))
		return
	}
	var req cronRemoveStuckRequest
	if err := decodeJSON(r, &req); err != nil || req.ID == "" {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "id is required"))
		return
	}
	removed, err := s.cronRun.RemoveStuck(req.ID)
	if err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.Internal, "remove stuck failed", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"removed": removed})
}

func (s *Server) handleHooks(w http.ResponseWriter, _ *http.Request) {
	if s.hooksD == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "hook dispatcher not configured"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"hooks": s.hooksD.List()})
}

// handleUI serves static files from the configured UI directory,
// refusing any path containing ".." with 400 per §4.H.
func (s *Server) handleUI(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(r.URL.Path, "/ui/")
	if strings.Contains(rel, "..") {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "path traversal"))
		return
	}
	if s.uiDir == "" {
		http.NotFound(w, r)
		return
	}
	if rel == "" {
		rel = "index.html"
	}
	path := filepath.Join(s.uiDir, filepath.FromSlash(rel))
	if !strings.HasPrefix(path, filepath.Clean(s.uiDir)) {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "path traversal"))
		return
	}
	if _, err := os.Stat(path); err != nil {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, path)
}

// --- helpers -----------------------------------------------------------

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	kind := bashclawerr.KindOf(err)
	status := bashclawerr.HTTPStatus(kind)
	writeJSON(w, status, map[string]any{"error": err.Error()})
}
