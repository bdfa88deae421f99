package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bashclaw/bashclaw/internal/agent"
	"github.com/bashclaw/bashclaw/internal/config"
	"github.com/bashclaw/bashclaw/internal/hooks"
	"github.com/bashclaw/bashclaw/internal/providers"
	"github.com/bashclaw/bashclaw/internal/sessions"
	"github.com/bashclaw/bashclaw/internal/tools"
)

// fakeProvider always returns a fixed reply, for exercising gateway
// routes without a real network call.
type fakeProvider struct{ reply string }

func (p *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: p.reply}, nil
}
func (p *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return p.Chat(ctx, req)
}
func (p *fakeProvider) DefaultModel() string { return "fake-model" }
func (p *fakeProvider) Name() string         { return "fake" }

func newTestServer(t *testing.T, authToken string) *Server {
	t.Helper()
	cfg := config.InitDefault(filepath.Join(t.TempDir(), "config.json"))
	if err := cfg.Set("agents.list", []any{
		map[string]any{"id": "main", "provider": "fake"},
	}); err != nil {
		t.Fatal(err)
	}
	if authToken != "" {
		if err := cfg.Set("gateway.auth.token", authToken); err != nil {
			t.Fatal(err)
		}
	}

	store, err := sessions.Open(t.TempDir(), sessions.ScopePerChannelPeer)
	if err != nil {
		t.Fatalf("open sessions: %v", err)
	}
	disp, err := hooks.New(t.TempDir())
	if err != nil {
		t.Fatalf("open hooks: %v", err)
	}

	eng := &agent.Engine{
		Config:        cfg,
		Sessions:      store,
		Tools:         tools.NewRegistry(),
		Hooks:         disp,
		Providers:     map[string]providers.Provider{"fake": &fakeProvider{reply: "hello from agent"}},
		WorkspaceRoot: func(string) string { return t.TempDir() },
	}

	return NewServer(Config{
		Store:    cfg,
		Engine:   eng,
		Sessions: store,
		Hooks:    disp,
	})
}

func doRequest(s *Server, method, path string, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.middleware(s.mux).ServeHTTP(w, req)
	return w
}

func TestHandleHealth_NoAuthRequired(t *testing.T) {
	s := newTestServer(t, "secret")
	w := doRequest(s, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	s := newTestServer(t, "secret")
	w := doRequest(s, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuth_BearerTokenAccepted(t *testing.T) {
	s := newTestServer(t, "secret")
	w := doRequest(s, http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{
		"Authorization": "Bearer secret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestAuth_RawTokenAccepted(t *testing.T) {
	s := newTestServer(t, "secret")
	w := doRequest(s, http.MethodPost, "/api/chat", `{"message":"hi"}`, map[string]string{
		"Authorization": "secret",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandleChat_RoundTrip(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodPost, "/api/chat", `{"message":"hi","agent":"main"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp["reply"] != "hello from agent" {
		t.Errorf("unexpected reply: %v", resp)
	}
}

func TestHandleChat_EmptyMessageIsBadRequest(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodPost, "/api/chat", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestCORS_WildcardWhenNoOriginsConfigured(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodGet, "/health", "", nil)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard CORS, got %q", got)
	}
}

func TestCORS_EchoesMatchingOriginOnly(t *testing.T) {
	s := newTestServer(t, "")
	if err := s.cfg.Set("gateway.cors.origins", []any{"https://allowed.example"}); err != nil {
		t.Fatal(err)
	}

	w := doRequest(s, http.MethodGet, "/health", "", map[string]string{"Origin": "https://allowed.example"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://allowed.example" {
		t.Errorf("expected echoed origin, got %q", got)
	}

	w2 := doRequest(s, http.MethodGet, "/health", "", map[string]string{"Origin": "https://evil.example"})
	if got := w2.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("expected no CORS header for mismatched origin, got %q", got)
	}
}

func TestHandleUI_PathTraversalRejected(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodGet, "/ui/../../etc/passwd", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatCompletions_StreamingRejected(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4","stream":true,"messages":[{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChatCompletions_NoUserMessageRejected(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4","messages":[{"role":"system","content":"hi"}]}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestChatCompletions_WithSystemMessageReturnsCompletion(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodPost, "/v1/chat/completions", `{"model":"gpt-4","messages":[{"role":"system","content":"be terse"},{"role":"user","content":"hi"}]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp chatCompletionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("expected chatcmpl- id prefix, got %q", resp.ID)
	}
	if len(resp.Choices) != 1 || resp.Choices[0].FinishReason != "stop" {
		t.Errorf("unexpected choices: %+v", resp.Choices)
	}
}

func TestResolveAgentFromModel(t *testing.T) {
	cases := map[string]string{
		"agent:researcher": "researcher",
		"gpt-4":            "main",
		"claude-3-5-sonnet": "main",
		"gemini-pro":       "main",
		"":                 "main",
		"custom-agent-id":  "custom-agent-id",
	}
	for model, want := range cases {
		if got := resolveAgentFromModel(model); got != want {
			t.Errorf("resolveAgentFromModel(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestHandleModels_ListsConfiguredAgents(t *testing.T) {
	s := newTestServer(t, "")
	w := doRequest(s, http.MethodGet, "/v1/models", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp struct {
		Data []modelEntry `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 1 || resp.Data[0].ID != "agent:main" {
		t.Errorf("unexpected models list: %+v", resp.Data)
	}
}
