package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/howard-nolan/chatproxy/internal/config"
	"github.com/howard-nolan/chatproxy/internal/logging"
	"github.com/howard-nolan/chatproxy/internal/metrics"
	"github.com/howard-nolan/chatproxy/internal/provider"
	"github.com/howard-nolan/chatproxy/internal/store"
)

// fakeUpstream answers every provider call with a fixed status and body
// and counts how often it was hit.
type fakeUpstream struct {
	*httptest.Server
	calls    atomic.Int32
	lastPath atomic.Value
	lastBody atomic.Value
}

func newFakeUpstream(t *testing.T, status int, body string) *fakeUpstream {
	t.Helper()
	u := &fakeUpstream{}
	u.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u.calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		u.lastPath.Store(r.URL.Path)
		u.lastBody.Store(string(b))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(u.Close)
	return u
}

type testEnv struct {
	srv      *Server
	upstream *fakeUpstream
	store    *store.Store
	logBuf   *bytes.Buffer
}

type envOptions struct {
	upstreamStatus int
	upstreamBody   string
	noStore        bool
	staticDir      string
	maxBody        int64
}

func newTestEnv(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	if o.upstreamStatus == 0 {
		o.upstreamStatus = http.StatusOK
		o.upstreamBody = `{"choices":[{"message":{"content":"Hello from upstream"}}]}`
	}
	if o.maxBody == 0 {
		o.maxBody = config.DefaultMaxBodyBytes
	}

	up := newFakeUpstream(t, o.upstreamStatus, o.upstreamBody)

	cfg := &config.Config{
		Server: config.ServerConfig{
			StaticDir:    o.staticDir,
			MaxBodyBytes: o.maxBody,
			DefaultModel: config.DefaultModel,
		},
	}

	sel := provider.NewSelector(
		provider.NewGeminiAdapter("gemini-key", up.URL),
		provider.NewOpenRouterAdapter("or-key", up.URL, config.DefaultReferer, config.DefaultTitle),
		provider.NewDeepSeekAdapter("ds-key", up.URL),
		provider.NewGroqAdapter("groq-key", up.URL),
	)
	m := metrics.New()
	inv := provider.NewInvoker(up.Client(), provider.WithMetrics(m))

	st := store.New(store.WithMetrics(m))
	if !o.noStore {
		mr := miniredis.RunT(t)
		st.Attach(store.NewRedisBackend(redis.NewClient(&redis.Options{Addr: mr.Addr()})))
		t.Cleanup(func() { _ = st.Close(context.Background()) })
	}

	logBuf := &bytes.Buffer{}
	rl := logging.NewRequestLog(zapSink{logBuf})

	return &testEnv{
		srv:      New(cfg, sel, inv, st, WithMetrics(m), WithRequestLog(rl)),
		upstream: up,
		store:    st,
		logBuf:   logBuf,
	}
}

// zapSink adapts a buffer to zapcore.WriteSyncer.
type zapSink struct{ *bytes.Buffer }

func (zapSink) Sync() error { return nil }

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.srv.ServeHTTP(rec, req)
	return rec
}

type response struct {
	Success   bool            `json:"success"`
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Timestamp string          `json:"timestamp"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) response {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	_, err := time.Parse(time.RFC3339, resp.Timestamp)
	assert.NoError(t, err, "timestamp must be RFC 3339")
	return resp
}

// ---------------------------------------------------------------------------
// /api.php
// ---------------------------------------------------------------------------

func TestChatDefaultAgentUsesOpenRouter(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/api.php", `{"text":"  Hello  "}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Success", resp.Message)
	assert.JSONEq(t, `"Hello from upstream"`, string(resp.Data))

	assert.Equal(t, int32(1), env.upstream.calls.Load())
	assert.Equal(t, "/api/v1/chat/completions", env.upstream.lastPath.Load())

	var sent struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(env.upstream.lastBody.Load().(string)), &sent))
	assert.Equal(t, config.DefaultModel, sent.Model)
	require.Len(t, sent.Messages, 2)
	assert.Equal(t, provider.BaseInstruction, sent.Messages[0].Content)
	assert.Equal(t, "Hello", sent.Messages[1].Content, "text is trimmed")

	assert.Contains(t, env.logBuf.String(), "Action: generic_chat | Status: Success | Input: Hello... | Result Length: 19")
}

func TestChatGeminiAgentWithAction(t *testing.T) {
	env := newTestEnv(t, envOptions{
		upstreamStatus: http.StatusOK,
		upstreamBody:   `{"candidates":[{"content":{"parts":[{"text":"- point"}]}}]}`,
	})

	rec := env.do(t, http.MethodPost, "/api.php", `{"text":"notes","action":"bullet_points","agent":"gemini-2.0-flash"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.JSONEq(t, `"- point"`, string(resp.Data))
	assert.Equal(t, "/v1beta/models/gemini-2.0-flash:generateContent", env.upstream.lastPath.Load())
	assert.Contains(t, env.upstream.lastBody.Load().(string), "bulleted list")
}

func TestChatRejectsEmptyTextWithoutCallingUpstream(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, body := range []string{`{"text":""}`, `{"text":"   \n\t "}`, `{}`} {
		rec := env.do(t, http.MethodPost, "/api.php", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "Input text cannot be empty.", resp.Message)
	}
	assert.Zero(t, env.upstream.calls.Load())
}

func TestChatRejectsMalformedJSON(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, body := range []string{``, `not json`, `{"text": 42}`, `{"text":"hi"`} {
		rec := env.do(t, http.MethodPost, "/api.php", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)

		resp := decode(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "Invalid JSON input or server error.", resp.Message)
	}
	assert.Zero(t, env.upstream.calls.Load())
}

func TestChatUpstreamErrorIsNotRetried(t *testing.T) {
	env := newTestEnv(t, envOptions{
		upstreamStatus: http.StatusInternalServerError,
		upstreamBody:   `{"error":"overloaded"}`,
	})

	rec := env.do(t, http.MethodPost, "/api.php", `{"text":"hi","agent":"deepseek-chat"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	resp := decode(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, `DeepSeek API Error: {"error":"overloaded"}`, resp.Message)
	assert.Equal(t, int32(1), env.upstream.calls.Load())
	assert.Contains(t, env.logBuf.String(), "Status: API Error 500")
}

func TestChatParseError(t *testing.T) {
	env := newTestEnv(t, envOptions{upstreamStatus: http.StatusOK, upstreamBody: `<html>`})

	rec := env.do(t, http.MethodPost, "/api.php", `{"text":"hi","agent":"llama"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error parsing AI response", decode(t, rec).Message)
	assert.Contains(t, env.logBuf.String(), "Status: Parse Error")
}

func TestChatNetworkError(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.upstream.Close()

	rec := env.do(t, http.MethodPost, "/api.php", `{"text":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Network error calling AI provider", decode(t, rec).Message)
	assert.Contains(t, env.logBuf.String(), "Status: Network Error")
}

func TestChatBodyTooLarge(t *testing.T) {
	env := newTestEnv(t, envOptions{maxBody: 64})

	rec := env.do(t, http.MethodPost, "/api.php", `{"text":"`+strings.Repeat("x", 100)+`"}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, env.upstream.calls.Load())
}

// ---------------------------------------------------------------------------
// Store endpoints
// ---------------------------------------------------------------------------

func TestStoreEndpointsUnavailable(t *testing.T) {
	env := newTestEnv(t, envOptions{noStore: true})

	for path, body := range map[string]string{
		"/api/save-user":   `{"email":"a@b.c"}`,
		"/api/save-chat":   `{"id":"c1","userId":"u1"}`,
		"/api/get-history": `{"userId":"u1"}`,
		"/api/get-chat":    `{"chatId":"c1","userId":"u1"}`,
	} {
		rec := env.do(t, http.MethodPost, path, body)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)

		resp := decode(t, rec)
		assert.False(t, resp.Success)
		assert.Equal(t, "Database not connected", resp.Message)
	}
}

func TestSaveUser(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/save-user", `{"email":"ada@example.com","name":"Ada","sub":"42"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode(t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "User saved", resp.Message)

	var data struct {
		Result store.UpsertResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &data))
	assert.Equal(t, int64(1), data.Result.UpsertedCount)

	rec = env.do(t, http.MethodPost, "/api/save-user", `{"name":"no email"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing user email", decode(t, rec).Message)
}

func TestSaveChatValidation(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/save-chat", `{"id":"c1","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing chat ID or User ID", decode(t, rec).Message)
}

func TestChatRoundTrip(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	chatID := uuid.NewString()

	saves := []struct {
		id, body string
	}{
		{chatID, `{"id":"` + chatID + `","userId":"u1","title":"First","messages":[{"role":"user","content":"First"}],"timestamp":1000}`},
		{"c-2", `{"id":"c-2","userId":"u1","title":"Second","messages":[{"role":"user","content":"Second"}],"timestamp":3000}`},
		{"c-3", `{"id":"c-3","userId":"u2","title":"Other","messages":[],"timestamp":2000}`},
	}
	for _, s := range saves {
		rec := env.do(t, http.MethodPost, "/api/save-chat", s.body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Chat saved", decode(t, rec).Message)
	}

	rec := env.do(t, http.MethodPost, "/api/get-history", `{"userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":[
		{"id":"c-2","title":"Second","timestamp":3000},
		{"id":"`+chatID+`","title":"First","timestamp":1000}
	]}`, string(decode(t, rec).Data))

	rec = env.do(t, http.MethodPost, "/api/get-chat", `{"chatId":"`+chatID+`","userId":"u1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"chat":{"id":"`+chatID+`","userId":"u1","title":"First","messages":[{"role":"user","content":"First"}],"timestamp":1000}}`,
		string(decode(t, rec).Data))

	rec = env.do(t, http.MethodPost, "/api/get-chat", `{"chatId":"`+chatID+`","userId":"u2"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Chat not found", decode(t, rec).Message)
}

func TestGetHistoryEmptyIsArray(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	rec := env.do(t, http.MethodPost, "/api/get-history", `{"userId":"nobody"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"history":[]}`, string(decode(t, rec).Data))
}

// ---------------------------------------------------------------------------
// Routing, CORS, static files
// ---------------------------------------------------------------------------

func TestPreflight(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	for _, path := range []string{"/api.php", "/api/save-chat", "/anything"} {
		req := httptest.NewRequest(http.MethodOptions, path, nil)
		req.Header.Set("Origin", "http://example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodPost)
		rec := httptest.NewRecorder()
		env.srv.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code, path)
		assert.Empty(t, rec.Body.String())
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSHeaderOnAPIResponse(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	req := httptest.NewRequest(http.MethodPost, "/api/get-history", strings.NewReader(`{"userId":"u"}`))
	req.Header.Set("Origin", "http://example.com")
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestStaticFallthrough(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chat</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "script.js"), []byte("console.log(1)"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("SECRET=1"), 0o644))

	env := newTestEnv(t, envOptions{staticDir: dir})

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{"root serves index", http.MethodGet, "/", http.StatusOK, "<h1>chat</h1>"},
		{"named file", http.MethodGet, "/script.js", http.StatusOK, "console.log(1)"},
		{"missing file", http.MethodGet, "/nope.css", http.StatusNotFound, "404 File Not Found"},
		{"dotfile hidden", http.MethodGet, "/.env", http.StatusNotFound, "404 File Not Found"},
		{"GET on core endpoint", http.MethodGet, "/api.php", http.StatusNotFound, "404 File Not Found"},
		{"GET on store endpoint", http.MethodGet, "/api/save-chat", http.StatusNotFound, "404 File Not Found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, tt.method, tt.path, "")
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantBody, rec.Body.String())
		})
	}
	assert.Zero(t, env.upstream.calls.Load())
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{noStore: true})

	rec := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","store":"disconnected"}`, string(decode(t, rec).Data))

	env = newTestEnv(t, envOptions{})
	rec = env.do(t, http.MethodGet, "/health", "")
	assert.JSONEq(t, `{"status":"ok","store":"connected"}`, string(decode(t, rec).Data))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, envOptions{})
	env.do(t, http.MethodPost, "/api.php", `{"text":"hi"}`)
	env.do(t, http.MethodPost, "/api/get-history", `{"userId":"u1"}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `chatproxy_upstream_requests_total{outcome="success",provider="OpenRouter"} 1`)
	assert.Contains(t, body, `chatproxy_store_operations_total{op="get_history",outcome="success"} 1`)
}
