package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/Tshikamisava/kasi-rent-sub000/internal/auth"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/config"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/core"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/fabric"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/presence"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store"
	"github.com/Tshikamisava/kasi-rent-sub000/internal/store/sqlite"
)

type testServer struct {
	ts    *httptest.Server
	store store.Store
	auth  *auth.Service
	svc   *core.Service
}

// wireOutbound mirrors proto.Outbound with raw data for decoding in tests.
type wireOutbound struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	ID    string          `json:"id"`
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T, users ...string) *testServer {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	for _, id := range users {
		if err := st.UpsertUser(context.Background(), &store.User{ID: id, Name: "name-" + id, Email: id + "@example.com"}); err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}

	disabledLogger := zerolog.New(io.Discard)

	cfg := config.Default()
	cfg.JWTSecret = "test-secret"
	cfg.HTTPRateLimit = 0
	cfg.RateLimitPerMinute = 0
	cfg.PingInterval = time.Second

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      time.Hour,
	})

	hub := core.NewHub(fabric.NewLocal(), &disabledLogger)
	if err := hub.Start(context.Background()); err != nil {
		t.Fatalf("start hub: %v", err)
	}
	t.Cleanup(hub.Stop)

	svc := core.NewService(st, hub, presence.NewMemory(), core.Options{
		MaxContentLength: cfg.MaxContentLength,
		HistoryPageSize:  cfg.HistoryPageSize,
		HistoryMaxPage:   cfg.HistoryMaxPage,
	}, &disabledLogger)

	server := NewServer(svc, authService, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testServer{ts: ts, store: st, auth: authService, svc: svc}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()

	token, err := s.auth.IssueToken(&store.User{ID: userID})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

// do sends a JSON request and decodes the JSON response into out when non-nil.
func (s *testServer) do(t *testing.T, method, path, token string, body, out any) int {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, s.ts.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func (s *testServer) dial(ctx context.Context, t *testing.T, token string) *websocket.Conn {
	t.Helper()

	wsURL := strings.Replace(s.ts.URL, "http", "ws", 1) + "/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"Authorization": []string{"Bearer " + token}},
	})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, id string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"type": typ, "id": id, "data": json.RawMessage(payload)}); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// readUntil reads frames until one matches typ (and event, when set).
func readUntil(ctx context.Context, t *testing.T, conn *websocket.Conn, typ, event string) wireOutbound {
	t.Helper()

	for {
		var out wireOutbound
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("waiting for %s/%s: %v", typ, event, err)
		}
		if out.Type == typ && (event == "" || out.Event == event) {
			return out
		}
	}
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	return v
}
