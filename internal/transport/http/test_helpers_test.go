package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/vinrai007/neww-mesgar10/internal/auth"
	"github.com/vinrai007/neww-mesgar10/internal/config"
	"github.com/vinrai007/neww-mesgar10/internal/core"
	"github.com/vinrai007/neww-mesgar10/internal/files"
	"github.com/vinrai007/neww-mesgar10/internal/store"
	"github.com/vinrai007/neww-mesgar10/internal/store/sqlite"
)

type testEnv struct {
	ts      *httptest.Server
	server  *Server
	hub     *core.Hub
	stopHub context.CancelFunc
	auth    *auth.Service
	store   store.Store
	fs      afero.Fs
	cfg     *config.Config
}

// newTestEnv wires the full server over an in-memory database and filesystem.
func newTestEnv(t *testing.T, tweak ...func(*config.Config)) *testEnv {
	t.Helper()
	return newTestEnvWithMessages(t, nil, tweak...)
}

// newTestEnvWithMessages is newTestEnv with the hub's message store wrapped by wrap.
func newTestEnvWithMessages(t *testing.T, wrap func(store.Store) core.MessageStore, tweak ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.JWTSecret = "test-secret"
	cfg.ReadHeaderTimeout = time.Second
	for _, fn := range tweak {
		fn(&cfg)
	}

	st, err := sqlite.NewWithSetup(":memory:", sqlite.Migrate)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	authService := createTestAuthService(t, st, &cfg)
	fs := afero.NewMemMapFs()
	uploads := files.New(fs)
	disabledLogger := zerolog.Nop()

	var messages core.MessageStore = st
	if wrap != nil {
		messages = wrap(st)
	}

	hub := core.NewHub(messages, uploads, authService,
		core.WithHeartbeat(cfg.HeartbeatInterval, cfg.HeartbeatTimeout))
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	server := NewServer(hub, authService, st, uploads, &cfg, &disabledLogger)
	ts := httptest.NewServer(server.Handler)
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})

	return &testEnv{
		ts:      ts,
		server:  server,
		hub:     hub,
		stopHub: cancel,
		auth:    authService,
		store:   st,
		fs:      fs,
		cfg:     &cfg,
	}
}

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T, st store.UserStore, cfg *config.Config) *auth.Service {
	t.Helper()

	return auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
}

func (e *testEnv) register(t *testing.T, username string) (token string, id int64) {
	t.Helper()

	token, err := e.auth.Register(context.Background(), username, "password123")
	if err != nil {
		t.Fatalf("failed to register %s: %v", username, err)
	}
	user, err := e.store.GetUserByUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("failed to load %s: %v", username, err)
	}
	return token, user.ID
}

func (e *testEnv) wsURL() string {
	return strings.Replace(e.ts.URL, "http", "ws", 1) + "/ws"
}

// dial opens a WebSocket carrying token in the auth cookie. An empty token dials anonymously.
func (e *testEnv) dial(t *testing.T, ctx context.Context, token string) *websocket.Conn {
	t.Helper()

	opts := &websocket.DialOptions{HTTPHeader: http.Header{}}
	if token != "" {
		opts.HTTPHeader.Set("Cookie", e.cfg.AuthCookie+"="+token)
	}
	conn, _, err := websocket.Dial(ctx, e.wsURL(), opts)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

// serverFrame is a union of every payload the server pushes.
type serverFrame struct {
	Online *[]struct {
		UserID   int64  `json:"userId"`
		Username string `json:"username"`
	} `json:"online"`

	ID        int64   `json:"id"`
	Text      *string `json:"text"`
	Sender    int64   `json:"sender"`
	Recipient int64   `json:"recipient"`
	File      *string `json:"file"`

	Error *struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	} `json:"error"`
}

func (f serverFrame) isPresence() bool { return f.Online != nil }
func (f serverFrame) isError() bool    { return f.Error != nil }
func (f serverFrame) isDelivery() bool { return f.ID != 0 }

func (f serverFrame) onlineIDs() []int64 {
	if f.Online == nil {
		return nil
	}
	ids := make([]int64, 0, len(*f.Online))
	for _, u := range *f.Online {
		ids = append(ids, u.UserID)
	}
	return ids
}

func readFrame(t *testing.T, ctx context.Context, conn *websocket.Conn) serverFrame {
	t.Helper()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f serverFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("decode frame %s: %v", data, err)
	}
	return f
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, match func(serverFrame) bool) serverFrame {
	t.Helper()

	for {
		f := readFrame(t, ctx, conn)
		if match(f) {
			return f
		}
	}
}

func writeJSON(t *testing.T, ctx context.Context, conn *websocket.Conn, v any) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, v); err != nil {
		t.Fatalf("write: %v", err)
	}
}
