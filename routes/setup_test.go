package routes

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/asmb123/voting-workshop-bhu/api"
	"github.com/asmb123/voting-workshop-bhu/cache"
	"github.com/asmb123/voting-workshop-bhu/config"
	"github.com/asmb123/voting-workshop-bhu/database"
	"github.com/asmb123/voting-workshop-bhu/identity"
	"github.com/asmb123/voting-workshop-bhu/ledger"
	"github.com/asmb123/voting-workshop-bhu/service"
	"github.com/asmb123/voting-workshop-bhu/websocket"
)

const testNow = 1_700_000_000

// SetupTestEnvironment builds the full router over an in-memory SQLite store.
func SetupTestEnvironment(t *testing.T, limiter cache.RateLimiter) (*gin.Engine, *ledger.ManualClock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{
		Driver:     "sqlite",
		SQLitePath: "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		LogLevel:   "silent",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	clock := ledger.NewManualClock(testNow)
	rt := ledger.NewRuntime(db, cache.NewLocalLockService(), clock, nil)

	hub := websocket.NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	svc := service.NewVotingService(rt, nil, hub, config.WindowEnforce, nil)
	router := SetupRouter(Dependencies{
		Server:        config.ServerConfig{CORSAllowedOrigins: []string{"*"}},
		VotingService: svc,
		Authenticator: identity.NewAuthenticator(5*time.Second, time.Hour),
		VoteLimiter:   limiter,
		Hub:           hub,
		HealthChecks: map[string]api.Pinger{
			"database": func(context.Context) error { return database.Ping(db) },
		},
	})
	return router, clock
}

// caller is a key pair that signs its own bearer tokens.
type caller struct {
	id    identity.Identity
	token string
}

func newCaller(t *testing.T) caller {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	id, err := identity.FromPublicKey(pub)
	require.NoError(t, err)
	token, err := identity.IssueToken(priv, 10*time.Minute)
	require.NoError(t, err)
	return caller{id: id, token: token}
}

func doJSON(router *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}
