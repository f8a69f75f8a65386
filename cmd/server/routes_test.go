package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tecu23/chessroom/internal/auth"
	"github.com/tecu23/chessroom/pkg/config"
	"github.com/tecu23/chessroom/pkg/events"
	"github.com/tecu23/chessroom/pkg/manager"
	"github.com/tecu23/chessroom/pkg/repository"
	"github.com/tecu23/chessroom/pkg/rules"
	"github.com/tecu23/chessroom/pkg/server"
)

func newTestApp(t *testing.T, keys []string) *application {
	t.Helper()

	logger := zaptest.NewLogger(t)
	cfg := config.Default()
	cfg.APIKeys = keys

	publisher := events.NewPublisher()
	rm := manager.NewManager(repository.NewInMemoryRepository(logger), rules.NewChessOracle(), publisher, cfg.Room, logger)
	hub := server.NewHub(rm, logger)
	rm.AttachBroadcaster(hub)

	app := &application{
		Auth:      auth.NewAPIKeyAuth(cfg.APIKeys),
		Tokens:    auth.NewTokenVerifier(cfg.JWTSecret),
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Manager:   rm,
		Hub:       hub,
		StartTime: time.Now(),
	}
	require.NoError(t, app.initStats(context.Background()))
	return app
}

func TestHealthIsPublic(t *testing.T) {
	app := newTestApp(t, []string{"key"})

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 0, body.Rooms)
}

func TestRoomsRequireAPIKey(t *testing.T) {
	app := newTestApp(t, []string{"key"})
	h := app.routes()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/rooms", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
	req.Header.Set("X-Api-Key", "key")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestPlayerStatsDefaultsWithoutDatabase(t *testing.T) {
	app := newTestApp(t, nil)

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/players/alice", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rating":1200`)
}

func TestResultsEndpoints(t *testing.T) {
	app := newTestApp(t, nil)

	rr := httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code, "archive disabled")

	mr := miniredis.RunT(t)
	app.Config.RedisURL = "redis://" + mr.Addr()
	require.NoError(t, app.initArchive(context.Background()))

	rr = httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results?limit=5", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())

	rr = httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = httptest.NewRecorder()
	app.routes().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/results?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
