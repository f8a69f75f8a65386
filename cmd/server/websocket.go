package main

import (
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/tecu23/chessroom/internal/auth"
)

func (app *application) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,

		CheckOrigin: func(r *http.Request) bool {
			origin := app.Config.FrontendOrigin
			return origin == "" || origin == r.Header.Get("Origin")
		},
	}
}

// handleWebSocket handles WebSocket connections
func (app *application) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	account := ""
	if app.Tokens.Enabled() {
		sub, err := app.Tokens.FromRequest(r)
		switch {
		case err == nil:
			account = sub
		case errors.Is(err, auth.ErrNoToken):
			// anonymous players are allowed
		default:
			app.Logger.Warn("Rejected websocket token",
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err))
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}
	}

	// Upgrade HTTP connection to WebSocket
	ws, err := app.upgrader().Upgrade(w, r, nil)
	if err != nil {
		app.Logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	conn := app.Hub.Attach(ws, account)

	app.Logger.Info("WebSocket connection established",
		zap.String("connection_id", string(conn.ID)),
		zap.Bool("authenticated", account != ""),
		zap.String("remote_addr", r.RemoteAddr))
}
