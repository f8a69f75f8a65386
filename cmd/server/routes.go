package main

import (
	"net/http"
)

func (app *application) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", app.handleHealth)
	mux.HandleFunc("GET /ws", app.authenticate(app.handleWebSocket))
	mux.HandleFunc("GET /rooms", app.authenticate(app.handleListRooms))
	mux.HandleFunc("GET /results", app.authenticate(app.handleRecentResults))
	mux.HandleFunc("GET /results/{roomID}", app.authenticate(app.handleRoomResult))
	mux.HandleFunc("GET /players/{identity}", app.authenticate(app.handlePlayerStats))

	return app.logRequests(mux)
}
