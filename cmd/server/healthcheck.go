package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/tecu23/chessroom/pkg/archive"
)

type healthResponse struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Rooms         int    `json:"rooms"`
	Connections   int    `json:"connections"`
	FinishedGames int64  `json:"finished_games"`
}

// handleHealth handles the GET /health endpoint
func (app *application) handleHealth(w http.ResponseWriter, _ *http.Request) {
	app.writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		Uptime:        time.Since(app.StartTime).Round(time.Second).String(),
		Rooms:         app.Manager.RoomCount(),
		Connections:   app.Hub.ConnectionCount(),
		FinishedGames: app.Manager.FinishedGames(),
	})
}

// handleListRooms lists public rooms for a lobby
func (app *application) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	app.writeJSON(w, http.StatusOK, app.Manager.ListRooms())
}

func (app *application) handleRecentResults(w http.ResponseWriter, r *http.Request) {
	if app.Archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}

	limit := int64(20)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, app.Config.Archive.MaxEntries)
	}

	records, err := app.Archive.Recent(r.Context(), limit)
	if err != nil {
		app.serverError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, records)
}

func (app *application) handleRoomResult(w http.ResponseWriter, r *http.Request) {
	if app.Archive == nil {
		http.Error(w, "archive disabled", http.StatusNotFound)
		return
	}

	record, err := app.Archive.ForRoom(r.Context(), r.PathValue("roomID"))
	if errors.Is(err, archive.ErrNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		app.serverError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, record)
}

func (app *application) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	ps, err := app.Stats.Lookup(r.Context(), r.PathValue("identity"))
	if err != nil {
		app.serverError(w, err)
		return
	}
	app.writeJSON(w, http.StatusOK, ps)
}

func (app *application) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		app.Logger.Warn("Error writing response", zap.Error(err))
	}
}

func (app *application) serverError(w http.ResponseWriter, err error) {
	app.Logger.Error("request failed", zap.Error(err))
	http.Error(w, "internal server error", http.StatusInternalServerError)
}
