package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/catstoryflow/internal/app"
	"github.com/Lllllllleong/catstoryflow/internal/models"
	"github.com/Lllllllleong/catstoryflow/internal/services"
)

var (
	stageInstance *services.StageFunction
	once          sync.Once
	initErr       error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleNarrate" is the entry point name configured in GCP.
	functions.HTTP("HandleNarrate", handleNarrate)
}

// main is required by the Go Functions Framework.
func main() {}

// handleNarrate is the HTTP entry point for the cat narrative conversion stage.
func handleNarrate(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		a, err := app.NewCloudFromEnv(context.Background(), slog.Default())
		if err != nil {
			initErr = err
			return
		}
		stageInstance = services.NewStageFunction(a.Orchestrator, models.StageConvertToCat)
	})
	if initErr != nil {
		slog.Error("CRITICAL: Stage function initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.StageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Could not decode request body", "error", err)
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}

	res, err := stageInstance.Process(r.Context(), &req)
	if err != nil {
		// Already logged and recorded on the project. The workflow retries
		// 5xx only.
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
