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
	regenerateInstance *services.RegenerateFunction
	once               sync.Once
	initErr            error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleRegeneratePDF", handleRegeneratePDF)
}

// main is required by the Go Functions Framework.
func main() {}

// handleRegeneratePDF resets a finished project and queues a new render.
// It answers as soon as the render is dispatched.
func handleRegeneratePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	once.Do(func() {
		a, err := app.NewCloudFromEnv(context.Background(), slog.Default())
		if err != nil {
			initErr = err
			return
		}
		regenerateInstance = services.NewRegenerateFunction(a.Projects)
	})
	if initErr != nil {
		slog.Error("CRITICAL: Regenerate function initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}

	var req models.RegenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Bad Request: could not parse JSON", http.StatusBadRequest)
		return
	}
	res, err := regenerateInstance.Process(r.Context(), &req)
	if err != nil {
		slog.Error("Regeneration failed", "projectId", req.ProjectID, "error", err)
		http.Error(w, err.Error(), services.HTTPStatus(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(res); err != nil {
		slog.Error("Failed to write response", "error", err)
	}
}
