package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/rhyzero/file-organizer/internal/api"
	"github.com/rhyzero/file-organizer/internal/config"
	"github.com/rhyzero/file-organizer/internal/services"
)

var (
	server  *api.Server
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// "HandleDocumentAPI" is the entry point name configured in GCP.
	functions.HTTP("HandleDocumentAPI", handleDocumentAPI)
}

// main is required by the Go Functions Framework.
func main() {}

func handleDocumentAPI(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		app, err := services.NewApp(context.Background(), cfg, slog.Default())
		if err != nil {
			initErr = err
			return
		}
		server = api.NewServerFromApp(app)
	})
	if initErr != nil {
		slog.Error("Critical: document API initialization failed", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	server.ServeHTTP(w, r)
}
