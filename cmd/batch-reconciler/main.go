package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/rhyzero/file-organizer/internal/config"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/services"
)

var (
	app     *services.App
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("ReconcileIntake", reconcileIntake)
}

// main is required by the Go Functions Framework.
func main() {}

// reconcileIntake runs a batch pass whenever an object lands in the intake
// bucket or a scheduler event fires. Events carrying a BatchRequest body pick
// the mode; anything else reconciles.
func reconcileIntake(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			initErr = err
			return
		}
		app, initErr = services.NewApp(context.Background(), cfg, slog.Default())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	logCtx := slog.With("eventId", e.ID(), "eventType", e.Type(), "source", e.Source())

	var req models.BatchRequest
	if data := e.Data(); len(data) > 0 {
		if err := json.Unmarshal(data, &req); err != nil {
			logCtx.Warn("Event data is not a batch request, reconciling.", "error", err)
			req = models.BatchRequest{}
		}
	}

	resp, err := app.RunBatch(ctx, req)
	if errors.Is(err, models.ErrBatchInProgress) {
		logCtx.Info("Batch already running, skipping event.")
		return nil
	}
	if err != nil {
		logCtx.Error("Batch run failed", "error", err)
		return err
	}
	logCtx.Info("Batch run finished.", "mode", req.Mode, "fileCount", len(resp.Results))
	return nil
}
