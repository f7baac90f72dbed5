package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"

	"github.com/rhyzero/file-organizer/internal/auth"
	"github.com/rhyzero/file-organizer/internal/classify"
	"github.com/rhyzero/file-organizer/internal/config"
	"github.com/rhyzero/file-organizer/internal/extract"
	"github.com/rhyzero/file-organizer/internal/gcp"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/records"
	"github.com/rhyzero/file-organizer/internal/remote"
	"github.com/rhyzero/file-organizer/internal/tags"
)

// Batch statuses reported in a BatchResponse.
const (
	BatchStatusCompleted  = "completed"
	BatchStatusDispatched = "dispatched"
)

// App holds every service of one process, built once from Config.
type App struct {
	Config   *config.Config
	Ingestor *Ingestor
	Files    *FileService
	Search   *SearchService
	Verifier auth.Verifier
	// Dispatcher is nil when no workflow is configured and batches run inline.
	Dispatcher Dispatcher
	Logger     *slog.Logger

	closers []io.Closer
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewApp connects every backend selected in cfg.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	taxonomy := tags.Default()
	if cfg.TaxonomyFile != "" {
		t, err := tags.LoadTaxonomy(cfg.TaxonomyFile)
		if err != nil {
			return nil, err
		}
		taxonomy = t
	}

	remoteStore, err := app.openRemote(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	recordStore, err := app.openRecords(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	classifier, err := app.openClassifier(ctx, taxonomy)
	if err != nil {
		app.Close()
		return nil, err
	}
	verifier, err := app.openVerifier(ctx)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Verifier = verifier

	if cfg.WorkflowID != "" {
		d, client, err := NewWorkflowDispatcher(ctx, WorkflowDispatcherConfig{
			ProjectID:        cfg.ProjectID,
			WorkflowLocation: cfg.WorkflowLocation,
			WorkflowID:       cfg.WorkflowID,
		}, logger)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.closers = append(app.closers, client)
		app.Dispatcher = d
	}

	app.Ingestor = NewIngestor(IngestorConfig{
		Extractor:  extract.New(),
		Classifier: classifier,
		Taxonomy:   taxonomy,
		Remote:     remoteStore,
		Records:    recordStore,
		Logger:     logger,
	})
	app.Files = NewFileService(remoteStore, recordStore, taxonomy, logger)
	var lister classify.TagLister
	if l, ok := classifier.(classify.TagLister); ok {
		lister = l
	}
	app.Search = NewSearchService(recordStore, taxonomy, lister, remoteStore.FileURL, logger)
	return app, nil
}

func (a *App) openRemote(ctx context.Context) (remote.Store, error) {
	switch a.Config.RemoteBackend {
	case config.RemoteGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		a.closers = append(a.closers, client)
		return remote.NewBucketStore(client, a.Config.IntakeBucket, "", a.Logger), nil
	default:
		svc, err := gcp.NewDriveService(ctx, a.Config.DriveCredentialsFile)
		if err != nil {
			return nil, err
		}
		return remote.NewDriveStore(svc, a.Config.DriveRootFolderID, a.Logger), nil
	}
}

func (a *App) openRecords(ctx context.Context) (records.Store, error) {
	var store records.Store
	switch a.Config.RecordBackend {
	case config.RecordsFirestore:
		client, err := gcp.NewFirestoreClient(ctx, a.Config.ProjectID, a.Config.FirestoreDatabase)
		if err != nil {
			return nil, err
		}
		store = records.NewFirestoreStore(client, a.Config.FirestoreCollection)
	default:
		s, err := records.OpenSQLite(ctx, a.Config.SQLitePath)
		if err != nil {
			return nil, err
		}
		store = s
	}
	a.closers = append(a.closers, store)
	return store, nil
}

func (a *App) openClassifier(ctx context.Context, taxonomy *tags.Taxonomy) (classify.Classifier, error) {
	switch a.Config.ClassifierBackend {
	case config.ClassifierVertex:
		vc, err := gcp.NewVertexClient(ctx, a.Config.ProjectID, a.Config.VertexAIRegion)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closerFunc(vc.Close))
		return classify.NewVertexClient(vc.ClassifierModel, taxonomy), nil
	default:
		return classify.NewHTTPClient(a.Config.ClassifierURL, nil), nil
	}
}

func (a *App) openVerifier(ctx context.Context) (auth.Verifier, error) {
	if a.Config.AuthMode == config.AuthHMAC {
		return auth.NewHMACVerifier([]byte(a.Config.AuthHMACSecret))
	}
	v, err := auth.NewFirebaseVerifier(ctx, a.Config.FirebaseProjectID, "")
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, v)
	return v, nil
}

// RunBatch executes a batch run in this process.
func (a *App) RunBatch(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	var (
		results map[string]string
		err     error
	)
	switch req.Mode {
	case models.BatchModeRetryFailed:
		results, err = a.Ingestor.RetryFailed(ctx)
	case "", models.BatchModeReconcile:
		results, err = a.Ingestor.Reconcile(ctx)
	default:
		return nil, models.Validationf("unknown batch mode %q", req.Mode)
	}
	if err != nil {
		return nil, err
	}
	return &models.BatchResponse{Status: BatchStatusCompleted, Results: results, ExecutionID: req.ExecutionID}, nil
}

// StartBatch hands the run to the workflow when one is configured, otherwise
// runs it inline. Requests that already carry an execution id come from the
// workflow itself and always run inline.
func (a *App) StartBatch(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	if a.Dispatcher == nil || req.ExecutionID != "" {
		return a.RunBatch(ctx, req)
	}
	switch req.Mode {
	case "":
		req.Mode = models.BatchModeReconcile
	case models.BatchModeReconcile, models.BatchModeRetryFailed:
	default:
		return nil, models.Validationf("unknown batch mode %q", req.Mode)
	}
	id, err := a.Dispatcher.Dispatch(ctx, req)
	if err != nil {
		return nil, err
	}
	return &models.BatchResponse{Status: BatchStatusDispatched, ExecutionID: id}, nil
}

// Close releases every client opened by NewApp.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
