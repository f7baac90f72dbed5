package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/remote"
)

// Outcome strings reported per file by batch runs.
const (
	OutcomeProcessed        = "Successfully processed"
	OutcomeAlreadyProcessed = "Already processed on: "
)

// batchGuard keeps batch runs from overlapping within a process.
type batchGuard struct {
	running atomic.Bool
}

func (g *batchGuard) acquire() (func(), error) {
	if !g.running.CompareAndSwap(false, true) {
		return nil, models.ErrBatchInProgress
	}
	return func() { g.running.Store(false) }, nil
}

// Reconcile scans the shared intake folder and records every file that has no
// record yet. Recorded files are skipped whatever their status. Files are
// extracted but not classified. One file's failure never stops the run.
func (i *Ingestor) Reconcile(ctx context.Context) (map[string]string, error) {
	release, err := i.batch.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	rootID := i.remote.RootFolderID()
	logCtx := i.logger.With("folderId", rootID)

	nodes, err := i.remote.ListChildren(ctx, rootID)
	if err != nil {
		logCtx.Error("Failed to list intake folder", "error", err)
		return nil, fmt.Errorf("%w: list intake folder: %w", models.ErrExternalService, err)
	}
	logCtx.Info("Starting batch reconciliation.", "fileCount", len(nodes))

	results := make(map[string]string, len(nodes))
	for _, node := range nodes {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		if node.IsFolder() {
			continue
		}
		fileLog := logCtx.With("fileId", node.ID, "fileName", node.Name)

		existing, err := i.records.GetByRemoteID(ctx, node.ID)
		switch {
		case err == nil:
			results[node.Name] = alreadyProcessed(existing)
			fileLog.Info("Already processed. Skipping.", "status", existing.Status)
			continue
		case !errors.Is(err, models.ErrRecordNotFound):
			fileLog.Error("Failed to look up existing record", "error", err)
			results[node.Name] = models.FailedStatus(err.Error())
			continue
		}

		results[node.Name] = i.reconcileFile(ctx, fileLog, node)
	}

	logCtx.Info("Batch reconciliation complete.", "resultCount", len(results))
	return results, nil
}

// reconcileFile downloads, extracts and records one new intake file.
func (i *Ingestor) reconcileFile(ctx context.Context, logCtx *slog.Logger, node remote.Node) string {
	rec := &models.ExtractionRecord{
		FileName:       node.Name,
		RemoteFileID:   node.ID,
		MimeType:       node.MimeType,
		ExtractionTime: time.Now().UTC(),
		Status:         models.StatusSuccess,
	}

	text, err := i.downloadAndExtract(ctx, node.ID, node.MimeType)
	if err != nil {
		logCtx.Warn("Extraction failed.", "error", err)
		rec.Status = models.FailedStatus(err.Error())
	} else {
		rec.ExtractedText = &text
	}

	if err := i.records.Create(ctx, rec); err != nil {
		if errors.Is(err, models.ErrDuplicateRecord) {
			// Another run recorded it between our lookup and insert.
			if existing, gerr := i.records.GetByRemoteID(ctx, node.ID); gerr == nil {
				return alreadyProcessed(existing)
			}
		}
		logCtx.Error("Failed to save extraction record", "error", err)
		return models.FailedStatus(err.Error())
	}

	if rec.IsFailed() {
		return rec.Status
	}
	logCtx.Info("Processed intake file.", "recordId", rec.ID)
	return OutcomeProcessed
}

// RetryFailed re-runs extraction for every record whose status is Failed and
// updates it in place. It shares the batch guard with Reconcile.
func (i *Ingestor) RetryFailed(ctx context.Context) (map[string]string, error) {
	release, err := i.batch.acquire()
	if err != nil {
		return nil, err
	}
	defer release()

	failed, err := i.records.ListFailed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list failed records: %w", err)
	}
	i.logger.Info("Retrying failed extractions.", "count", len(failed))

	results := make(map[string]string, len(failed))
	for _, rec := range failed {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		logCtx := i.logger.With("fileId", rec.RemoteFileID, "fileName", rec.FileName, "recordId", rec.ID)

		var (
			textPtr *string
			status  = models.StatusSuccess
		)
		text, err := i.downloadAndExtract(ctx, rec.RemoteFileID, rec.MimeType)
		if err != nil {
			logCtx.Warn("Retry failed.", "error", err)
			status = models.FailedStatus(err.Error())
		} else {
			textPtr = &text
		}

		if err := i.records.UpdateExtraction(ctx, rec.ID, textPtr, status); err != nil {
			logCtx.Error("Failed to update extraction record", "error", err)
			results[rec.FileName] = models.FailedStatus(err.Error())
			continue
		}
		if status == models.StatusSuccess {
			results[rec.FileName] = OutcomeProcessed
		} else {
			results[rec.FileName] = status
		}
	}
	return results, nil
}

// downloadAndExtract stages the file in a temp directory that is removed on every path.
func (i *Ingestor) downloadAndExtract(ctx context.Context, fileID, mimeType string) (string, error) {
	tempDir, err := os.MkdirTemp(i.tempDir, "reconcile-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, "source")
	if err := i.downloadTo(ctx, fileID, localPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read downloaded file: %w", err)
	}
	return i.extractor.Extract(ctx, data, mimeType)
}

func (i *Ingestor) downloadTo(ctx context.Context, fileID, destPath string) error {
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()

	if err := i.remote.DownloadFile(ctx, fileID, localFile); err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	return nil
}

func alreadyProcessed(rec *models.ExtractionRecord) string {
	return OutcomeAlreadyProcessed + rec.ExtractionTime.UTC().Format(time.RFC3339)
}
