package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rhyzero/file-organizer/internal/classify"
	"github.com/rhyzero/file-organizer/internal/extract"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/records"
	"github.com/rhyzero/file-organizer/internal/remote"
	"github.com/rhyzero/file-organizer/internal/tags"
)

// UploadRequest is one interactively submitted document.
type UploadRequest struct {
	UserID   string
	FileName string
	MimeType string
	Content  []byte
}

// IngestorConfig holds the collaborators of the ingestion pipeline.
type IngestorConfig struct {
	Extractor  extract.Extractor
	Classifier classify.Classifier
	Taxonomy   *tags.Taxonomy
	Remote     remote.Store
	Records    records.Store
	Logger     *slog.Logger
	// TempDir is where batch downloads are staged. Empty means os.TempDir.
	TempDir string
}

// Ingestor runs interactive ingestion and batch reconciliation.
type Ingestor struct {
	extractor  extract.Extractor
	classifier classify.Classifier
	taxonomy   *tags.Taxonomy
	remote     remote.Store
	records    records.Store
	logger     *slog.Logger
	tempDir    string

	batch batchGuard
}

// NewIngestor builds an Ingestor. Taxonomy and Logger default when nil.
func NewIngestor(cfg IngestorConfig) *Ingestor {
	if cfg.Taxonomy == nil {
		cfg.Taxonomy = tags.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ingestor{
		extractor:  cfg.Extractor,
		classifier: cfg.Classifier,
		taxonomy:   cfg.Taxonomy,
		remote:     cfg.Remote,
		records:    cfg.Records,
		logger:     cfg.Logger,
		tempDir:    cfg.TempDir,
	}
}

// classification is what the classify stage hands to the upload stage.
type classification struct {
	payload  models.ClassificationPayload
	mainTags []string
	encoded  string
	snapshot string
}

// Ingest extracts, classifies, uploads and records one document.
//
// Extraction and classification failures are logged and ingestion continues
// without text or tags. Validation failures return before any external call.
// Folder, upload and record failures return a response with status 500 along
// with the error, and no record is created when the upload fails.
func (i *Ingestor) Ingest(ctx context.Context, req UploadRequest) (*models.UploadResponse, error) {
	if strings.TrimSpace(req.UserID) == "" {
		return nil, fmt.Errorf("%w: missing user id", models.ErrAuth)
	}
	if !extract.IsSupported(req.MimeType) {
		return nil, models.Validationf("unsupported file type %q: only pdf, doc and docx are accepted", req.MimeType)
	}
	if len(req.Content) == 0 {
		return nil, models.Validationf("uploaded file is empty")
	}

	fileName := extract.EnsureExtension(req.FileName, req.MimeType)
	logCtx := i.logger.With("userId", req.UserID, "fileName", fileName, "mimeType", req.MimeType)
	logCtx.Info("Processing upload.", "bytes", len(req.Content))

	text := i.extractText(ctx, logCtx, req.Content, req.MimeType)
	cls := i.classifyText(ctx, logCtx, text)

	folderID, err := i.remote.GetOrCreateUserFolder(ctx, req.UserID)
	if err != nil {
		return i.uploadFailed(logCtx, "failed to resolve user folder", err)
	}
	logCtx = logCtx.With("folderId", folderID)

	fileID, err := i.remote.UploadFile(ctx, folderID, fileName, req.MimeType, bytes.NewReader(req.Content))
	if err != nil {
		return i.uploadFailed(logCtx, "failed to upload file", err)
	}
	logCtx = logCtx.With("fileId", fileID)

	rec := &models.ExtractionRecord{
		FileName:          fileName,
		RemoteFileID:      fileID,
		MimeType:          req.MimeType,
		ExtractedText:     text,
		ExtractionTime:    time.Now().UTC(),
		Status:            models.StatusSuccess,
		Tags:              cls.encoded,
		TagClassification: cls.snapshot,
	}
	if err := i.records.Create(ctx, rec); err != nil {
		return i.uploadFailed(logCtx, "failed to save extraction record", err)
	}
	logCtx.Info("Document ingested.", "recordId", rec.ID, "tags", cls.encoded)

	// A known hint is echoed, matching how stored records are partitioned.
	docType := cls.payload.TypeHint()
	if docType != models.DocumentTypeAcademic && docType != models.DocumentTypeProfessional {
		docType = i.taxonomy.DocumentType(cls.payload)
	}
	return &models.UploadResponse{
		Status:       http.StatusOK,
		Message:      "Document successfully uploaded",
		URL:          i.remote.FileURL(fileID),
		FileName:     fileName,
		Tags:         cls.mainTags,
		DocumentType: docType,
		Confidence:   cls.payload.Confidence(),
	}, nil
}

// extractText soft-fails: any error yields nil text.
func (i *Ingestor) extractText(ctx context.Context, logCtx *slog.Logger, content []byte, mimeType string) *string {
	text, err := i.extractor.Extract(ctx, content, mimeType)
	if err != nil {
		logCtx.Warn("Text extraction failed, continuing without text.", "error", err)
		return nil
	}
	return &text
}

// classifyText soft-fails: classifier errors yield the empty payload, and
// classification is skipped when there is no text.
func (i *Ingestor) classifyText(ctx context.Context, logCtx *slog.Logger, text *string) classification {
	payload := models.EmptyClassification()
	if text != nil && strings.TrimSpace(*text) != "" {
		p, err := i.classifier.Classify(ctx, *text)
		if err != nil {
			logCtx.Warn("Classification failed, continuing without tags.", "error", err)
		} else {
			payload = p
		}
	}

	cls := classification{
		payload:  payload,
		mainTags: tags.MainTags(payload),
		encoded:  tags.EncodeTagString(payload),
		snapshot: tags.Snapshot(payload),
	}
	logCtx.Info("Document classified.", "tags", cls.mainTags, "documentType", i.taxonomy.DocumentType(payload))
	return cls
}

func (i *Ingestor) uploadFailed(logCtx *slog.Logger, message string, err error) (*models.UploadResponse, error) {
	logCtx.Error(message, "error", err)
	wrapped := fmt.Errorf("%s: %w", message, err)
	if !errors.Is(err, models.ErrPersistence) && !errors.Is(err, models.ErrDuplicateRecord) {
		wrapped = fmt.Errorf("%w: %w", models.ErrExternalService, wrapped)
	}
	return &models.UploadResponse{
		Status:  http.StatusInternalServerError,
		Message: wrapped.Error(),
		Tags:    []string{},
	}, wrapped
}
