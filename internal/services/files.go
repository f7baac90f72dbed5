package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/records"
	"github.com/rhyzero/file-organizer/internal/remote"
	"github.com/rhyzero/file-organizer/internal/tags"
)

// listConcurrency bounds parallel record lookups while listing a folder.
const listConcurrency = 10

// FileService serves a user's own files: list, fetch, rename and delete.
// Every per-file operation verifies ownership first.
type FileService struct {
	remote   remote.Store
	records  records.Store
	taxonomy *tags.Taxonomy
	logger   *slog.Logger
}

// NewFileService builds a FileService.
func NewFileService(store remote.Store, recs records.Store, taxonomy *tags.Taxonomy, logger *slog.Logger) *FileService {
	if taxonomy == nil {
		taxonomy = tags.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileService{remote: store, records: recs, taxonomy: taxonomy, logger: logger}
}

// FileContent is a downloaded file.
type FileContent struct {
	FileName string
	MimeType string
	Data     []byte
}

// List returns the caller's files, newest first, joined with their records.
// Files without a record report "Not processed".
func (s *FileService) List(ctx context.Context, userID string) ([]models.FileInfo, error) {
	folderID, found, err := s.remote.FindUserFolder(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve user folder: %w", models.ErrExternalService, err)
	}
	if !found {
		return []models.FileInfo{}, nil
	}
	nodes, err := s.remote.ListChildren(ctx, folderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}

	var files []remote.Node
	for _, n := range nodes {
		if !n.IsFolder() {
			files = append(files, n)
		}
	}

	infos := make([]models.FileInfo, len(files))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(listConcurrency)
	for idx, node := range files {
		eg.Go(func() error {
			info, err := s.fileInfo(gctx, node)
			if err != nil {
				return err
			}
			infos[idx] = info
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return infos, nil
}

func (s *FileService) fileInfo(ctx context.Context, node remote.Node) (models.FileInfo, error) {
	info := models.FileInfo{
		FileID:           node.ID,
		FileName:         node.Name,
		MimeType:         node.MimeType,
		URL:              s.remote.FileURL(node.ID),
		Size:             node.Size,
		Tags:             []string{},
		ExtractionStatus: models.StatusNotProcessed,
	}
	if !node.CreatedTime.IsZero() {
		info.UploadDate = node.CreatedTime.UTC().Format(time.RFC3339)
	}

	rec, err := s.records.GetByRemoteID(ctx, node.ID)
	if errors.Is(err, models.ErrRecordNotFound) {
		return info, nil
	}
	if err != nil {
		return info, fmt.Errorf("look up record for %s: %w", node.ID, err)
	}
	info.Tags = rec.TagList()
	info.TagClassification = tags.ParseSnapshot(rec.TagClassification)
	info.ExtractionStatus = rec.Status
	processed := rec.ExtractionTime.UTC().Format(time.RFC3339)
	info.ProcessingDate = &processed
	return info, nil
}

// Content returns a file's bytes once the caller's ownership is confirmed.
func (s *FileService) Content(ctx context.Context, userID, fileID string) (*FileContent, error) {
	if err := s.verifyOwnership(ctx, userID, fileID); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := s.remote.DownloadFile(ctx, fileID, &buf); err != nil {
		if models.IsNotFoundOrForbidden(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}

	content := &FileContent{Data: buf.Bytes(), MimeType: "application/octet-stream", FileName: fileID}
	if rec, err := s.records.GetByRemoteID(ctx, fileID); err == nil {
		content.FileName = rec.FileName
		if rec.MimeType != "" {
			content.MimeType = rec.MimeType
		}
	}
	return content, nil
}

// Delete removes the remote file and then its record.
func (s *FileService) Delete(ctx context.Context, userID, fileID string) (*models.DeleteResponse, error) {
	if err := s.verifyOwnership(ctx, userID, fileID); err != nil {
		return nil, err
	}
	if err := s.remote.DeleteFile(ctx, fileID); err != nil {
		if models.IsNotFoundOrForbidden(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}
	if err := s.records.DeleteByRemoteID(ctx, fileID); err != nil && !errors.Is(err, models.ErrRecordNotFound) {
		s.logger.Error("Remote file deleted but record removal failed", "fileId", fileID, "error", err)
		return nil, err
	}
	s.logger.Info("File deleted.", "userId", userID, "fileId", fileID)
	return &models.DeleteResponse{Success: true, Message: "File deleted successfully", FileID: fileID}, nil
}

// Rename renames the remote file and then its record. A blank name is rejected
// before any remote call.
func (s *FileService) Rename(ctx context.Context, userID, fileID, newName string) (*models.RenameResponse, error) {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return nil, models.Validationf("new file name cannot be empty")
	}
	if err := s.verifyOwnership(ctx, userID, fileID); err != nil {
		return nil, err
	}
	if err := s.remote.RenameFile(ctx, fileID, newName); err != nil {
		if models.IsNotFoundOrForbidden(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}
	if err := s.records.UpdateFileName(ctx, fileID, newName); err != nil && !errors.Is(err, models.ErrRecordNotFound) {
		s.logger.Error("Remote file renamed but record update failed", "fileId", fileID, "error", err)
		return nil, err
	}
	s.logger.Info("File renamed.", "userId", userID, "fileId", fileID, "newFileName", newName)
	return &models.RenameResponse{Success: true, Message: "File renamed successfully", FileID: fileID, NewFileName: newName}, nil
}

// verifyOwnership returns a NotFoundOrForbiddenError unless fileID sits in the caller's folder.
func (s *FileService) verifyOwnership(ctx context.Context, userID, fileID string) error {
	folderID, found, err := s.remote.FindUserFolder(ctx, userID)
	if err != nil {
		return fmt.Errorf("%w: resolve user folder: %w", models.ErrExternalService, err)
	}
	if !found {
		s.logger.Info("Ownership check failed, caller has no folder.", "userId", userID, "fileId", fileID, "reason", models.ReasonNotFound)
		return models.NotFound(fileID)
	}
	ok, err := s.remote.VerifyOwnership(ctx, fileID, folderID)
	if err != nil {
		if models.IsNotFoundOrForbidden(err) {
			s.logger.Info("Ownership check failed.", "userId", userID, "fileId", fileID, "reason", models.ReasonNotFound)
			return err
		}
		return fmt.Errorf("%w: %w", models.ErrExternalService, err)
	}
	if !ok {
		s.logger.Info("Ownership check failed.", "userId", userID, "fileId", fileID, "reason", models.ReasonForbidden)
		return models.Forbidden(fileID)
	}
	return nil
}
