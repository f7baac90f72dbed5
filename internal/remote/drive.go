package remote

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"

	"github.com/rhyzero/file-organizer/internal/gcp"
	"github.com/rhyzero/file-organizer/internal/models"
)

const nodeFields = "id, name, mimeType, parents, size, createdTime"

// DriveStore keeps documents in Google Drive under a fixed root folder.
type DriveStore struct {
	svc    *drive.Service
	rootID string
	// folders collapses concurrent get-or-create calls per folder name.
	folders singleflight.Group
	logger  *slog.Logger
}

// NewDriveStore builds a store rooted at rootFolderID.
func NewDriveStore(svc *drive.Service, rootFolderID string, logger *slog.Logger) *DriveStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &DriveStore{
		svc:    svc,
		rootID: rootFolderID,
		logger: logger,
	}
}

func (s *DriveStore) RootFolderID() string { return s.rootID }

func (s *DriveStore) FileURL(fileID string) string {
	return "https://drive.google.com/file/d/" + fileID + "/view"
}

// GetOrCreateUserFolder looks up user_<id> under the root and creates it if absent.
// Concurrent calls for the same user share one lookup and create, and when
// duplicates already exist the oldest folder is always chosen.
func (s *DriveStore) GetOrCreateUserFolder(ctx context.Context, userID string) (string, error) {
	name := UserFolderName(userID)
	// The shared call outlives any single caller's cancellation.
	shared := context.WithoutCancel(ctx)
	id, err, _ := s.folders.Do(name, func() (interface{}, error) {
		return s.getOrCreateFolder(shared, name)
	})
	if err != nil {
		return "", err
	}
	return id.(string), nil
}

// FindUserFolder looks up user_<id> without creating it.
func (s *DriveStore) FindUserFolder(ctx context.Context, userID string) (string, bool, error) {
	id, err := s.findFolder(ctx, UserFolderName(userID))
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}

// findFolder returns the oldest folder called name under the root, or "" when none exists.
func (s *DriveStore) findFolder(ctx context.Context, name string) (string, error) {
	q := fmt.Sprintf("'%s' in parents and name='%s' and mimeType='%s' and trashed=false",
		escapeQuery(s.rootID), escapeQuery(name), FolderMimeType)
	list, err := s.svc.Files.List().Q(q).
		OrderBy("createdTime").
		Fields("files(id, name, createdTime)").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to query user folder: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}
	if len(list.Files) > 1 {
		s.logger.Warn("Duplicate user folders found, using oldest.", "folderName", name, "count", len(list.Files))
	}
	return list.Files[0].Id, nil
}

func (s *DriveStore) getOrCreateFolder(ctx context.Context, name string) (string, error) {
	id, err := s.findFolder(ctx, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	folder, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: FolderMimeType,
		Parents:  []string{s.rootID},
	}).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create user folder: %w", err)
	}
	s.logger.Info("Created user folder.", "folderName", name, "folderId", folder.Id)
	return folder.Id, nil
}

func (s *DriveStore) UploadFile(ctx context.Context, parentID, name, mimeType string, content io.Reader) (string, error) {
	f, err := s.svc.Files.Create(&drive.File{
		Name:     name,
		MimeType: mimeType,
		Parents:  []string{parentID},
	}).Media(content, googleapi.ContentType(mimeType)).Fields("id").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file to drive: %w", err)
	}
	return f.Id, nil
}

// ListChildren returns every non-trashed child of parentID, newest first.
func (s *DriveStore) ListChildren(ctx context.Context, parentID string) ([]Node, error) {
	q := fmt.Sprintf("'%s' in parents and trashed=false", escapeQuery(parentID))
	var nodes []Node
	err := s.svc.Files.List().Q(q).
		OrderBy("createdTime desc").
		PageSize(1000).
		Fields(googleapi.Field("nextPageToken, files("+nodeFields+")")).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				nodes = append(nodes, toNode(f))
			}
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("failed to list folder %s: %w", parentID, err)
	}
	return nodes, nil
}

func (s *DriveStore) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	resp, err := s.svc.Files.Get(fileID).Context(ctx).Download()
	if err != nil {
		if gcp.IsNotFound(err) {
			return models.NotFound(fileID)
		}
		return fmt.Errorf("failed to download file %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("failed to read file %s: %w", fileID, err)
	}
	return nil
}

func (s *DriveStore) RenameFile(ctx context.Context, fileID, newName string) error {
	_, err := s.svc.Files.Update(fileID, &drive.File{Name: newName}).Fields("id").Context(ctx).Do()
	if err != nil {
		if gcp.IsNotFound(err) {
			return models.NotFound(fileID)
		}
		return fmt.Errorf("failed to rename file %s: %w", fileID, err)
	}
	return nil
}

func (s *DriveStore) DeleteFile(ctx context.Context, fileID string) error {
	if err := s.svc.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		if gcp.IsNotFound(err) {
			return models.NotFound(fileID)
		}
		return fmt.Errorf("failed to delete file %s: %w", fileID, err)
	}
	return nil
}

func (s *DriveStore) VerifyOwnership(ctx context.Context, fileID, expectedParentID string) (bool, error) {
	f, err := s.svc.Files.Get(fileID).Fields("id, parents").Context(ctx).Do()
	if err != nil {
		if gcp.IsNotFound(err) {
			return false, models.NotFound(fileID)
		}
		return false, fmt.Errorf("failed to fetch parents of %s: %w", fileID, err)
	}
	for _, p := range f.Parents {
		if p == expectedParentID {
			return true, nil
		}
	}
	return false, nil
}

func toNode(f *drive.File) Node {
	n := Node{
		ID:        f.Id,
		Name:      f.Name,
		ParentIDs: f.Parents,
		MimeType:  f.MimeType,
	}
	if f.Size > 0 {
		size := f.Size
		n.Size = &size
	}
	if t, err := time.Parse(time.RFC3339, f.CreatedTime); err == nil {
		n.CreatedTime = t
	}
	return n
}

// escapeQuery escapes a value for use inside a single-quoted Drive query string.
func escapeQuery(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `'`, `\'`)
}
