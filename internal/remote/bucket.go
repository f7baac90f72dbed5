package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/rhyzero/file-organizer/internal/gcp"
	"github.com/rhyzero/file-organizer/internal/models"
)

const (
	// displayNameKey holds the user-visible file name in object metadata.
	displayNameKey = "display-name"
	folderMarker   = ".folder"
)

// BucketStore emulates a folder hierarchy in a GCS bucket. Folder ids are object
// prefixes without a trailing slash, file ids are full object names. A folder
// exists once its marker object exists, so folder creation is a single
// conditional write.
type BucketStore struct {
	bucket     *storage.BucketHandle
	bucketName string
	rootPrefix string
	logger     *slog.Logger
}

// NewBucketStore builds a store over bucketName. rootPrefix is the shared intake folder.
func NewBucketStore(client *storage.Client, bucketName, rootPrefix string, logger *slog.Logger) *BucketStore {
	if logger == nil {
		logger = slog.Default()
	}
	if rootPrefix == "" {
		rootPrefix = "intake"
	}
	return &BucketStore{
		bucket:     client.Bucket(bucketName),
		bucketName: bucketName,
		rootPrefix: strings.Trim(rootPrefix, "/"),
		logger:     logger,
	}
}

func (s *BucketStore) RootFolderID() string { return s.rootPrefix }

func (s *BucketStore) FileURL(fileID string) string {
	return fmt.Sprintf("https://storage.cloud.google.com/%s/%s", s.bucketName, fileID)
}

// GetOrCreateUserFolder writes the folder marker with a does-not-exist precondition;
// concurrent callers all end up with the same prefix.
func (s *BucketStore) GetOrCreateUserFolder(ctx context.Context, userID string) (string, error) {
	folderID := UserFolderName(userID)
	created, err := gcp.CreateIfAbsent(ctx, s.bucket, folderID+"/"+folderMarker, "application/x-directory", strings.NewReader(""))
	if err != nil {
		return "", fmt.Errorf("failed to create user folder: %w", err)
	}
	if created {
		s.logger.Info("Created user folder.", "folderId", folderID)
	}
	return folderID, nil
}

// FindUserFolder reports whether the user's folder marker exists.
func (s *BucketStore) FindUserFolder(ctx context.Context, userID string) (string, bool, error) {
	folderID := UserFolderName(userID)
	if _, err := s.bucket.Object(folderID + "/" + folderMarker).Attrs(ctx); err != nil {
		if gcp.IsNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to look up user folder: %w", err)
	}
	return folderID, true, nil
}

// UploadFile stores content under a fresh object name; the display name lives in metadata
// so renames keep the id stable.
func (s *BucketStore) UploadFile(ctx context.Context, parentID, name, mimeType string, content io.Reader) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate object id: %w", err)
	}
	objectName := parentID + "/" + id.String()

	writer := s.bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = mimeType
	writer.Metadata = map[string]string{displayNameKey: name}
	if _, err := io.Copy(writer, content); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return objectName, nil
}

// ListChildren lists the direct children of a prefix. Sub-prefixes are reported as folders.
func (s *BucketStore) ListChildren(ctx context.Context, parentID string) ([]Node, error) {
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: parentID + "/", Delimiter: "/"})
	var nodes []Node
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list folder %s: %w", parentID, err)
		}
		if attrs.Prefix != "" {
			folderID := strings.TrimSuffix(attrs.Prefix, "/")
			nodes = append(nodes, Node{
				ID:        folderID,
				Name:      path.Base(folderID),
				ParentIDs: []string{parentID},
				MimeType:  FolderMimeType,
			})
			continue
		}
		if path.Base(attrs.Name) == folderMarker {
			continue
		}
		nodes = append(nodes, objectNode(parentID, attrs))
	}
	return nodes, nil
}

func (s *BucketStore) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	r, err := s.bucket.Object(fileID).NewReader(ctx)
	if err != nil {
		if gcp.IsNotFound(err) {
			return models.NotFound(fileID)
		}
		return fmt.Errorf("failed to open object %s: %w", fileID, err)
	}
	defer r.Close()

	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("failed to read object %s: %w", fileID, err)
	}
	return nil
}

func (s *BucketStore) RenameFile(ctx context.Context, fileID, newName string) error {
	_, err := s.bucket.Object(fileID).Update(ctx, storage.ObjectAttrsToUpdate{
		Metadata: map[string]string{displayNameKey: newName},
	})
	if err != nil {
		if gcp.IsNotFound(err) {
			return models.NotFound(fileID)
		}
		return fmt.Errorf("failed to rename object %s: %w", fileID, err)
	}
	return nil
}

func (s *BucketStore) DeleteFile(ctx context.Context, fileID string) error {
	if err := s.bucket.Object(fileID).Delete(ctx); err != nil {
		if gcp.IsNotFound(err) {
			return models.NotFound(fileID)
		}
		return fmt.Errorf("failed to delete object %s: %w", fileID, err)
	}
	return nil
}

// VerifyOwnership checks that the object exists directly under expectedParentID.
func (s *BucketStore) VerifyOwnership(ctx context.Context, fileID, expectedParentID string) (bool, error) {
	if parentOf(fileID) != expectedParentID {
		return false, nil
	}
	if _, err := s.bucket.Object(fileID).Attrs(ctx); err != nil {
		if gcp.IsNotFound(err) {
			return false, models.NotFound(fileID)
		}
		return false, fmt.Errorf("failed to fetch object %s: %w", fileID, err)
	}
	return true, nil
}

func objectNode(parentID string, attrs *storage.ObjectAttrs) Node {
	name := attrs.Metadata[displayNameKey]
	if name == "" {
		name = path.Base(attrs.Name)
	}
	size := attrs.Size
	return Node{
		ID:          attrs.Name,
		Name:        name,
		ParentIDs:   []string{parentID},
		MimeType:    attrs.ContentType,
		Size:        &size,
		CreatedTime: attrs.Created,
	}
}

// parentOf returns the prefix an object name lives under.
func parentOf(objectName string) string {
	i := strings.LastIndex(objectName, "/")
	if i < 0 {
		return ""
	}
	return objectName[:i]
}
