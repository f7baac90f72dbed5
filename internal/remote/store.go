// Package remote manages documents in a hierarchical remote store, including
// per-user folder provisioning and ownership checks.
package remote

import (
	"context"
	"fmt"
	"io"
	"time"
)

// FolderMimeType marks folder nodes.
const FolderMimeType = "application/vnd.google-apps.folder"

// Node is a folder or file as reported by the remote store. It is never cached.
type Node struct {
	ID          string
	Name        string
	ParentIDs   []string
	MimeType    string
	Size        *int64
	CreatedTime time.Time
}

// IsFolder reports whether the node is a folder.
func (n Node) IsFolder() bool {
	return n.MimeType == FolderMimeType
}

// Store is the remote file store used by the pipeline and file services.
// Operations on missing files return an error matching models.IsNotFoundOrForbidden.
type Store interface {
	// GetOrCreateUserFolder returns the id of the caller's folder, creating it once.
	GetOrCreateUserFolder(ctx context.Context, userID string) (string, error)
	// FindUserFolder returns the caller's folder id and whether it exists. It never creates.
	FindUserFolder(ctx context.Context, userID string) (string, bool, error)
	UploadFile(ctx context.Context, parentID, name, mimeType string, content io.Reader) (string, error)
	ListChildren(ctx context.Context, parentID string) ([]Node, error)
	// DownloadFile streams the file's bytes into w.
	DownloadFile(ctx context.Context, fileID string, w io.Writer) error
	RenameFile(ctx context.Context, fileID, newName string) error
	DeleteFile(ctx context.Context, fileID string) error
	// VerifyOwnership reports whether expectedParentID is among the file's parents.
	// A missing file is reported as false with a models.NotFound error.
	VerifyOwnership(ctx context.Context, fileID, expectedParentID string) (bool, error)
	FileURL(fileID string) string
	// RootFolderID is the shared intake folder scanned by batch reconciliation.
	RootFolderID() string
}

// UserFolderName is the folder name for a user's namespace.
func UserFolderName(userID string) string {
	return fmt.Sprintf("user_%s", userID)
}
