package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/records"
	"github.com/rhyzero/file-organizer/internal/remote"
)

const fakeRootID = "intake-root"

type fakeFile struct {
	node remote.Node
	data []byte
}

// fakeRemote is an in-memory remote.Store that counts every call.
type fakeRemote struct {
	mu        sync.Mutex
	files     map[string]*fakeFile
	order     []string
	nextID    int
	calls     int
	renames   int
	deletes   int
	uploadErr error
	// folders holds user folders created through GetOrCreateUserFolder.
	folders map[string]bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: map[string]*fakeFile{}, folders: map[string]bool{}}
}

func (f *fakeRemote) put(parentID, name, mimeType string, data []byte) string {
	f.nextID++
	id := fmt.Sprintf("file-%d", f.nextID)
	size := int64(len(data))
	f.files[id] = &fakeFile{
		node: remote.Node{
			ID:          id,
			Name:        name,
			ParentIDs:   []string{parentID},
			MimeType:    mimeType,
			Size:        &size,
			CreatedTime: time.Date(2024, 1, 1, 0, 0, f.nextID, 0, time.UTC),
		},
		data: data,
	}
	f.order = append(f.order, id)
	return id
}

func (f *fakeRemote) addFolder(parentID, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.put(parentID, name, remote.FolderMimeType, nil)
	f.files[id].node.Size = nil
}

func (f *fakeRemote) addFile(parentID, name, mimeType string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put(parentID, name, mimeType, data)
}

func (f *fakeRemote) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeRemote) GetOrCreateUserFolder(ctx context.Context, userID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	id := "folder-" + userID
	f.folders[id] = true
	return id, nil
}

// FindUserFolder treats a folder as existing once it was created or holds a file.
func (f *fakeRemote) FindUserFolder(ctx context.Context, userID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	id := "folder-" + userID
	if f.folders[id] {
		return id, true, nil
	}
	for _, file := range f.files {
		if len(file.node.ParentIDs) > 0 && file.node.ParentIDs[0] == id {
			return id, true, nil
		}
	}
	return "", false, nil
}

func (f *fakeRemote) folderCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.folders)
}

func (f *fakeRemote) UploadFile(ctx context.Context, parentID, name, mimeType string, content io.Reader) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return "", err
	}
	return f.put(parentID, name, mimeType, data), nil
}

func (f *fakeRemote) ListChildren(ctx context.Context, parentID string) ([]remote.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	var out []remote.Node
	for i := len(f.order) - 1; i >= 0; i-- {
		file, ok := f.files[f.order[i]]
		if ok && file.node.ParentIDs[0] == parentID {
			out = append(out, file.node)
		}
	}
	return out, nil
}

func (f *fakeRemote) DownloadFile(ctx context.Context, fileID string, w io.Writer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	file, ok := f.files[fileID]
	if !ok {
		return models.NotFound(fileID)
	}
	_, err := io.Copy(w, bytes.NewReader(file.data))
	return err
}

func (f *fakeRemote) RenameFile(ctx context.Context, fileID, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	file, ok := f.files[fileID]
	if !ok {
		return models.NotFound(fileID)
	}
	f.renames++
	file.node.Name = newName
	return nil
}

func (f *fakeRemote) DeleteFile(ctx context.Context, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if _, ok := f.files[fileID]; !ok {
		return models.NotFound(fileID)
	}
	f.deletes++
	delete(f.files, fileID)
	return nil
}

func (f *fakeRemote) VerifyOwnership(ctx context.Context, fileID, expectedParentID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	file, ok := f.files[fileID]
	if !ok {
		return false, models.NotFound(fileID)
	}
	for _, p := range file.node.ParentIDs {
		if p == expectedParentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRemote) FileURL(fileID string) string { return "https://files.test/" + fileID }

func (f *fakeRemote) RootFolderID() string { return fakeRootID }

// fakeRecords is an in-memory records.Store keyed by record id.
type fakeRecords struct {
	mu     sync.Mutex
	recs   map[string]*models.ExtractionRecord
	nextID int
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{recs: map[string]*models.ExtractionRecord{}}
}

func (f *fakeRecords) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recs)
}

func (f *fakeRecords) Create(ctx context.Context, rec *models.ExtractionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.RemoteFileID == rec.RemoteFileID {
			return models.ErrDuplicateRecord
		}
	}
	f.nextID++
	rec.ID = fmt.Sprintf("rec-%d", f.nextID)
	stored := *rec
	f.recs[rec.ID] = &stored
	return nil
}

func (f *fakeRecords) GetByID(ctx context.Context, id string) (*models.ExtractionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok {
		return nil, models.ErrRecordNotFound
	}
	out := *r
	return &out, nil
}

func (f *fakeRecords) GetByRemoteID(ctx context.Context, remoteFileID string) (*models.ExtractionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.RemoteFileID == remoteFileID {
			out := *r
			return &out, nil
		}
	}
	return nil, models.ErrRecordNotFound
}

func (f *fakeRecords) UpdateFileName(ctx context.Context, remoteFileID, fileName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.recs {
		if r.RemoteFileID == remoteFileID {
			r.FileName = fileName
			return nil
		}
	}
	return models.ErrRecordNotFound
}

func (f *fakeRecords) UpdateTags(ctx context.Context, id string, tags, snapshot *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	if tags != nil {
		r.Tags = *tags
	}
	if snapshot != nil {
		r.TagClassification = *snapshot
	}
	return nil
}

func (f *fakeRecords) UpdateExtraction(ctx context.Context, id string, text *string, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.recs[id]
	if !ok {
		return models.ErrRecordNotFound
	}
	r.ExtractedText = text
	r.Status = status
	r.ExtractionTime = time.Now().UTC()
	return nil
}

func (f *fakeRecords) DeleteByRemoteID(ctx context.Context, remoteFileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, r := range f.recs {
		if r.RemoteFileID == remoteFileID {
			delete(f.recs, id)
			return nil
		}
	}
	return models.ErrRecordNotFound
}

func (f *fakeRecords) filter(keep func(*models.ExtractionRecord) bool) []models.ExtractionRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ExtractionRecord
	for _, r := range f.recs {
		if keep(r) {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeRecords) FindByTag(ctx context.Context, tag string) ([]models.ExtractionRecord, error) {
	return f.filter(func(r *models.ExtractionRecord) bool { return strings.Contains(r.Tags, tag) }), nil
}

func (f *fakeRecords) FindByTags(ctx context.Context, tags []string) ([]models.ExtractionRecord, error) {
	return f.filter(func(r *models.ExtractionRecord) bool { return records.MatchesTags(r.Tags, tags) }), nil
}

func (f *fakeRecords) FindByKeyword(ctx context.Context, keyword string) ([]models.ExtractionRecord, error) {
	return f.filter(func(r *models.ExtractionRecord) bool { return records.MatchesKeyword(r, keyword) }), nil
}

func (f *fakeRecords) All(ctx context.Context) ([]models.ExtractionRecord, error) {
	return f.filter(func(*models.ExtractionRecord) bool { return true }), nil
}

func (f *fakeRecords) ListFailed(ctx context.Context) ([]models.ExtractionRecord, error) {
	return f.filter(func(r *models.ExtractionRecord) bool { return r.IsFailed() }), nil
}

func (f *fakeRecords) Close() error { return nil }

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeClassifier struct {
	payload models.ClassificationPayload
	err     error
	calls   int
}

func (f *fakeClassifier) Classify(ctx context.Context, text string) (models.ClassificationPayload, error) {
	f.calls++
	if f.err != nil {
		return models.EmptyClassification(), f.err
	}
	return f.payload, nil
}

func strPtr(s string) *string { return &s }
