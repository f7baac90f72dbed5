package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/rhyzero/file-organizer/internal/models"
)

const testBucket = "docs-bucket"

type fakeObject struct {
	Name        string            `json:"name"`
	Bucket      string            `json:"bucket"`
	ContentType string            `json:"contentType,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Size        string            `json:"size"`
	Generation  string            `json:"generation"`
	TimeCreated string            `json:"timeCreated"`
	content     []byte
}

// fakeGCS implements the JSON and XML endpoints the bucket store calls.
type fakeGCS struct {
	mu         sync.Mutex
	objects    map[string]*fakeObject
	generation int
	inserts    int
	conflicts  int
	updates    int
	deletes    int
}

func newFakeGCS() *fakeGCS {
	return &fakeGCS{objects: make(map[string]*fakeObject)}
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	jsonPrefix := "/storage/v1/b/" + testBucket + "/o"
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/upload/storage/v1/b/"+testBucket+"/o":
		f.handleInsert(w, r)
	case r.Method == http.MethodGet && r.URL.Path == jsonPrefix:
		f.handleList(w, r)
	case strings.HasPrefix(r.URL.EscapedPath(), jsonPrefix+"/"):
		name, err := url.PathUnescape(strings.TrimPrefix(r.URL.EscapedPath(), jsonPrefix+"/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.handleObject(w, r, name)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/"+testBucket+"/"):
		obj, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/"+testBucket+"/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", obj.ContentType)
		w.Header().Set("Content-Length", strconv.Itoa(len(obj.content)))
		w.Write(obj.content)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGCS) handleInsert(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("uploadType") != "multipart" {
		http.Error(w, "only multipart uploads are supported", http.StatusBadRequest)
		return
	}
	_, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mr := multipart.NewReader(r.Body, params["boundary"])
	metaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var obj fakeObject
	if err := json.NewDecoder(metaPart).Decode(&obj); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	mediaPart, err := mr.NextPart()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	obj.content, _ = io.ReadAll(mediaPart)

	if r.URL.Query().Get("ifGenerationMatch") == "0" {
		if _, exists := f.objects[obj.Name]; exists {
			f.conflicts++
			writeGCSError(w, http.StatusPreconditionFailed, "At least one of the pre-conditions you specified did not hold.")
			return
		}
	}

	f.generation++
	obj.Bucket = testBucket
	obj.Size = strconv.Itoa(len(obj.content))
	obj.Generation = strconv.Itoa(f.generation)
	obj.TimeCreated = time.Date(2025, 1, 1, 0, 0, f.generation, 0, time.UTC).Format(time.RFC3339)
	f.objects[obj.Name] = &obj
	f.inserts++
	writeFakeJSON(w, &obj)
}

func (f *fakeGCS) handleList(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	delim := r.URL.Query().Get("delimiter")

	names := make([]string, 0, len(f.objects))
	for name := range f.objects {
		names = append(names, name)
	}
	sort.Strings(names)

	items := []*fakeObject{}
	prefixes := []string{}
	seen := map[string]bool{}
	for _, name := range names {
		if !strings.HasPrefix(name, prefix) {
			continue
		}
		rest := strings.TrimPrefix(name, prefix)
		if i := strings.Index(rest, delim); delim != "" && i >= 0 {
			p := prefix + rest[:i+1]
			if !seen[p] {
				seen[p] = true
				prefixes = append(prefixes, p)
			}
			continue
		}
		items = append(items, f.objects[name])
	}
	writeFakeJSON(w, map[string]interface{}{
		"kind":     "storage#objects",
		"items":    items,
		"prefixes": prefixes,
	})
}

func (f *fakeGCS) handleObject(w http.ResponseWriter, r *http.Request, name string) {
	obj, ok := f.objects[name]
	if !ok {
		writeGCSError(w, http.StatusNotFound, "No such object: "+testBucket+"/"+name)
		return
	}
	switch r.Method {
	case http.MethodGet:
		if r.URL.Query().Get("alt") == "media" {
			w.Write(obj.content)
			return
		}
		writeFakeJSON(w, obj)
	case http.MethodPatch:
		var patch fakeObject
		json.NewDecoder(r.Body).Decode(&patch)
		if obj.Metadata == nil {
			obj.Metadata = map[string]string{}
		}
		for k, v := range patch.Metadata {
			obj.Metadata[k] = v
		}
		f.updates++
		writeFakeJSON(w, obj)
	case http.MethodDelete:
		delete(f.objects, name)
		f.deletes++
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeGCSError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"code": code, "message": msg},
	})
}

func (f *fakeGCS) put(name, contentType, displayName string, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generation++
	obj := &fakeObject{
		Name:        name,
		Bucket:      testBucket,
		ContentType: contentType,
		Size:        strconv.Itoa(len(content)),
		Generation:  strconv.Itoa(f.generation),
		TimeCreated: time.Date(2025, 1, 1, 0, 0, f.generation, 0, time.UTC).Format(time.RFC3339),
		content:     content,
	}
	if displayName != "" {
		obj.Metadata = map[string]string{displayNameKey: displayName}
	}
	f.objects[name] = obj
}

func (f *fakeGCS) counts() (inserts, conflicts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inserts, f.conflicts
}

func newTestBucketStore(t *testing.T) (*BucketStore, *fakeGCS) {
	t.Helper()
	fake := newFakeGCS()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithHTTPClient(srv.Client()),
		option.WithoutAuthentication(),
	)
	if err != nil {
		t.Fatalf("storage.NewClient: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return NewBucketStore(client, testBucket, "", nil), fake
}

func TestBucketGetOrCreateUserFolderIsStable(t *testing.T) {
	store, fake := newTestBucketStore(t)
	ctx := context.Background()

	first, err := store.GetOrCreateUserFolder(ctx, "alice")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := store.GetOrCreateUserFolder(ctx, "alice")
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if first != "user_alice" || second != first {
		t.Fatalf("folder ids: %q, %q; want user_alice twice", first, second)
	}
	inserts, conflicts := fake.counts()
	if inserts != 1 || conflicts != 1 {
		t.Fatalf("inserts = %d, conflicts = %d; want 1 and 1", inserts, conflicts)
	}
	if _, ok := fake.objects["user_alice/"+folderMarker]; !ok {
		t.Fatal("folder marker not written")
	}
}

func TestBucketGetOrCreateUserFolderConcurrent(t *testing.T) {
	store, fake := newTestBucketStore(t)

	var wg sync.WaitGroup
	ids := make([]string, 8)
	errs := make([]error, 8)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = store.GetOrCreateUserFolder(context.Background(), "bob")
		}(i)
	}
	wg.Wait()

	for i := range ids {
		if errs[i] != nil {
			t.Fatalf("call %d: %v", i, errs[i])
		}
		if ids[i] != "user_bob" {
			t.Fatalf("call %d returned %q, want user_bob", i, ids[i])
		}
	}
	inserts, conflicts := fake.counts()
	if inserts != 1 || conflicts != len(ids)-1 {
		t.Fatalf("inserts = %d, conflicts = %d; want 1 and %d", inserts, conflicts, len(ids)-1)
	}
}

func TestBucketFindUserFolder(t *testing.T) {
	store, fake := newTestBucketStore(t)
	ctx := context.Background()

	if _, found, err := store.FindUserFolder(ctx, "carol"); err != nil || found {
		t.Fatalf("FindUserFolder before create = %v, %v", found, err)
	}
	if inserts, _ := fake.counts(); inserts != 0 {
		t.Fatalf("inserts = %d, want 0", inserts)
	}
	if _, err := store.GetOrCreateUserFolder(ctx, "carol"); err != nil {
		t.Fatalf("GetOrCreateUserFolder: %v", err)
	}
	id, found, err := store.FindUserFolder(ctx, "carol")
	if err != nil || !found || id != "user_carol" {
		t.Fatalf("FindUserFolder = %q, %v, %v", id, found, err)
	}
}

func TestBucketUploadListDownload(t *testing.T) {
	store, _ := newTestBucketStore(t)
	ctx := context.Background()

	folder, err := store.GetOrCreateUserFolder(ctx, "dana")
	if err != nil {
		t.Fatalf("GetOrCreateUserFolder: %v", err)
	}
	id, err := store.UploadFile(ctx, folder, "report.pdf", "application/pdf", strings.NewReader("pdf bytes"))
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if parentOf(id) != folder {
		t.Fatalf("object %q not under %q", id, folder)
	}

	nodes, err := store.ListChildren(ctx, folder)
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(nodes) != 1 {
		t.Fatalf("nodes = %+v, want only the uploaded file", nodes)
	}
	n := nodes[0]
	if n.ID != id || n.Name != "report.pdf" || n.MimeType != "application/pdf" || n.IsFolder() {
		t.Fatalf("node = %+v", n)
	}
	if n.Size == nil || *n.Size != int64(len("pdf bytes")) {
		t.Fatalf("size = %v", n.Size)
	}

	var buf bytes.Buffer
	if err := store.DownloadFile(ctx, id, &buf); err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if buf.String() != "pdf bytes" {
		t.Fatalf("content = %q", buf.String())
	}
	if got := store.FileURL(id); got != "https://storage.cloud.google.com/"+testBucket+"/"+id {
		t.Fatalf("FileURL = %q", got)
	}
}

func TestBucketListChildrenReportsFolders(t *testing.T) {
	store, fake := newTestBucketStore(t)
	fake.put("intake/scan.pdf", "application/pdf", "", []byte("x"))
	fake.put("intake/archive/"+folderMarker, "application/x-directory", "", nil)

	nodes, err := store.ListChildren(context.Background(), store.RootFolderID())
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	var folders, files []string
	for _, n := range nodes {
		if n.IsFolder() {
			folders = append(folders, n.ID)
		} else {
			files = append(files, n.Name)
		}
	}
	if len(folders) != 1 || folders[0] != "intake/archive" {
		t.Fatalf("folders = %v", folders)
	}
	if len(files) != 1 || files[0] != "scan.pdf" {
		t.Fatalf("files = %v", files)
	}
}

func TestBucketVerifyOwnership(t *testing.T) {
	store, fake := newTestBucketStore(t)
	ctx := context.Background()
	fake.put("user_erin/doc-1", "application/pdf", "erin.pdf", []byte("e"))

	ok, err := store.VerifyOwnership(ctx, "user_erin/doc-1", "user_erin")
	if err != nil || !ok {
		t.Fatalf("own file: %v, %v", ok, err)
	}

	ok, err = store.VerifyOwnership(ctx, "user_erin/doc-1", "user_frank")
	if err != nil || ok {
		t.Fatalf("foreign prefix: %v, %v; want false, nil", ok, err)
	}

	ok, err = store.VerifyOwnership(ctx, "user_frank/missing", "user_frank")
	if ok || !models.IsNotFoundOrForbidden(err) {
		t.Fatalf("missing file: %v, %v; want NotFoundOrForbidden", ok, err)
	}
}

func TestBucketRenameDelete(t *testing.T) {
	store, fake := newTestBucketStore(t)
	ctx := context.Background()
	fake.put("user_gail/doc-1", "application/pdf", "draft.pdf", []byte("g"))

	if err := store.RenameFile(ctx, "user_gail/doc-1", "final.pdf"); err != nil {
		t.Fatalf("RenameFile: %v", err)
	}
	if got := fake.objects["user_gail/doc-1"].Metadata[displayNameKey]; got != "final.pdf" {
		t.Fatalf("display name = %q, want final.pdf", got)
	}
	nodes, err := store.ListChildren(ctx, "user_gail")
	if err != nil || len(nodes) != 1 || nodes[0].Name != "final.pdf" || nodes[0].ID != "user_gail/doc-1" {
		t.Fatalf("after rename: %+v, %v", nodes, err)
	}

	if err := store.DeleteFile(ctx, "user_gail/doc-1"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}
	if fake.deletes != 1 {
		t.Fatalf("deletes = %d, want 1", fake.deletes)
	}

	for name, err := range map[string]error{
		"rename":   store.RenameFile(ctx, "user_gail/doc-1", "again.pdf"),
		"delete":   store.DeleteFile(ctx, "user_gail/doc-1"),
		"download": store.DownloadFile(ctx, "user_gail/doc-1", io.Discard),
	} {
		if !models.IsNotFoundOrForbidden(err) {
			t.Errorf("%s missing object: got %v, want NotFoundOrForbidden", name, err)
		}
	}
}
