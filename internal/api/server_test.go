package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/rhyzero/file-organizer/internal/auth"
	"github.com/rhyzero/file-organizer/internal/classify"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/services"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type stubUploader struct {
	got  services.UploadRequest
	resp *models.UploadResponse
	err  error
}

func (s *stubUploader) Ingest(ctx context.Context, req services.UploadRequest) (*models.UploadResponse, error) {
	s.got = req
	return s.resp, s.err
}

type stubFiles struct {
	err error
}

func (s *stubFiles) List(ctx context.Context, userID string) ([]models.FileInfo, error) {
	return []models.FileInfo{{FileID: "f1", FileName: userID + ".pdf", Tags: []string{}, ExtractionStatus: models.StatusNotProcessed}}, s.err
}

func (s *stubFiles) Content(ctx context.Context, userID, fileID string) (*services.FileContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &services.FileContent{FileName: "a.pdf", MimeType: "application/pdf", Data: []byte("%PDF")}, nil
}

func (s *stubFiles) Delete(ctx context.Context, userID, fileID string) (*models.DeleteResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.DeleteResponse{Success: true, FileID: fileID}, nil
}

func (s *stubFiles) Rename(ctx context.Context, userID, fileID, newName string) (*models.RenameResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.RenameResponse{Success: true, FileID: fileID, NewFileName: newName}, nil
}

type stubSearch struct {
	query models.SearchQuery
	err   error
}

func (s *stubSearch) Search(ctx context.Context, q models.SearchQuery) ([]models.DocumentInfo, error) {
	s.query = q
	return []models.DocumentInfo{}, s.err
}

func (s *stubSearch) ByTag(ctx context.Context, tag string) ([]models.DocumentInfo, error) {
	return []models.DocumentInfo{{FileName: tag}}, nil
}

func (s *stubSearch) Academic(ctx context.Context, subject, keyword string) ([]models.DocumentInfo, error) {
	return []models.DocumentInfo{}, nil
}

func (s *stubSearch) UpdateTags(ctx context.Context, documentID string, req models.TagUpdateRequest) (*models.DocumentInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.DocumentInfo{ID: documentID, Tags: *req.Tags}, nil
}

func (s *stubSearch) Taxonomy() models.TaxonomyResponse {
	return models.TaxonomyResponse{Professional: []string{"legal"}, Academic: []string{"arts"}}
}

func (s *stubSearch) SupportedTags(ctx context.Context) *classify.SupportedTags {
	return &classify.SupportedTags{AllTags: []string{"legal", "arts"}}
}

type stubBatch struct {
	resp *models.BatchResponse
	err  error
	got  models.BatchRequest
}

func (s *stubBatch) StartBatch(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error) {
	s.got = req
	return s.resp, s.err
}

type testServer struct {
	*httptest.Server
	uploader *stubUploader
	files    *stubFiles
	search   *stubSearch
	batch    *stubBatch
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	verifier, err := auth.NewHMACVerifier([]byte(testSecret))
	if err != nil {
		t.Fatalf("NewHMACVerifier: %v", err)
	}
	token, err := verifier.Issue("alice", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	ts := &testServer{
		uploader: &stubUploader{resp: &models.UploadResponse{Status: http.StatusOK, Message: "Document successfully uploaded", Tags: []string{}}},
		files:    &stubFiles{},
		search:   &stubSearch{},
		batch:    &stubBatch{resp: &models.BatchResponse{Status: services.BatchStatusCompleted}},
		token:    token,
	}
	srv := NewServer(ServerConfig{
		Uploader:       ts.uploader,
		Files:          ts.files,
		Search:         ts.search,
		Batch:          ts.batch,
		Verifier:       verifier,
		MaxUploadBytes: 1 << 20,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	ts.Server = httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body io.Reader, contentType string, authed bool) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, body)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+ts.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func multipartBody(t *testing.T, field, fileName, mimeType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+fileName+`"`)
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	part.Write(data)
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/upload"},
		{http.MethodGet, "/api/files"},
		{http.MethodGet, "/api/files/f1/content"},
		{http.MethodDelete, "/api/files/f1"},
		{http.MethodPut, "/api/files/f1/rename"},
	} {
		resp := ts.do(t, tc.method, tc.path, nil, "", false)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("%s %s: got %d, want 401", tc.method, tc.path, resp.StatusCode)
		}
	}
}

func TestUpload(t *testing.T) {
	ts := newTestServer(t)
	body, ct := multipartBody(t, "document", "report.pdf", "application/pdf", []byte("%PDF-1.4"))

	resp := ts.do(t, http.MethodPost, "/upload", body, ct, true)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: got %d, want 200", resp.StatusCode)
	}
	got := ts.uploader.got
	if got.UserID != "alice" || got.FileName != "report.pdf" || got.MimeType != "application/pdf" || string(got.Content) != "%PDF-1.4" {
		t.Errorf("ingest request: %+v", got)
	}
}

func TestUploadMissingField(t *testing.T) {
	ts := newTestServer(t)
	body, ct := multipartBody(t, "file", "report.pdf", "application/pdf", []byte("x"))
	resp := ts.do(t, http.MethodPost, "/upload", body, ct, true)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: got %d, want 400", resp.StatusCode)
	}
}

func TestUploadFailureReturnsResponseBody(t *testing.T) {
	ts := newTestServer(t)
	ts.uploader.resp = &models.UploadResponse{Status: http.StatusInternalServerError, Message: "failed to upload file: boom", Tags: []string{}}
	ts.uploader.err = models.ErrExternalService
	body, ct := multipartBody(t, "document", "report.pdf", "application/pdf", []byte("x"))

	resp := ts.do(t, http.MethodPost, "/upload", body, ct, true)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", resp.StatusCode)
	}
	var out models.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Message != "failed to upload file: boom" {
		t.Errorf("message: got %q", out.Message)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.Forbidden("f1"), http.StatusNotFound},
		{models.NotFound("f1"), http.StatusNotFound},
		{models.ErrRecordNotFound, http.StatusNotFound},
		{models.Validationf("bad"), http.StatusBadRequest},
		{models.ErrUnsupportedFormat, http.StatusBadRequest},
		{models.ErrAuth, http.StatusUnauthorized},
		{models.ErrBatchInProgress, http.StatusConflict},
		{models.ErrExternalService, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v): got %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestFileRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/api/files", nil, "", true)
	var files []models.FileInfo
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(files) != 1 || files[0].FileName != "alice.pdf" {
		t.Errorf("files: %+v", files)
	}

	resp = ts.do(t, http.MethodGet, "/api/files/f1/content", nil, "", true)
	data, _ := io.ReadAll(resp.Body)
	if resp.Header.Get("Content-Type") != "application/pdf" || string(data) != "%PDF" {
		t.Errorf("content: %q %q", resp.Header.Get("Content-Type"), data)
	}

	resp = ts.do(t, http.MethodPut, "/api/files/f1/rename", strings.NewReader(`{"fileName":"b.pdf"}`), "application/json", true)
	var renamed models.RenameResponse
	json.NewDecoder(resp.Body).Decode(&renamed)
	if resp.StatusCode != http.StatusOK || renamed.NewFileName != "b.pdf" {
		t.Errorf("rename: %d %+v", resp.StatusCode, renamed)
	}

	ts.files.err = models.Forbidden("f1")
	resp = ts.do(t, http.MethodDelete, "/api/files/f1", nil, "", true)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("foreign delete: got %d, want 404", resp.StatusCode)
	}
}

func TestTagRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodGet, "/tags/search?tag1=legal&tag3=policy&keyword=clause&type=academic", nil, "", false)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("search: got %d", resp.StatusCode)
	}
	q := ts.search.query
	if q.Tag1 != "legal" || q.Tag2 != "" || q.Tag3 != "policy" || q.Keyword != "clause" || q.Type != "academic" {
		t.Errorf("query: %+v", q)
	}

	resp = ts.do(t, http.MethodGet, "/tags/by-tag/legal", nil, "", false)
	var infos []models.DocumentInfo
	json.NewDecoder(resp.Body).Decode(&infos)
	if len(infos) != 1 || infos[0].FileName != "legal" {
		t.Errorf("by-tag: %+v", infos)
	}

	resp = ts.do(t, http.MethodGet, "/tags/categories", nil, "", false)
	var tax models.TaxonomyResponse
	json.NewDecoder(resp.Body).Decode(&tax)
	if len(tax.Academic) != 1 || tax.Academic[0] != "arts" {
		t.Errorf("categories: %+v", tax)
	}

	resp = ts.do(t, http.MethodPut, "/tags/rec-1", strings.NewReader(`{"tags":["arts"]}`), "application/json", false)
	var info models.DocumentInfo
	json.NewDecoder(resp.Body).Decode(&info)
	if resp.StatusCode != http.StatusOK || info.ID != "rec-1" || len(info.Tags) != 1 {
		t.Errorf("update: %d %+v", resp.StatusCode, info)
	}

	resp = ts.do(t, http.MethodPut, "/tags/rec-1", strings.NewReader(`{not json`), "application/json", false)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad body: got %d, want 400", resp.StatusCode)
	}
}

func TestBatchRoutes(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(t, http.MethodPost, "/process/batch", nil, "", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("inline batch: got %d, want 200", resp.StatusCode)
	}

	ts.batch.resp = &models.BatchResponse{Status: services.BatchStatusDispatched, ExecutionID: "exec-1"}
	resp = ts.do(t, http.MethodPost, "/process/retry-failed", nil, "", false)
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("dispatched: got %d, want 202", resp.StatusCode)
	}
	if ts.batch.got.Mode != models.BatchModeRetryFailed {
		t.Errorf("mode: got %q", ts.batch.got.Mode)
	}

	ts.batch.err = models.ErrBatchInProgress
	resp = ts.do(t, http.MethodPost, "/process/batch", strings.NewReader(`{"mode":"reconcile"}`), "application/json", false)
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("overlap: got %d, want 409", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	resp := ts.do(t, http.MethodGet, "/health", nil, "", false)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: got %d", resp.StatusCode)
	}
}
