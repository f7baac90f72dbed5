// Package api exposes the document services over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rhyzero/file-organizer/internal/auth"
	"github.com/rhyzero/file-organizer/internal/classify"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/services"
)

// Uploader ingests one uploaded document.
type Uploader interface {
	Ingest(ctx context.Context, req services.UploadRequest) (*models.UploadResponse, error)
}

// FileManager serves a caller's own files.
type FileManager interface {
	List(ctx context.Context, userID string) ([]models.FileInfo, error)
	Content(ctx context.Context, userID, fileID string) (*services.FileContent, error)
	Delete(ctx context.Context, userID, fileID string) (*models.DeleteResponse, error)
	Rename(ctx context.Context, userID, fileID, newName string) (*models.RenameResponse, error)
}

// Searcher answers tag queries and edits stored tags.
type Searcher interface {
	Search(ctx context.Context, q models.SearchQuery) ([]models.DocumentInfo, error)
	ByTag(ctx context.Context, tag string) ([]models.DocumentInfo, error)
	Academic(ctx context.Context, subject, keyword string) ([]models.DocumentInfo, error)
	UpdateTags(ctx context.Context, documentID string, req models.TagUpdateRequest) (*models.DocumentInfo, error)
	Taxonomy() models.TaxonomyResponse
	SupportedTags(ctx context.Context) *classify.SupportedTags
}

// BatchStarter starts a reconciliation or retry run.
type BatchStarter interface {
	StartBatch(ctx context.Context, req models.BatchRequest) (*models.BatchResponse, error)
}

// ServerConfig holds the collaborators of the HTTP surface.
type ServerConfig struct {
	Uploader       Uploader
	Files          FileManager
	Search         Searcher
	Batch          BatchStarter
	Verifier       auth.Verifier
	MaxUploadBytes int64
	Logger         *slog.Logger
}

// Server routes HTTP requests to the document services.
type Server struct {
	config ServerConfig
	logger *slog.Logger
	router chi.Router
}

// NewServer builds the router.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 50 << 20
	}
	s := &Server{config: cfg, logger: cfg.Logger}
	s.router = s.routes()
	return s
}

// NewServerFromApp wires a Server to every service of app.
func NewServerFromApp(app *services.App) *Server {
	return NewServer(ServerConfig{
		Uploader:       app.Ingestor,
		Files:          app.Files,
		Search:         app.Search,
		Batch:          app,
		Verifier:       app.Verifier,
		MaxUploadBytes: app.Config.MaxUploadBytes,
		Logger:         app.Logger,
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withCORS)

	r.Get("/health", s.health)

	r.Group(func(r chi.Router) {
		r.Use(s.requireUser)
		r.Post("/upload", s.upload)
		r.Route("/api/files", func(r chi.Router) {
			r.Get("/", s.listFiles)
			r.Get("/{fileId}/content", s.fileContent)
			r.Delete("/{fileId}", s.deleteFile)
			r.Put("/{fileId}/rename", s.renameFile)
		})
	})

	r.Route("/tags", func(r chi.Router) {
		r.Get("/search", s.search)
		r.Get("/search/academic", s.academicSearch)
		r.Get("/by-tag/{tag}", s.byTag)
		r.Get("/categories", s.categories)
		r.Get("/supported", s.supportedTags)
		r.Put("/{documentId}", s.updateTags)
	})

	r.Route("/process", func(r chi.Router) {
		r.Post("/batch", s.batch)
		r.Post("/retry-failed", s.retryFailed)
	})
	return r
}

// requireUser rejects requests without a valid bearer token and stores the user id.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := auth.Authenticate(r, s.config.Verifier)
		if err != nil {
			s.logger.Info("Rejected unauthenticated request.", "path", r.URL.Path, "error", err)
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), userID)))
	})
}

// withCORS adds CORS headers for browser clients.
func withCORS(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrUnsupportedFormat):
		return http.StatusBadRequest
	case services.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, models.ErrBatchInProgress):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed.", "path", r.URL.Path, "requestId", middleware.GetReqID(r.Context()), "error", err)
	}
	writeError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
