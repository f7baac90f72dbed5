package api

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/rhyzero/file-organizer/internal/auth"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/services"
)

const uploadField = "document"

func (s *Server) upload(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes)

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusBadRequest, "uploaded file exceeds the size limit")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"document\" is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploaded file")
		return
	}

	resp, err := s.config.Uploader.Ingest(r.Context(), services.UploadRequest{
		UserID:   userID,
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Content:  content,
	})
	if err != nil {
		if resp != nil {
			s.logger.Error("Upload failed.", "userId", userID, "error", err)
			writeJSON(w, resp.Status, resp)
			return
		}
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) listFiles(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	files, err := s.config.Files.List(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, files)
}

func (s *Server) fileContent(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	content, err := s.config.Files.Content(r.Context(), userID, chi.URLParam(r, "fileId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", content.MimeType)
	if disposition := mime.FormatMediaType("inline", map[string]string{"filename": content.FileName}); disposition != "" {
		w.Header().Set("Content-Disposition", disposition)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(content.Data)
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	resp, err := s.config.Files.Delete(r.Context(), userID, chi.URLParam(r, "fileId"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) renameFile(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserID(r.Context())
	var req models.RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	resp, err := s.config.Files.Rename(r.Context(), userID, chi.URLParam(r, "fileId"), req.FileName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.config.Search.Search(r.Context(), models.SearchQuery{
		Tag1:    q.Get("tag1"),
		Tag2:    q.Get("tag2"),
		Tag3:    q.Get("tag3"),
		Keyword: q.Get("keyword"),
		Type:    q.Get("type"),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) academicSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	results, err := s.config.Search.Academic(r.Context(), q.Get("subject"), q.Get("keyword"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) byTag(w http.ResponseWriter, r *http.Request) {
	results, err := s.config.Search.ByTag(r.Context(), chi.URLParam(r, "tag"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) categories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Search.Taxonomy())
}

func (s *Server) supportedTags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.config.Search.SupportedTags(r.Context()))
}

func (s *Server) updateTags(w http.ResponseWriter, r *http.Request) {
	var req models.TagUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	info, err := s.config.Search.UpdateTags(r.Context(), chi.URLParam(r, "documentId"), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) batch(w http.ResponseWriter, r *http.Request) {
	var req models.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.startBatch(w, r, req)
}

func (s *Server) retryFailed(w http.ResponseWriter, r *http.Request) {
	s.startBatch(w, r, models.BatchRequest{
		Mode:        models.BatchModeRetryFailed,
		ExecutionID: strings.TrimSpace(r.URL.Query().Get("executionId")),
	})
}

func (s *Server) startBatch(w http.ResponseWriter, r *http.Request, req models.BatchRequest) {
	resp, err := s.config.Batch.StartBatch(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if resp.Status == services.BatchStatusDispatched {
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}
