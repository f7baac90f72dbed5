package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/rhyzero/file-organizer/internal/classify"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/records"
	"github.com/rhyzero/file-organizer/internal/tags"
)

// SearchService answers tag, keyword and taxonomy queries over the record store
// and edits stored tags.
type SearchService struct {
	records   records.Store
	taxonomy  *tags.Taxonomy
	tagLister classify.TagLister
	fileURL   func(string) string
	logger    *slog.Logger
}

// NewSearchService builds a SearchService. tagLister may be nil.
func NewSearchService(recs records.Store, taxonomy *tags.Taxonomy, tagLister classify.TagLister, fileURL func(string) string, logger *slog.Logger) *SearchService {
	if taxonomy == nil {
		taxonomy = tags.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SearchService{records: recs, taxonomy: taxonomy, tagLister: tagLister, fileURL: fileURL, logger: logger}
}

// Search picks one primary filter, in order: type, then tags, then keyword.
// The keyword further narrows a type or tag result. No criteria yields nothing.
// An unknown type returns every record.
func (s *SearchService) Search(ctx context.Context, q models.SearchQuery) ([]models.DocumentInfo, error) {
	var (
		recs []models.ExtractionRecord
		err  error
	)
	switch {
	case q.Type != "":
		recs, err = s.byType(ctx, q.Type)
	case q.HasTags():
		recs, err = s.records.FindByTags(ctx, q.Tags())
	case q.Keyword != "":
		recs, err = s.records.FindByKeyword(ctx, q.Keyword)
	default:
		return []models.DocumentInfo{}, nil
	}
	if err != nil {
		return nil, err
	}

	if q.Keyword != "" && (q.Type != "" || q.HasTags()) {
		recs = filterKeyword(recs, q.Keyword)
	}
	return s.toInfos(recs), nil
}

// ByTag returns records whose encoded tags contain tag.
func (s *SearchService) ByTag(ctx context.Context, tag string) ([]models.DocumentInfo, error) {
	recs, err := s.records.FindByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return s.toInfos(recs), nil
}

// Academic returns records tagged with subject, or every academic record when
// subject is blank, optionally narrowed by keyword.
func (s *SearchService) Academic(ctx context.Context, subject, keyword string) ([]models.DocumentInfo, error) {
	var (
		recs []models.ExtractionRecord
		err  error
	)
	if subject != "" {
		recs, err = s.records.FindByTag(ctx, subject)
	} else {
		recs, err = s.byType(ctx, models.DocumentTypeAcademic)
	}
	if err != nil {
		return nil, err
	}
	if keyword != "" {
		recs = filterKeyword(recs, keyword)
	}
	return s.toInfos(recs), nil
}

func (s *SearchService) byType(ctx context.Context, docType string) ([]models.ExtractionRecord, error) {
	all, err := s.records.All(ctx)
	if err != nil {
		return nil, err
	}
	docType = strings.ToLower(docType)
	if docType != models.DocumentTypeAcademic && docType != models.DocumentTypeProfessional {
		return all, nil
	}
	var out []models.ExtractionRecord
	for _, r := range all {
		if s.taxonomy.RecordType(r) == docType {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpdateTags overwrites a record's tags and/or classification snapshot. A snapshot
// that cannot be encoded is dropped without blocking the tag update.
func (s *SearchService) UpdateTags(ctx context.Context, documentID string, req models.TagUpdateRequest) (*models.DocumentInfo, error) {
	if _, err := s.records.GetByID(ctx, documentID); err != nil {
		return nil, err
	}

	var encoded, snapshot *string
	if req.Tags != nil {
		joined := strings.Join(*req.Tags, ",")
		encoded = &joined
	}
	if req.TagClassification != nil {
		snap, err := tags.SnapshotFromMap(req.TagClassification)
		if err != nil {
			s.logger.Warn("Failed to encode tag classification, keeping stored value.", "documentId", documentID, "error", err)
		} else {
			snapshot = &snap
		}
	}

	if err := s.records.UpdateTags(ctx, documentID, encoded, snapshot); err != nil {
		return nil, err
	}
	updated, err := s.records.GetByID(ctx, documentID)
	if err != nil {
		return nil, err
	}
	info := s.toInfo(*updated)
	return &info, nil
}

// Taxonomy lists the tag categories.
func (s *SearchService) Taxonomy() models.TaxonomyResponse {
	return s.taxonomy.Response()
}

// SupportedTags asks the classifier for its catalogue and falls back to the taxonomy.
func (s *SearchService) SupportedTags(ctx context.Context) *classify.SupportedTags {
	if s.tagLister != nil {
		st, err := s.tagLister.SupportedTags(ctx)
		if err == nil {
			return st
		}
		s.logger.Warn("Failed to fetch supported tags from classifier, using taxonomy.", "error", err)
	}
	all := append(append([]string{}, s.taxonomy.Professional...), s.taxonomy.Academic...)
	return &classify.SupportedTags{
		AllTags: all,
		TagHierarchy: map[string]interface{}{
			models.DocumentTypeProfessional: s.taxonomy.Professional,
			models.DocumentTypeAcademic:     s.taxonomy.Academic,
		},
	}
}

func (s *SearchService) toInfos(recs []models.ExtractionRecord) []models.DocumentInfo {
	out := make([]models.DocumentInfo, 0, len(recs))
	for _, r := range recs {
		out = append(out, s.toInfo(r))
	}
	return out
}

func (s *SearchService) toInfo(r models.ExtractionRecord) models.DocumentInfo {
	info := models.DocumentInfo{
		ID:                r.ID,
		FileName:          r.FileName,
		FileID:            r.RemoteFileID,
		MimeType:          r.MimeType,
		Tags:              r.TagList(),
		TagClassification: tags.ParseSnapshot(r.TagClassification),
		DocumentType:      s.taxonomy.RecordType(r),
	}
	if s.fileURL != nil {
		info.URL = s.fileURL(r.RemoteFileID)
	}
	if !r.ExtractionTime.IsZero() {
		info.ExtractionTime = r.ExtractionTime.UTC().Format(time.RFC3339)
	}
	return info
}

func filterKeyword(recs []models.ExtractionRecord, keyword string) []models.ExtractionRecord {
	var out []models.ExtractionRecord
	for i := range recs {
		if records.MatchesKeyword(&recs[i], keyword) {
			out = append(out, recs[i])
		}
	}
	return out
}

// IsNotFound reports whether err means the requested record or file does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, models.ErrRecordNotFound) || models.IsNotFoundOrForbidden(err)
}
