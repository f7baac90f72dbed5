// Package records persists one ExtractionRecord per remote file the pipeline has handled.
package records

import (
	"context"
	"strings"

	"github.com/rhyzero/file-organizer/internal/models"
)

// Store is the extraction record store. Create assigns the record id and fails
// with models.ErrDuplicateRecord when the remote file id is already recorded.
// Lookups that find nothing return models.ErrRecordNotFound.
type Store interface {
	Create(ctx context.Context, rec *models.ExtractionRecord) error
	GetByID(ctx context.Context, id string) (*models.ExtractionRecord, error)
	GetByRemoteID(ctx context.Context, remoteFileID string) (*models.ExtractionRecord, error)
	UpdateFileName(ctx context.Context, remoteFileID, fileName string) error
	// UpdateTags overwrites the encoded tags and/or snapshot. Nil arguments are left as stored.
	UpdateTags(ctx context.Context, id string, tags, snapshot *string) error
	// UpdateExtraction rewrites the outcome of an extraction attempt for an existing record.
	UpdateExtraction(ctx context.Context, id string, text *string, status string) error
	DeleteByRemoteID(ctx context.Context, remoteFileID string) error

	FindByTag(ctx context.Context, tag string) ([]models.ExtractionRecord, error)
	// FindByTags returns records whose encoded tags contain every given tag.
	FindByTags(ctx context.Context, tags []string) ([]models.ExtractionRecord, error)
	FindByKeyword(ctx context.Context, keyword string) ([]models.ExtractionRecord, error)
	All(ctx context.Context) ([]models.ExtractionRecord, error)
	ListFailed(ctx context.Context) ([]models.ExtractionRecord, error)

	Close() error
}

// MatchesTags reports whether the encoded tag string contains every tag.
// Matching is a case-sensitive substring test; empty tags are ignored.
func MatchesTags(encoded string, tags []string) bool {
	for _, t := range tags {
		if t == "" {
			continue
		}
		if !strings.Contains(encoded, t) {
			return false
		}
	}
	return true
}

// MatchesKeyword reports whether the extracted text contains keyword.
// Records without text never match.
func MatchesKeyword(rec *models.ExtractionRecord, keyword string) bool {
	if rec.ExtractedText == nil {
		return false
	}
	return strings.Contains(*rec.ExtractedText, keyword)
}

func nonEmpty(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
