// Package classify sends document text to a classification backend and decodes
// the answer into a models.ClassificationPayload.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rhyzero/file-organizer/internal/models"
)

// Classifier returns tag suggestions for a text body. Implementations make a
// single attempt. On failure they return EmptyClassification together with the
// error so callers can choose to continue with the empty payload.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.ClassificationPayload, error)
}

// SupportedTags is the tag catalogue a classifier advertises.
type SupportedTags struct {
	AllTags       []string               `json:"all_tags"`
	TagHierarchy  map[string]interface{} `json:"tag_hierarchy,omitempty"`
	DocumentRules interface{}            `json:"document_rules,omitempty"`
}

// TagLister is implemented by classifiers that can report their tag catalogue.
type TagLister interface {
	SupportedTags(ctx context.Context) (*SupportedTags, error)
}

// decodePayload parses a classifier answer, tolerating markdown code fences
// around the JSON. Nil tag lists are normalized to empty ones.
func decodePayload(raw string) (models.ClassificationPayload, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var p models.ClassificationPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return models.EmptyClassification(), fmt.Errorf("parse classification: %w", err)
	}
	if p.PrimaryTags == nil {
		p.PrimaryTags = []string{}
	}
	if p.SecondaryTags == nil {
		p.SecondaryTags = []string{}
	}
	return p, nil
}

// failed wraps err as an external service failure and pairs it with the empty payload.
func failed(err error) (models.ClassificationPayload, error) {
	return models.EmptyClassification(), fmt.Errorf("%w: classifier: %v", models.ErrExternalService, err)
}
