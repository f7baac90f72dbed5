package models

// Document types returned by the classifier and used for the taxonomy partition.
const (
	DocumentTypeAcademic     = "academic"
	DocumentTypeProfessional = "professional"
)

// ClassificationPayload is the decoded response of the classification service.
// It is decoded once at the classifier boundary and also serves as the persisted
// tag classification snapshot.
type ClassificationPayload struct {
	PrimaryTags   []string           `json:"primary_tags"`
	SecondaryTags []string           `json:"secondary_tags"`
	Scores        map[string]float64 `json:"scores,omitempty"`
	DocumentType  *string            `json:"document_type,omitempty"`
}

// EmptyClassification is what a failed or skipped classification degrades to.
func EmptyClassification() ClassificationPayload {
	return ClassificationPayload{
		PrimaryTags:   []string{},
		SecondaryTags: []string{},
	}
}

// IsEmpty reports whether the payload carries no tags and no document type hint.
func (p ClassificationPayload) IsEmpty() bool {
	return len(p.PrimaryTags) == 0 && len(p.SecondaryTags) == 0 && p.DocumentType == nil
}

// TypeHint returns the document_type value or an empty string.
func (p ClassificationPayload) TypeHint() string {
	if p.DocumentType == nil {
		return ""
	}
	return *p.DocumentType
}

// Confidence returns the score of the first primary tag, if the service reported one.
func (p ClassificationPayload) Confidence() *float64 {
	if len(p.PrimaryTags) == 0 || p.Scores == nil {
		return nil
	}
	score, ok := p.Scores[p.PrimaryTags[0]]
	if !ok {
		return nil
	}
	return &score
}
