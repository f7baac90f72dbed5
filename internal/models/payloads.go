package models

// These structs define the JSON payloads exchanged with API clients
// and with the workflow that drives batch reconciliation.

// UploadResponse is the result of an interactive ingestion.
type UploadResponse struct {
	Status       int      `json:"status"`
	Message      string   `json:"message"`
	URL          string   `json:"url,omitempty"`
	FileName     string   `json:"fileName,omitempty"`
	Tags         []string `json:"tags"`
	DocumentType string   `json:"documentType,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
}

// FileInfo is one entry of a caller's file listing.
type FileInfo struct {
	FileID            string                 `json:"fileId"`
	FileName          string                 `json:"fileName"`
	MimeType          string                 `json:"mimeType"`
	URL               string                 `json:"url"`
	UploadDate        string                 `json:"uploadDate,omitempty"`
	Size              *int64                 `json:"size,omitempty"`
	Tags              []string               `json:"tags"`
	TagClassification map[string]interface{} `json:"tagClassification,omitempty"`
	ExtractionStatus  string                 `json:"extractionStatus"`
	ProcessingDate    *string                `json:"processingDate,omitempty"`
}

// DocumentInfo is one search result, built from an ExtractionRecord.
type DocumentInfo struct {
	ID                string                 `json:"id"`
	FileName          string                 `json:"fileName"`
	FileID            string                 `json:"fileId"`
	MimeType          string                 `json:"mimeType"`
	ExtractionTime    string                 `json:"extractionTime,omitempty"`
	Tags              []string               `json:"tags"`
	URL               string                 `json:"url"`
	TagClassification map[string]interface{} `json:"tagClassification,omitempty"`
	DocumentType      string                 `json:"documentType"`
}

// RenameRequest is the body of a rename call.
type RenameRequest struct {
	FileName string `json:"fileName"`
}

// RenameResponse is returned after a successful rename.
type RenameResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	FileID      string `json:"fileId"`
	NewFileName string `json:"newFileName"`
}

// DeleteResponse is returned after a successful delete.
type DeleteResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	FileID  string `json:"fileId"`
}

// TagUpdateRequest overwrites a record's tags and/or classification snapshot.
// Nil fields are left untouched.
type TagUpdateRequest struct {
	Tags              *[]string              `json:"tags,omitempty"`
	TagClassification map[string]interface{} `json:"tagClassification,omitempty"`
}

// SearchQuery carries the optional search filters.
type SearchQuery struct {
	Tag1    string
	Tag2    string
	Tag3    string
	Keyword string
	Type    string
}

// HasTags reports whether any tag filter is set.
func (q SearchQuery) HasTags() bool {
	return q.Tag1 != "" || q.Tag2 != "" || q.Tag3 != ""
}

// Tags returns the non-empty tag filters in order.
func (q SearchQuery) Tags() []string {
	var tags []string
	for _, t := range []string{q.Tag1, q.Tag2, q.Tag3} {
		if t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// TaxonomyResponse lists the tag categories.
type TaxonomyResponse struct {
	Professional []string `json:"professional"`
	Academic     []string `json:"academic"`
}

// BatchRequest is the argument handed to the reconciliation workflow.
type BatchRequest struct {
	Mode        string `json:"mode"`
	ExecutionID string `json:"executionId,omitempty"`
}

// BatchResponse reports the per-file outcome of a reconciliation run.
type BatchResponse struct {
	Status      string            `json:"status"`
	Results     map[string]string `json:"results,omitempty"`
	ExecutionID string            `json:"executionId,omitempty"`
}

// Batch modes.
const (
	BatchModeReconcile   = "reconcile"
	BatchModeRetryFailed = "retry-failed"
)
