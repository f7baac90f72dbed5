package models

import (
	"strings"
	"time"
)

// Extraction statuses. Failed records carry the reason after the prefix.
const (
	StatusSuccess      = "Success"
	StatusFailedPrefix = "Failed: "
	StatusNotProcessed = "Not processed"
)

// ExtractionRecord is the durable record of one remote file the pipeline has handled.
// Its presence, whatever the status, is what marks a remote file as already seen.
type ExtractionRecord struct {
	ID                string    `firestore:"id" json:"id"`
	FileName          string    `firestore:"fileName" json:"fileName"`
	RemoteFileID      string    `firestore:"remoteFileId" json:"fileId"`
	MimeType          string    `firestore:"mimeType" json:"mimeType"`
	ExtractedText     *string   `firestore:"extractedText" json:"-"`
	ExtractionTime    time.Time `firestore:"extractionTime" json:"extractionTime"`
	Status            string    `firestore:"status" json:"status"`
	Tags              string    `firestore:"tags" json:"-"`              // comma-encoded
	TagClassification string    `firestore:"tagClassification" json:"-"` // serialized snapshot
}

// FailedStatus formats the status stored for a failed extraction.
func FailedStatus(reason string) string {
	return StatusFailedPrefix + reason
}

// IsFailed reports whether the record's status is a Failed:<reason> status.
func (r *ExtractionRecord) IsFailed() bool {
	return strings.HasPrefix(r.Status, strings.TrimSpace(StatusFailedPrefix))
}

// TagList decodes the comma-encoded tag string. An empty string yields an empty, non-nil slice.
func (r *ExtractionRecord) TagList() []string {
	return SplitTags(r.Tags)
}

// SplitTags decodes a comma-encoded tag string.
func SplitTags(encoded string) []string {
	if encoded == "" {
		return []string{}
	}
	return strings.Split(encoded, ",")
}

// Text returns the extracted text or an empty string when extraction never produced any.
func (r *ExtractionRecord) Text() string {
	if r.ExtractedText == nil {
		return ""
	}
	return *r.ExtractedText
}
