// Package tags reduces classifier output into the tag forms the rest of the
// system stores and searches on.
package tags

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/rhyzero/file-organizer/internal/models"
)

// MaxMainTags bounds the canonical tag list.
const MaxMainTags = 3

// maxEncodedSecondary is how many secondary tags the encoded string carries.
const maxEncodedSecondary = 2

// MainTags returns all primary tags followed by as many secondary tags as fit
// under MaxMainTags. The result is never nil.
func MainTags(p models.ClassificationPayload) []string {
	out := make([]string, 0, MaxMainTags)
	out = append(out, p.PrimaryTags...)
	room := MaxMainTags - len(p.PrimaryTags)
	for i := 0; i < room && i < len(p.SecondaryTags); i++ {
		out = append(out, p.SecondaryTags[i])
	}
	if len(out) > MaxMainTags {
		out = out[:MaxMainTags]
	}
	return out
}

// EncodeTagString joins every primary tag and the first two secondary tags.
// Unlike MainTags it does not cap the primary tags, so it can hold more than
// MaxMainTags entries.
func EncodeTagString(p models.ClassificationPayload) string {
	parts := make([]string, 0, len(p.PrimaryTags)+maxEncodedSecondary)
	parts = append(parts, p.PrimaryTags...)
	for i := 0; i < maxEncodedSecondary && i < len(p.SecondaryTags); i++ {
		parts = append(parts, p.SecondaryTags[i])
	}
	return strings.Join(parts, ",")
}

// Snapshot serializes the payload verbatim. A marshal failure yields "{}".
func Snapshot(p models.ClassificationPayload) string {
	if p.IsEmpty() && len(p.Scores) == 0 {
		return "{}"
	}
	data, err := json.Marshal(p)
	if err != nil {
		slog.Warn("Failed to serialize classification snapshot.", "error", err)
		return "{}"
	}
	return string(data)
}

// ParseSnapshot decodes a stored snapshot into a generic map for API responses.
// Blank or invalid snapshots return nil.
func ParseSnapshot(snapshot string) map[string]interface{} {
	if strings.TrimSpace(snapshot) == "" {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(snapshot), &out); err != nil {
		return nil
	}
	return out
}

// SnapshotFromMap re-encodes a caller supplied classification map.
func SnapshotFromMap(m map[string]interface{}) (string, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// SnapshotType returns the document_type stored in a snapshot, if any.
func SnapshotType(snapshot string) string {
	if strings.TrimSpace(snapshot) == "" {
		return ""
	}
	var p models.ClassificationPayload
	if err := json.Unmarshal([]byte(snapshot), &p); err != nil {
		return ""
	}
	return p.TypeHint()
}
