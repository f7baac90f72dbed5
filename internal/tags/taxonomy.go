package tags

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rhyzero/file-organizer/internal/models"
)

// DefaultProfessional is the professional category list.
var DefaultProfessional = []string{
	"legal", "financial", "technical", "marketing", "hr", "strategic", "research",
	"policy", "report", "product", "customer", "correspondence", "administrative", "compliance",
}

// DefaultAcademic is the fixed academic taxonomy.
var DefaultAcademic = []string{
	"math-science", "humanities", "computer", "business-studies", "arts", "assignment",
}

// Taxonomy partitions tags into academic and professional categories.
type Taxonomy struct {
	Professional []string `yaml:"professional"`
	Academic     []string `yaml:"academic"`

	academic map[string]struct{}
}

// NewTaxonomy builds a taxonomy from explicit lists.
func NewTaxonomy(professional, academic []string) *Taxonomy {
	t := &Taxonomy{
		Professional: append([]string(nil), professional...),
		Academic:     append([]string(nil), academic...),
	}
	t.index()
	return t
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	return NewTaxonomy(DefaultProfessional, DefaultAcademic)
}

// LoadTaxonomy reads a YAML taxonomy file. An empty path returns Default.
// Missing lists in the file fall back to the defaults.
func LoadTaxonomy(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	if len(t.Professional) == 0 {
		t.Professional = append([]string(nil), DefaultProfessional...)
	}
	if len(t.Academic) == 0 {
		t.Academic = append([]string(nil), DefaultAcademic...)
	}
	t.index()
	return &t, nil
}

func (t *Taxonomy) index() {
	t.academic = make(map[string]struct{}, len(t.Academic))
	for _, tag := range t.Academic {
		t.academic[tag] = struct{}{}
	}
}

// IsAcademicTag reports whether a single tag is in the academic list.
func (t *Taxonomy) IsAcademicTag(tag string) bool {
	_, ok := t.academic[tag]
	return ok
}

// IsAcademicTags reports whether any tag is in the academic list.
func (t *Taxonomy) IsAcademicTags(tags []string) bool {
	for _, tag := range tags {
		if t.IsAcademicTag(tag) {
			return true
		}
	}
	return false
}

// IsAcademic applies the document type rule to a classifier payload: an explicit
// "academic" hint wins, otherwise the canonical tags decide.
func (t *Taxonomy) IsAcademic(p models.ClassificationPayload) bool {
	if p.TypeHint() == models.DocumentTypeAcademic {
		return true
	}
	return t.IsAcademicTags(MainTags(p))
}

// DocumentType returns "academic" or "professional" for a payload.
func (t *Taxonomy) DocumentType(p models.ClassificationPayload) string {
	if t.IsAcademic(p) {
		return models.DocumentTypeAcademic
	}
	return models.DocumentTypeProfessional
}

// RecordType computes the partition for a stored record. A stored snapshot
// type takes precedence, otherwise the persisted tags decide.
func (t *Taxonomy) RecordType(r models.ExtractionRecord) string {
	if hint := SnapshotType(r.TagClassification); hint == models.DocumentTypeAcademic || hint == models.DocumentTypeProfessional {
		return hint
	}
	if t.IsAcademicTags(r.TagList()) {
		return models.DocumentTypeAcademic
	}
	return models.DocumentTypeProfessional
}

// Response returns the listing served to API callers.
func (t *Taxonomy) Response() models.TaxonomyResponse {
	return models.TaxonomyResponse{
		Professional: append([]string(nil), t.Professional...),
		Academic:     append([]string(nil), t.Academic...),
	}
}
