package classify

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"cloud.google.com/go/vertexai/genai"

	"github.com/rhyzero/file-organizer/internal/gcp"
	"github.com/rhyzero/file-organizer/internal/models"
	"github.com/rhyzero/file-organizer/internal/tags"
)

// maxPromptChars caps how much document text is sent to the model.
const maxPromptChars = 100_000

// Generator is the slice of *genai.GenerativeModel the classifier needs.
type Generator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

// VertexClient classifies text with a Gemini model constrained to the taxonomy.
type VertexClient struct {
	model    Generator
	taxonomy *tags.Taxonomy
}

// NewVertexClient wraps a generative model, usually gcp.VertexClient.ClassifierModel.
func NewVertexClient(model Generator, taxonomy *tags.Taxonomy) *VertexClient {
	if taxonomy == nil {
		taxonomy = tags.Default()
	}
	return &VertexClient{model: model, taxonomy: taxonomy}
}

// Classify asks the model for a JSON payload and decodes it.
func (c *VertexClient) Classify(ctx context.Context, text string) (models.ClassificationPayload, error) {
	text = truncateUTF8(text, maxPromptChars)
	prompt := gcp.ClassifierPrompt(c.taxonomy.Professional, c.taxonomy.Academic) + text

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return failed(fmt.Errorf("vertex AI call failed: %w", err))
	}

	raw := responseText(resp)
	if raw == "" {
		return failed(fmt.Errorf("model returned no content"))
	}
	p, err := decodePayload(raw)
	if err != nil {
		return failed(err)
	}
	return p, nil
}

// SupportedTags reports the taxonomy the model is prompted with.
func (c *VertexClient) SupportedTags(ctx context.Context) (*SupportedTags, error) {
	all := append(append([]string{}, c.taxonomy.Professional...), c.taxonomy.Academic...)
	return &SupportedTags{
		AllTags: all,
		TagHierarchy: map[string]interface{}{
			models.DocumentTypeProfessional: c.taxonomy.Professional,
			models.DocumentTypeAcademic:     c.taxonomy.Academic,
		},
	}, nil
}

// truncateUTF8 cuts text to at most limit bytes without splitting a rune.
func truncateUTF8(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	return sb.String()
}
