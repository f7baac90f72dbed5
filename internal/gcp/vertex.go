package gcp

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/vertexai/genai"
)

// --- Classifier Model Prompts ---
const ClassifierSystemPrompt = "You are a document classifier. You assign short category tags to the text of office documents and decide whether each document is academic or professional. You must output your response as a single valid JSON object."

// ClassifierUserPrompt is formatted with the comma-separated professional and academic tag lists.
const ClassifierUserPrompt = `Classify the document text that follows.

Follow these rules precisely:
1.  Only use tags from these lists.
    Professional: %s
    Academic: %s
2.  "primary_tags" holds exactly one tag: the best match.
3.  "secondary_tags" holds at most two further tags, and only tags you are confident about.
4.  "scores" maps every tag you used to a confidence between 0.0 and 1.0.
5.  "document_type" is "academic" if any chosen tag is in the academic list, otherwise "professional".
6.  Output only the JSON object, no text before or after it.

Example output format:
{"primary_tags": ["technical"], "secondary_tags": ["report", "compliance"], "scores": {"technical": 0.87, "report": 0.71, "compliance": 0.64}, "document_type": "professional"}

Document text:
`

// VertexClient holds the pre-configured generative model used for classification.
type VertexClient struct {
	ClassifierModel *genai.GenerativeModel
	baseClient      *genai.Client
}

// NewVertexClient creates a new client holding the classifier model.
func NewVertexClient(ctx context.Context, projectID, region string) (*VertexClient, error) {
	if projectID == "" || region == "" {
		return nil, fmt.Errorf("NewVertexClient: projectID and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, projectID, region)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}

	classifierModel := baseClient.GenerativeModel("gemini-1.5-flash")
	classifierModel.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(ClassifierSystemPrompt)},
	}
	classifierModel.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0.0),
	}

	return &VertexClient{
		ClassifierModel: classifierModel,
		baseClient:      baseClient,
	}, nil
}

// ClassifierPrompt renders the user prompt for the given taxonomy lists.
func ClassifierPrompt(professional, academic []string) string {
	return fmt.Sprintf(ClassifierUserPrompt, strings.Join(professional, ", "), strings.Join(academic, ", "))
}

func (c *VertexClient) Close() error {
	if c.baseClient != nil {
		return c.baseClient.Close()
	}
	return nil
}
