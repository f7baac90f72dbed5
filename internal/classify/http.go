package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rhyzero/file-organizer/internal/models"
)

const defaultHTTPTimeout = 60 * time.Second

// maxResponseBytes bounds how much of a classifier response is read.
const maxResponseBytes = 4 << 20

// HTTPClient talks to a classification service exposing POST /classify and
// GET /supported-tags.
type HTTPClient struct {
	classifyURL string
	baseURL     string
	httpClient  *http.Client
}

// NewHTTPClient creates a client for the given /classify URL. A nil httpClient
// gets a client with a 60 second timeout.
func NewHTTPClient(classifyURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	base := strings.TrimSuffix(strings.TrimSuffix(classifyURL, "/"), "/classify")
	return &HTTPClient{
		classifyURL: classifyURL,
		baseURL:     base,
		httpClient:  httpClient,
	}
}

type classifyRequest struct {
	Text string `json:"text"`
}

// Classify posts the text and decodes the payload.
func (c *HTTPClient) Classify(ctx context.Context, text string) (models.ClassificationPayload, error) {
	body, err := json.Marshal(classifyRequest{Text: text})
	if err != nil {
		return failed(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.classifyURL, bytes.NewReader(body))
	if err != nil {
		return failed(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	data, err := c.do(req)
	if err != nil {
		return failed(err)
	}

	p, err := decodePayload(string(data))
	if err != nil {
		return failed(err)
	}
	return p, nil
}

// SupportedTags fetches the service's tag catalogue.
func (c *HTTPClient) SupportedTags(ctx context.Context) (*SupportedTags, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/supported-tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	data, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: supported tags: %v", models.ErrExternalService, err)
	}
	var out SupportedTags
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%w: decode supported tags: %v", models.ErrExternalService, err)
	}
	return &out, nil
}

func (c *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return data, nil
}
