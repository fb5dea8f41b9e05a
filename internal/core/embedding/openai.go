package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mnemo-cli/mnemo/internal/core/config"
)

const defaultOpenAIEndpoint = "https://api.openai.com/v1"

// OpenAI calls an OpenAI-compatible /embeddings endpoint. Works against
// the real API and against any server speaking the same wire format.
type OpenAI struct {
	endpoint string
	apiKey   string
	model    string
	dims     int
	client   *http.Client
}

func NewOpenAI(cfg config.EmbeddingConfig) (*OpenAI, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai embedding provider requires an API key")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultOpenAIEndpoint
	}
	model := cfg.Model
	if model == "" {
		model = "text-embedding-3-small"
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAI{
		endpoint: strings.TrimRight(endpoint, "/"),
		apiKey:   cfg.APIKey,
		model:    model,
		dims:     cfg.Dimensions,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

func (o *OpenAI) Dimensions() int   { return o.dims }
func (o *OpenAI) ModelName() string { return o.model }

func (o *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := o.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (o *OpenAI) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, fmt.Errorf("%w: text %d is empty", ErrInvalidInput, i)
		}
	}

	reqBody := openAIRequest{
		Model: o.model,
		Input: texts,
	}
	// text-embedding-3 models accept a dimensions parameter for truncated
	// output; older models reject it, so only send when configured.
	if o.dims > 0 && strings.HasPrefix(o.model, "text-embedding-3") {
		reqBody.Dimensions = o.dims
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTPError(resp.StatusCode, body)
	}

	var parsed openAIResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrUnavailable, len(parsed.Data), len(texts))
	}

	vecs := make([][]float32, len(texts))
	for _, item := range parsed.Data {
		if item.Index < 0 || item.Index >= len(vecs) {
			return nil, fmt.Errorf("%w: embedding index %d out of range", ErrUnavailable, item.Index)
		}
		vecs[item.Index] = item.Embedding
	}
	return vecs, nil
}

// classifyHTTPError maps status codes onto the retry taxonomy. Rate limits
// and server errors are transient; anything else 4xx means the request
// itself is bad.
func classifyHTTPError(status int, body []byte) error {
	msg := httpErrorMessage(body)
	if status == http.StatusTooManyRequests || status >= 500 {
		return fmt.Errorf("%w: status %d: %s", ErrUnavailable, status, msg)
	}
	return fmt.Errorf("%w: status %d: %s", ErrInvalidInput, status, msg)
}

func httpErrorMessage(body []byte) string {
	var wrapper struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error.Message != "" {
		return wrapper.Error.Message
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
