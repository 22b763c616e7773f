package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"finsight/internal/domain"
)

// JinaEmbedder calls the Jina embeddings API (OpenAI-compatible shape).
// Batches are retried with bounded backoff; a single Embed call is
// all-or-nothing.
type JinaEmbedder struct {
	apiKey    string
	model     string
	baseURL   string
	dimension int
	batchSize int
	retry     RetryPolicy
	limiter   *rate.Limiter
	client    *http.Client
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
	Task  string   `json:"task,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Error *apiError       `json:"error,omitempty"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewJinaEmbedder constructs an embedder reading the API key from the
// given environment variable.
func NewJinaEmbedder(apiKeyEnv, model string, batchSize int, requestsPerSec float64, retry RetryPolicy) (*JinaEmbedder, error) {
	apiKey := os.Getenv(apiKeyEnv)
	if apiKey == "" {
		return nil, fmt.Errorf("API key not found in environment variable: %s", apiKeyEnv)
	}

	dimension := 1024
	switch model {
	case "jina-embeddings-v3":
		dimension = 1024
	case "jina-embeddings-v4":
		dimension = 2048
	}

	if batchSize <= 0 {
		batchSize = 32
	}
	if requestsPerSec <= 0 {
		requestsPerSec = 2
	}

	return &JinaEmbedder{
		apiKey:    apiKey,
		model:     model,
		baseURL:   "https://api.jina.ai/v1",
		dimension: dimension,
		batchSize: batchSize,
		retry:     retry,
		limiter:   rate.NewLimiter(rate.Limit(requestsPerSec), 1),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// Embed generates one vector per input text, order preserving. Empty
// texts are rejected before any network call.
func (e *JinaEmbedder) Embed(texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, &domain.InvalidInputError{Reason: fmt.Sprintf("empty text at position %d", i)}
		}
	}

	allEmbeddings := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += e.batchSize {
		end := i + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		var embeddings [][]float32
		err := e.retry.Do(func() error {
			var batchErr error
			embeddings, batchErr = e.embedBatch(batch)
			return batchErr
		})
		if err != nil {
			return nil, &domain.EmbeddingProviderError{Op: "embed batch", Err: err}
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *JinaEmbedder) embedBatch(texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(context.Background()); err != nil {
		return nil, err
	}

	reqBody := embeddingRequest{
		Input: texts,
		Model: e.model,
		Task:  "text-matching",
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequest("POST", e.baseURL+"/embeddings", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200]
		}
		return nil, fmt.Errorf("failed to parse response (body: %s): %w", bodyPreview, err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("protocol fault: got %d embeddings for %d inputs", len(embResp.Data), len(texts))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range embResp.Data {
		if data.Index < 0 || data.Index >= len(embeddings) {
			return nil, fmt.Errorf("protocol fault: embedding index %d out of range", data.Index)
		}
		embeddings[data.Index] = data.Embedding
	}
	for i, emb := range embeddings {
		if len(emb) != e.dimension {
			return nil, fmt.Errorf("protocol fault: embedding %d has dimension %d, expected %d", i, len(emb), e.dimension)
		}
	}

	return embeddings, nil
}

func (e *JinaEmbedder) Dimension() int {
	return e.dimension
}

func (e *JinaEmbedder) ModelName() string {
	return e.model
}
