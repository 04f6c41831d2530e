package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

// dmrEmbeddingsPath is the Docker Model Runner route used over the Unix socket.
const dmrEmbeddingsPath = "http://localhost/exp/vDD4.40/engines/llama.cpp/v1/embeddings"

// Config holds embeddings client configuration.
type Config struct {
	BaseURL    string // OpenAI-compatible base URL, e.g. "http://localhost:12434/engines/v1"
	SocketPath string // Unix socket path for Docker Model Runner, used when BaseURL is empty
	Model      string // Model name (e.g., "ai/embeddinggemma")
	Timeout    time.Duration
}

// Client calls an OpenAI-compatible embeddings API.
type Client struct {
	httpClient *http.Client
	endpoint   string
	model      string
}

// New creates a new embeddings client.
func New(config Config) (*Client, error) {
	if config.BaseURL == "" && config.SocketPath == "" {
		return nil, fmt.Errorf("base URL or socket path is required")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.BaseURL != "" {
		return &Client{
			httpClient: &http.Client{Timeout: config.Timeout},
			endpoint:   strings.TrimRight(config.BaseURL, "/") + "/embeddings",
			model:      config.Model,
		}, nil
	}

	socketPath := config.SocketPath
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		},
	}

	return &Client{
		httpClient: &http.Client{Transport: transport, Timeout: config.Timeout},
		endpoint:   dmrEmbeddingsPath,
		model:      config.Model,
	}, nil
}

// embeddingRequest is the request payload for the embeddings API.
type embeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

// embeddingResponse is the response from the embeddings API.
type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// MaxInputRunes limits input to stay within the model context window.
// Chunks are far below it; the limit guards against misconfigured chunk sizes.
const MaxInputRunes = 20000

// Embed generates an embedding vector for the given text.
// Text exceeding MaxInputRunes is truncated from the end.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if r := []rune(text); len(r) > MaxInputRunes {
		slog.Debug("truncating embedding input", "original_len", len(r), "truncated_len", MaxInputRunes)
		text = string(r[:MaxInputRunes])
	}

	body, err := json.Marshal(embeddingRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var embResp embeddingResponse
	if err := json.Unmarshal(respBody, &embResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if embResp.Error != nil {
		return nil, fmt.Errorf("API error: %s", embResp.Error.Message)
	}

	if len(embResp.Data) == 0 || len(embResp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}

	return embResp.Data[0].Embedding, nil
}

// Dimensions returns the expected embedding dimensions for common models.
func Dimensions(model string) int {
	switch model {
	case "ai/embeddinggemma", "nomic-embed-text":
		return 768
	case "ai/snowflake-arctic-embed", "ai/mxbai-embed-large":
		return 1024
	case "ai/qwen3-embedding":
		return 2560
	case "text-embedding-3-small":
		return 1536
	default:
		return 768 // default assumption
	}
}
