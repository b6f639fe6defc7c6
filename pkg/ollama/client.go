package ollama

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/menta2k/biometric-photo/pkg/client"
	"github.com/menta2k/biometric-photo/pkg/types"
)

// Client wraps the Ollama API client
type Client struct {
	client *api.Client
}

// NewClient creates a new Ollama client
func NewClient(ollamaURL string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("invalid URL: %q needs a scheme and host", ollamaURL)
	}

	// Drop any path like /api/chat; the SDK adds its own
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}

	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

var _ client.VisionClient = (*Client)(nil)

// Ping checks that the Ollama server answers
func (c *Client) Ping(ctx context.Context) error {
	if err := c.client.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama heartbeat: %w", err)
	}
	return nil
}

// DetectFaces asks model for face boxes in the image
func (c *Client) DetectFaces(ctx context.Context, model, prompt, imgB64 string) (*types.FaceAnalysis, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 120*time.Second)
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %w", err)
	}

	options := map[string]any{"temperature": 0.0}
	modelLower := strings.ToLower(model)
	if strings.Contains(modelLower, "minicpm-v") || strings.Contains(modelLower, "llava") {
		options["num_ctx"] = 4096
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream:  &streamFalse,
		Format:  json.RawMessage(`"json"`),
		Options: options,
	}

	var responseContent strings.Builder
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %w", err)
	}

	if responseContent.Len() == 0 {
		return nil, fmt.Errorf("empty response from ollama")
	}

	return client.ParseFaceAnalysis(responseContent.String())
}
