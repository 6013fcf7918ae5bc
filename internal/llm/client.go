// Package llm implements the structured-output client for the AI vision
// service that extracts invoice data from page images.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/sony/gobreaker"

	"github.com/billfold-ai/invoice-engine/internal/domain"
	"github.com/billfold-ai/invoice-engine/internal/observability"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-2024-08-06"

	systemPrompt = "You are an invoice data extraction assistant. Extract all fields " +
		"from the invoice images. For fields you cannot find or read, return null. " +
		"For confidence scores, rate 0-100 how confident you are in each section's " +
		"extraction accuracy. Return 0 confidence if the section data is mostly null."

	userPrompt = "Extract all invoice data from the following document pages."
)

// Config holds client construction parameters.
type Config struct {
	APIKey           string
	BaseURL          string
	Model            string
	MaxTokens        int
	BreakerThreshold int
	BreakerWindow    time.Duration
	BreakerCooldown  time.Duration
}

// Client sends multimodal structured-output requests to an OpenAI-compatible
// chat completions endpoint. It is the only network-bound component in the
// pipeline and carries its own circuit breaker: repeated service failures
// open the breaker and short-circuit further attempts until a cool-down
// passes, independent of the stage retry budget above.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	logger     *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// ResponseFormat requests a strictly schema-constrained response.
type ResponseFormat struct {
	Type       string     `json:"type"`
	JSONSchema JSONSchema `json:"json_schema"`
}

// JSONSchema names the schema the service must conform to.
type JSONSchema struct {
	Name   string `json:"name"`
	Strict bool   `json:"strict"`
	Schema Node   `json:"schema"`
}

// Request represents the API request structure
type Request struct {
	Model          string         `json:"model"`
	Messages       []Message      `json:"messages"`
	ResponseFormat ResponseFormat `json:"response_format"`
	MaxTokens      int            `json:"max_tokens"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage carries the structured content of a completion.
type ChoiceMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewClient creates a new structured-output client.
func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 10
	}
	if cfg.BreakerWindow == 0 {
		cfg.BreakerWindow = 5 * time.Minute
	}
	if cfg.BreakerCooldown == 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	log := logger.WithComponent("llm")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "extraction",
		MaxRequests: 1,
		Interval:    cfg.BreakerWindow,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(cfg.BreakerThreshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		model:      cfg.Model,
		maxTokens:  cfg.MaxTokens,
		httpClient: &http.Client{},
		breaker:    breaker,
		logger:     log,
	}
}

// Complete sends all page images in a single multimodal request and returns
// the raw structured JSON content of the response. Decoding into the
// candidate type is the extractor's concern.
func (c *Client) Complete(ctx context.Context, imagePaths []string) (json.RawMessage, error) {
	req, err := c.buildRequest(imagePaths)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, domain.ExtractionError("failed to marshal request", err)
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.send(ctx, body)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.ExtractionError("extraction circuit breaker open", err)
		}
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.ExtractionError("extraction request failed", err)
	}

	return result.(json.RawMessage), nil
}

// send performs one full request/response cycle, including transport retries.
func (c *Client) send(ctx context.Context, body []byte) (json.RawMessage, error) {
	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
			c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		return nil, domain.ExtractionError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, domain.ExtractionError(
			fmt.Sprintf("API returned status %d: %s", resp.StatusCode, truncate(string(bodyBytes), 500)), nil)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, domain.ExtractionError("failed to read response", err)
	}

	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return nil, domain.ExtractionError("response contained no content", nil)
	}

	return json.RawMessage(parsed.Choices[0].Message.Content), nil
}

// buildRequest constructs the single multimodal request: one system
// instruction plus one user turn carrying all page images in order.
func (c *Client) buildRequest(imagePaths []string) (*Request, error) {
	content := []ContentPart{{Type: "text", Text: userPrompt}}

	for _, imagePath := range imagePaths {
		imageData, err := os.ReadFile(imagePath)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, domain.MissingArtifactError(fmt.Sprintf("image file missing: %s", imagePath))
			}
			return nil, domain.ExtractionError(fmt.Sprintf("failed to read image: %s", imagePath), err)
		}

		content = append(content, ContentPart{
			Type: "image_url",
			ImageURL: &ImageURL{
				URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageData),
				Detail: "high",
			},
		})
	}

	return &Request{
		Model: c.model,
		Messages: []Message{
			{Role: "system", Content: []ContentPart{{Type: "text", Text: systemPrompt}}},
			{Role: "user", Content: content},
		},
		ResponseFormat: ResponseFormat{
			Type: "json_schema",
			JSONSchema: JSONSchema{
				Name:   "invoice_extraction",
				Strict: true,
				Schema: InvoiceSchema(),
			},
		},
		MaxTokens: c.maxTokens,
	}, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
