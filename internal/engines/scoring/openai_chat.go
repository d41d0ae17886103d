package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/voxpipe/voxpipe/internal/platform/logger"
)

// openAIChat is a minimal OpenAI-compatible chat-completions client, hand
// rolled on net/http the way the teacher's own internal/clients/openai
// package does (no SDK import there either — NewClient builds requests
// directly), narrowed to the single text-in/text-out call this domain needs.
type openAIChat struct {
	log        *logger.Logger
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

func NewOpenAIChat(log *logger.Logger, baseURL, apiKey, model string) Engine {
	if baseURL == "" {
		baseURL = "https://api.openai.com"
	}
	if model == "" {
		model = "gpt-4"
	}
	return &openAIChat{
		log:        log.With("engine", "openai_chat"),
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *openAIChat) Available() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *openAIChat) Score(ctx context.Context, systemPrompt, userPrompt string) (RawResult, error) {
	if !c.Available() {
		return RawResult{}, fmt.Errorf("scoring: no credential configured")
	}

	reqBody, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	})
	if err != nil {
		return RawResult{}, fmt.Errorf("scoring: marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return RawResult{}, fmt.Errorf("scoring: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return RawResult{}, fmt.Errorf("scoring: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return RawResult{}, fmt.Errorf("scoring: engine returned status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return RawResult{}, fmt.Errorf("scoring: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return RawResult{}, fmt.Errorf("scoring: empty response")
	}

	return RawResult{Text: parsed.Choices[0].Message.Content}, nil
}
