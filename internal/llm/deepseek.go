package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// deepSeekURL is a var so tests can override it with an httptest.Server URL.
var deepSeekURL = "https://api.deepseek.com/chat/completions"

const (
	deepSeekModel = "deepseek-chat"
	httpTimeout   = 30 * time.Second
)

// Sentinel errors for the two ways the model collaborator can fail. Callers
// never surface these to the API client — they trigger the rule fallback.
var (
	ErrUnavailable = errors.New("llm: model unavailable")
	ErrTimeout     = errors.New("llm: model timeout")
)

var httpClient = &http.Client{Timeout: httpTimeout}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepSeekRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	ResponseFormat map[string]string `json:"response_format"`
}

type deepSeekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client is a text-completion client: prompt in, raw text out. The caller
// owns all interpretation of the output.
type Client struct {
	apiKey string
}

func NewClient(apiKey string) *Client {
	return &Client{apiKey: apiKey}
}

// Complete sends the prompt (with the compiled system prompt) to DeepSeek and
// returns the raw content of the first choice. Errors wrap ErrTimeout or
// ErrUnavailable so callers can branch without string matching.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody, err := json.Marshal(deepSeekRequest{
		Model: deepSeekModel,
		Messages: []chatMessage{
			{Role: "system", Content: SystemPrompt()},
			{Role: "user", Content: prompt},
		},
		ResponseFormat: map[string]string{"type": "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("%w: marshal request: %v", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deepSeekURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, string(body))
	}

	var dsResp deepSeekResponse
	if err := json.NewDecoder(resp.Body).Decode(&dsResp); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	if len(dsResp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	return dsResp.Choices[0].Message.Content, nil
}

// ─── Test helpers (exported for use in handler tests) ─────────────────────────

// SetBaseURL overrides deepSeekURL. Only call this from tests.
func SetBaseURL(url string) {
	deepSeekURL = url
}
