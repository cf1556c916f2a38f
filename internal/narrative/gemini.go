package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
)

const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-1.5-flash-latest"
)

// GeminiClient calls the generateContent endpoint of the Generative Language API.
type GeminiClient struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

type GeminiOption func(*GeminiClient)

func WithGeminiBaseURL(u string) GeminiOption {
	return func(c *GeminiClient) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithGeminiModel(model string) GeminiOption {
	return func(c *GeminiClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithGeminiTimeout(d time.Duration) GeminiOption {
	return func(c *GeminiClient) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(apiKey string, opts ...GeminiOption) *GeminiClient {
	c := &GeminiClient{
		apiKey:  apiKey,
		baseURL: DefaultGeminiBaseURL,
		model:   DefaultGeminiModel,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

// GenerateContentRequest is the single-turn request body.
type GenerateContentRequest struct {
	Contents []geminiContent `json:"contents"`
}

type generateContentResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text *string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

func (c *GeminiClient) Name() string { return "gemini/" + c.model }

// Generate sends the forecast prompt and returns the first candidate's first text part.
func (c *GeminiClient) Generate(ctx context.Context, forecast models.ForecastResult) (string, error) {
	if err := checkForecast(forecast); err != nil {
		return "", err
	}

	payload := GenerateContentRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: BuildPrompt(forecast)}}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", apperr.RemoteError{Provider: apperr.ProviderNarrative, Message: MsgRemote, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", apperr.RemoteError{Provider: apperr.ProviderNarrative, Message: MsgRemote, Status: resp.StatusCode}
	}

	var out generateContentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", apperr.MalformedResponseError{Provider: apperr.ProviderNarrative, Cause: err}
	}
	return out.text()
}

func (c *GeminiClient) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, url.PathEscape(c.model), url.QueryEscape(c.apiKey))
}

func (r generateContentResponse) text() (string, error) {
	if len(r.Candidates) == 0 {
		if r.PromptFeedback != nil && r.PromptFeedback.BlockReason != "" {
			return "", apperr.Malformed(apperr.ProviderNarrative, "no candidates (blocked: %s)", r.PromptFeedback.BlockReason)
		}
		return "", apperr.Malformed(apperr.ProviderNarrative, "no candidates")
	}
	parts := r.Candidates[0].Content.Parts
	if len(parts) == 0 || parts[0].Text == nil {
		return "", apperr.Malformed(apperr.ProviderNarrative, "candidate has no text part")
	}
	if strings.TrimSpace(*parts[0].Text) == "" {
		return "", apperr.Malformed(apperr.ProviderNarrative, "candidate text is empty")
	}
	return *parts[0].Text, nil
}
