package narrative

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/Jordain/weather-storyteller/internal/apperr"
	"github.com/Jordain/weather-storyteller/internal/models"
)

const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIClient generates narratives through any OpenAI-compatible chat completions API.
type OpenAIClient struct {
	api   *openai.Client
	model string
}

func NewOpenAIClient(apiKey, baseURL, model string, timeout time.Duration) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if base := strings.TrimSpace(baseURL); base != "" {
		cfg.BaseURL = strings.TrimRight(base, "/")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}

	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIClient{api: openai.NewClientWithConfig(cfg), model: model}
}

func (c *OpenAIClient) Name() string { return "openai/" + c.model }

// Generate sends the forecast prompt as a single user message.
func (c *OpenAIClient) Generate(ctx context.Context, forecast models.ForecastResult) (string, error) {
	if err := checkForecast(forecast); err != nil {
		return "", err
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(forecast)},
		},
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", completionError(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.Malformed(apperr.ProviderNarrative, "no completion choices")
	}
	out := resp.Choices[0].Message.Content
	if strings.TrimSpace(out) == "" {
		return "", apperr.Malformed(apperr.ProviderNarrative, "completion text is empty")
	}
	return out, nil
}

// completionError maps a failed chat completion call. Provider statuses and
// transport failures are remote errors; a 2xx body that does not decode is malformed.
func completionError(err error) error {
	re := apperr.RemoteError{Provider: apperr.ProviderNarrative, Message: MsgRemote, Cause: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	var urlErr *url.Error
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &apiErr):
		re.Status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		re.Status = reqErr.HTTPStatusCode
	case errors.As(err, &urlErr):
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr),
		errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return apperr.MalformedResponseError{Provider: apperr.ProviderNarrative, Cause: err}
	}
	return re
}
