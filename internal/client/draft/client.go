// Package draft generates the notification email body for a submission by
// asking an OpenAI-compatible chat completion endpoint.
package draft

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/photodrop/internal/common"
	"github.com/dmitrijs2005/photodrop/internal/logging"
)

const defaultHTTPTimeout = 60 * time.Second

// Message is what the operator sees when generation fails for any reason.
const Message = "Failed to generate email draft. Please check your API key and network connection."

const promptTemplate = `You are a friendly assistant for "Photo Illusions", a professional event photography company.
A customer with the email "%s" has requested a digital copy of their photo. Their photo is from folder number "%s".
Generate a short, professional, and friendly email body for them.
Mention that their photo is attached and thank them for choosing Photo Illusions at the event.
Do not include a subject line or signature, only the body of the email.`

// Prompt fills the fixed template with the submission fields.
func Prompt(email, folderNumber string) string {
	return fmt.Sprintf(promptTemplate, email, folderNumber)
}

// Config captures the settings required to talk to the model.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// GenerationError is the single error kind returned by Generate.
type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string { return Message }

func (e *GenerationError) Unwrap() error { return e.Err }

func (e *GenerationError) Is(target error) bool { return target == common.ErrDraftGeneration }

// Client issues one completion per call and never retries.
type Client struct {
	cfg        Config
	httpClient *http.Client
	log        logging.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewClient(cfg Config, log logging.Logger, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	c := &Client{
		cfg: Config{
			APIKey:         strings.TrimSpace(cfg.APIKey),
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Model:          strings.TrimSpace(cfg.Model),
			TimeoutSeconds: cfg.TimeoutSeconds,
		},
		httpClient: &http.Client{Timeout: timeout},
		log:        log.With("module", "draft"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatCompletionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate returns the draft body for one submission. It reads nothing but
// its arguments and changes nothing.
func (c *Client) Generate(ctx context.Context, email, folderNumber string) (string, error) {
	text, err := c.complete(ctx, Prompt(email, folderNumber))
	if err != nil {
		c.log.Error(ctx, "draft generation failed", "email", email, "folder_number", folderNumber, "error", err)
		return "", &GenerationError{Err: err}
	}
	return text, nil
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", errors.New("api key required")
	}
	if c.cfg.BaseURL == "" {
		return "", errors.New("base url required")
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    c.cfg.Model,
		Messages: []chatMessage{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", errors.New(parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	text := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("empty content (finish_reason=%q)", parsed.Choices[0].FinishReason)
	}
	return text, nil
}
