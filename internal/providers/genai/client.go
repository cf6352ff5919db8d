// Package genai adapts Gemini image models. generateContent answers
// synchronously with inline image bytes, so tasks settle at submission.
package genai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"genqueue/internal/infra"
	"genqueue/internal/providers"
)

const Name = "gemini"

// HandlePrefix marks the synthetic task handles this adapter issues.
const HandlePrefix = "gemini-"

const maxInputBytes = 10 << 20

// Options configures the Gemini client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to the Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     infra.Logger
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts,omitempty"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities,omitempty"`
	CandidateCount     int      `json:"candidateCount,omitempty"`
}

type geminiGenerateContentRequest struct {
	Contents         []geminiContent         `json:"contents"`
	GenerationConfig *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiCandidate struct {
	Content      geminiContent `json:"content"`
	FinishReason string        `json:"finishReason"`
}

type geminiGenerateContentResponse struct {
	Candidates     []geminiCandidate `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(opts.RequestTimeout)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = "gemini-2.5-flash-image"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

func (c *Client) Name() string { return Name }

// Mode is poll: results arrive with Submit, and Resolve is never needed for
// a task this process submitted.
func (c *Client) Mode() providers.Mode { return providers.ModePoll }

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// Submit runs generation to completion. Provider-side refusals come back as
// a failed result, not an error, so the message reaches the job.
func (c *Client) Submit(ctx context.Context, req providers.SubmitRequest) (providers.Task, error) {
	if c.apiKey == "" {
		return providers.Task{}, providers.ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return providers.Task{}, fmt.Errorf("gemini: prompt is required: %w", providers.ErrInvalidRequest)
	}
	parts := []geminiPart{{Text: prompt}}
	for _, in := range req.InputURLs {
		data, mime, err := c.download(ctx, in)
		if err != nil {
			return providers.Task{}, err
		}
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: mime,
			Data:     base64.StdEncoding.EncodeToString(data),
		}})
	}
	payload := geminiGenerateContentRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: &geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
			CandidateCount:     1,
		},
	}

	var response geminiGenerateContentResponse
	if err := c.invokeGemini(ctx, fmt.Sprintf("/models/%s:generateContent", url.PathEscape(c.model)), payload, &response); err != nil {
		return providers.Task{}, err
	}

	handle := HandlePrefix + uuid.NewString()
	outcome := outcomeFrom(response)
	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("task_id", handle).
		Str("state", string(outcome.State)).
		Msg("gemini: generation returned")
	return providers.Task{Handle: handle, Result: &outcome}, nil
}

// Resolve is only reached for tasks whose process died between submit and
// settle. The inline result is gone, so report that.
func (c *Client) Resolve(ctx context.Context, handle string) (providers.Outcome, error) {
	return providers.Failed("gemini result was not retained"), nil
}

func outcomeFrom(resp geminiGenerateContentResponse) providers.Outcome {
	if reason := resp.PromptFeedback.BlockReason; reason != "" {
		return providers.Failed("prompt blocked: " + reason)
	}
	var text string
	for _, candidate := range resp.Candidates {
		for _, part := range candidate.Content.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err != nil {
					return providers.Failed("gemini returned undecodable image data")
				}
				mime := part.InlineData.MimeType
				if mime == "" {
					mime = http.DetectContentType(data)
				}
				return providers.Outcome{State: providers.StateSucceeded, Inline: data, ContentType: mime}
			}
			if text == "" {
				text = strings.TrimSpace(part.Text)
			}
		}
		if text == "" && candidate.FinishReason != "" && candidate.FinishReason != "STOP" {
			text = "generation stopped: " + candidate.FinishReason
		}
	}
	if text == "" {
		text = "gemini returned no image"
	}
	return providers.Failed(text)
}

func (c *Client) invokeGemini(ctx context.Context, path string, payload any, out any) error {
	endpoint := strings.TrimRight(c.baseURL, "/") + path
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("gemini: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("gemini: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gemini: invoke: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		var apiErr geminiErrorResponse
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error.Message != "" {
			return &providers.StatusError{Provider: Name, Status: resp.StatusCode, Body: apiErr.Error.Message}
		}
		return &providers.StatusError{Provider: Name, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("gemini: decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, uri string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: build input request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("gemini: fetch input: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("gemini: fetch input status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxInputBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("gemini: read input: %w", err)
	}
	if len(data) > maxInputBytes {
		return nil, "", fmt.Errorf("gemini: input exceeds %d bytes", maxInputBytes)
	}
	mime := resp.Header.Get("Content-Type")
	if mime == "" {
		mime = http.DetectContentType(data)
	}
	return data, mime, nil
}

var _ providers.Adapter = (*Client)(nil)
