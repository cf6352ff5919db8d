// Package kie adapts the kie.ai jobs API. Tasks report completion by calling
// the service back; recordInfo is used when a callback never arrives.
package kie

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"genqueue/internal/infra"
	"genqueue/internal/providers"
)

const Name = "kie"

// Models served by this adapter. Models listed in inputModels need at least
// one input image.
var Models = []string{"google/nano-banana", "google/nano-banana-edit", "bytedance/seedream-v4-text-to-image", "recraft/remove-background"}

var inputModels = map[string]bool{
	"google/nano-banana-edit":   true,
	"recraft/remove-background": true,
}

// Options configures the kie client.
type Options struct {
	APIKey         string
	BaseURL        string
	CallbackURL    string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to kie.ai.
type Client struct {
	apiKey      string
	baseURL     string
	callbackURL string
	httpClient  *http.Client
	logger      infra.Logger
}

type createTaskRequest struct {
	Model       string    `json:"model"`
	CallBackURL string    `json:"callBackUrl,omitempty"`
	Input       taskInput `json:"input"`
}

type taskInput struct {
	Prompt    string   `json:"prompt,omitempty"`
	ImageURLs []string `json:"image_urls,omitempty"`
	Image     string   `json:"image,omitempty"`
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type createTaskData struct {
	TaskID string `json:"taskId"`
}

// record is both the recordInfo payload and the callback payload.
type record struct {
	TaskID     string          `json:"taskId"`
	State      string          `json:"state"`
	ResultJSON json.RawMessage `json:"resultJson"`
	FailCode   string          `json:"failCode"`
	FailMsg    string          `json:"failMsg"`
}

type resultJSON struct {
	ResultURLs []string `json:"resultUrls"`
}

func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(opts.RequestTimeout)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.kie.ai"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:      strings.TrimSpace(opts.APIKey),
		baseURL:     baseURL,
		callbackURL: opts.CallbackURL,
		httpClient:  httpClient,
		logger:      logger,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Mode() providers.Mode { return providers.ModeCallback }

// RequiresInput reports whether model only works on an input image.
func (c *Client) RequiresInput(model string) bool {
	return inputModels[strings.ToLower(strings.TrimSpace(model))]
}

// Submit creates a task that will report back to the callback URL.
func (c *Client) Submit(ctx context.Context, req providers.SubmitRequest) (providers.Task, error) {
	if c.apiKey == "" {
		return providers.Task{}, providers.ErrMissingAPIKey
	}
	model := strings.ToLower(strings.TrimSpace(req.Model))
	input := taskInput{Prompt: strings.TrimSpace(req.Prompt)}
	switch {
	case model == "recraft/remove-background":
		if len(req.InputURLs) == 0 {
			return providers.Task{}, fmt.Errorf("kie: %s needs an input image: %w", model, providers.ErrInvalidRequest)
		}
		input = taskInput{Image: req.InputURLs[0]}
	case inputModels[model]:
		if len(req.InputURLs) == 0 {
			return providers.Task{}, fmt.Errorf("kie: %s needs an input image: %w", model, providers.ErrInvalidRequest)
		}
		input.ImageURLs = append([]string(nil), req.InputURLs...)
	}
	payload := createTaskRequest{Model: model, CallBackURL: c.callbackURL, Input: input}

	var env envelope
	if err := providers.DoJSON(ctx, c.httpClient, Name, http.MethodPost,
		c.baseURL+"/api/v1/jobs/createTask", c.header(), payload, &env); err != nil {
		return providers.Task{}, err
	}
	if env.Code != http.StatusOK {
		return providers.Task{}, fmt.Errorf("kie: %s (code %d)", env.Msg, env.Code)
	}
	var data createTaskData
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID == "" {
		return providers.Task{}, errors.New("kie: response carried no task id")
	}
	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("task_id", data.TaskID).
		Str("model", model).
		Msg("kie: task submitted")
	return providers.Task{Handle: data.TaskID}, nil
}

// Resolve reads recordInfo once.
func (c *Client) Resolve(ctx context.Context, handle string) (providers.Outcome, error) {
	endpoint := c.baseURL + "/api/v1/jobs/recordInfo?taskId=" + url.QueryEscape(handle)
	var env envelope
	if err := providers.DoJSON(ctx, c.httpClient, Name, http.MethodGet, endpoint, c.header(), nil, &env); err != nil {
		return providers.Outcome{}, err
	}
	if env.Code != http.StatusOK {
		return providers.Outcome{}, fmt.Errorf("kie: %s (code %d)", env.Msg, env.Code)
	}
	var rec record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return providers.Outcome{}, fmt.Errorf("kie: decode record: %w", err)
	}
	return rec.outcome()
}

// ParseCallback decodes the body kie posts to callBackUrl.
func (c *Client) ParseCallback(body []byte) (string, providers.Outcome, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", providers.Outcome{}, fmt.Errorf("kie: decode callback: %w", err)
	}
	var rec record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return "", providers.Outcome{}, fmt.Errorf("kie: decode callback data: %w", err)
	}
	if rec.TaskID == "" {
		return "", providers.Outcome{}, errors.New("kie: callback carried no task id")
	}
	outcome, err := rec.outcome()
	if err != nil {
		return rec.TaskID, providers.Outcome{}, err
	}
	if outcome.State == providers.StateFailed && outcome.Message == "" {
		outcome.Message = env.Msg
	}
	return rec.TaskID, outcome, nil
}

func (r record) outcome() (providers.Outcome, error) {
	switch strings.ToLower(r.State) {
	case "success":
		urls, err := r.resultURLs()
		if err != nil {
			return providers.Outcome{}, err
		}
		if len(urls) == 0 {
			return providers.Failed("succeeded without an image"), nil
		}
		return providers.Succeeded(urls[0]), nil
	case "fail", "failed":
		msg := r.FailMsg
		if msg == "" && r.FailCode != "" {
			msg = "failed with code " + r.FailCode
		}
		return providers.Failed(msg), nil
	default:
		return providers.Pending(), nil
	}
}

// resultURLs accepts resultJson either as an embedded JSON string, which is
// what the API sends, or as a plain object.
func (r record) resultURLs() ([]string, error) {
	raw := r.ResultJSON
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		if encoded == "" {
			return nil, nil
		}
		raw = json.RawMessage(encoded)
	}
	var res resultJSON
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("kie: decode resultJson: %w", err)
	}
	out := res.ResultURLs[:0]
	for _, u := range res.ResultURLs {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out, nil
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

var (
	_ providers.Adapter        = (*Client)(nil)
	_ providers.CallbackParser = (*Client)(nil)
)
