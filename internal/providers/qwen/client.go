// Package qwen adapts DashScope's asynchronous text-to-image API. Tasks are
// submitted once and then polled until they settle.
package qwen

import (
	"context"
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

const Name = "qwen"

// Models served by this adapter.
var Models = []string{"qwen-image", "qwen-image-plus", "wan2.2-t2i-flash", "wanx2.1-t2i-turbo"}

// Options configures the DashScope client.
type Options struct {
	APIKey         string
	BaseURL        string
	DefaultSize    string
	PromptExtend   bool
	Watermark      bool
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client performs HTTP calls to DashScope.
type Client struct {
	apiKey       string
	baseURL      string
	defaultSize  string
	promptExtend bool
	watermark    bool
	httpClient   *http.Client
	logger       infra.Logger
}

type synthesisRequest struct {
	Model      string          `json:"model"`
	Input      synthesisInput  `json:"input"`
	Parameters synthesisParams `json:"parameters"`
}

type synthesisInput struct {
	Prompt     string `json:"prompt"`
	RefImg     string `json:"ref_img,omitempty"`
	BaseImgURL string `json:"base_image_url,omitempty"`
}

type synthesisParams struct {
	Size         string `json:"size,omitempty"`
	N            int    `json:"n"`
	PromptExtend *bool  `json:"prompt_extend,omitempty"`
	Watermark    *bool  `json:"watermark,omitempty"`
}

type taskResponse struct {
	Output struct {
		TaskID     string `json:"task_id"`
		TaskStatus string `json:"task_status"`
		Results    []struct {
			URL     string `json:"url"`
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"results"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"output"`
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = providers.NewHTTPClient(opts.RequestTimeout)
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	defaultSize := strings.TrimSpace(opts.DefaultSize)
	if defaultSize == "" {
		defaultSize = "1328*1328"
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	return &Client{
		apiKey:       strings.TrimSpace(opts.APIKey),
		baseURL:      baseURL,
		defaultSize:  defaultSize,
		promptExtend: opts.PromptExtend,
		watermark:    opts.Watermark,
		httpClient:   httpClient,
		logger:       logger,
	}
}

func (c *Client) Name() string { return Name }

func (c *Client) Mode() providers.Mode { return providers.ModePoll }

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool { return c.apiKey != "" }

// Submit creates an asynchronous synthesis task.
func (c *Client) Submit(ctx context.Context, req providers.SubmitRequest) (providers.Task, error) {
	if !c.HasCredentials() {
		return providers.Task{}, providers.ErrMissingAPIKey
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return providers.Task{}, fmt.Errorf("qwen: prompt is required: %w", providers.ErrInvalidRequest)
	}
	payload := synthesisRequest{
		Model: req.Model,
		Input: synthesisInput{Prompt: prompt},
		Parameters: synthesisParams{
			Size: c.defaultSize,
			N:    1,
		},
	}
	if len(req.InputURLs) > 0 {
		payload.Input.RefImg = req.InputURLs[0]
	}
	if c.promptExtend {
		extend := true
		payload.Parameters.PromptExtend = &extend
	}
	watermark := c.watermark
	payload.Parameters.Watermark = &watermark

	header := c.header()
	header.Set("X-DashScope-Async", "enable")
	var decoded taskResponse
	if err := providers.DoJSON(ctx, c.httpClient, Name, http.MethodPost,
		c.baseURL+"/services/aigc/text2image/image-synthesis", header, payload, &decoded); err != nil {
		return providers.Task{}, err
	}
	if decoded.Code != "" {
		return providers.Task{}, fmt.Errorf("qwen: %s (%s)", decoded.Message, decoded.Code)
	}
	if decoded.Output.TaskID == "" {
		return providers.Task{}, errors.New("qwen: response carried no task id")
	}
	c.logger.Debug().
		Str("job_id", req.JobID).
		Str("task_id", decoded.Output.TaskID).
		Str("request_id", decoded.RequestID).
		Msg("qwen: task submitted")
	return providers.Task{Handle: decoded.Output.TaskID}, nil
}

// Resolve reads the task status once.
func (c *Client) Resolve(ctx context.Context, handle string) (providers.Outcome, error) {
	var decoded taskResponse
	endpoint := c.baseURL + "/tasks/" + url.PathEscape(handle)
	if err := providers.DoJSON(ctx, c.httpClient, Name, http.MethodGet, endpoint, c.header(), nil, &decoded); err != nil {
		return providers.Outcome{}, err
	}
	switch strings.ToUpper(decoded.Output.TaskStatus) {
	case "PENDING", "RUNNING", "":
		return providers.Pending(), nil
	case "SUCCEEDED":
		for _, r := range decoded.Output.Results {
			if u := strings.TrimSpace(r.URL); u != "" {
				return providers.Succeeded(u), nil
			}
		}
		msg := "succeeded without an image"
		if len(decoded.Output.Results) > 0 && decoded.Output.Results[0].Message != "" {
			msg = decoded.Output.Results[0].Message
		}
		return providers.Failed(msg), nil
	default:
		msg := decoded.Output.Message
		if msg == "" {
			msg = "task " + strings.ToLower(decoded.Output.TaskStatus)
		}
		return providers.Failed(msg), nil
	}
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.apiKey)
	return h
}

var _ providers.Adapter = (*Client)(nil)
