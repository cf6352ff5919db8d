// Package providers defines the contract every external image-generation
// service is driven through, plus the registry that routes models to them.
package providers

import (
	"context"
	"errors"
)

// Mode is how a provider reports that a submitted task finished.
type Mode string

const (
	// ModePoll providers must be asked repeatedly.
	ModePoll Mode = "poll"
	// ModeCallback providers call us back; Resolve still works as a fallback.
	ModeCallback Mode = "callback"
)

// State of a provider task as last observed.
type State string

const (
	StatePending   State = "pending"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var (
	// ErrMissingAPIKey is returned by Submit when the adapter has no credentials.
	ErrMissingAPIKey = errors.New("providers: api key is required")
	// ErrInvalidRequest wraps Submit errors caused by the request itself,
	// found before anything is sent.
	ErrInvalidRequest = errors.New("invalid request")
)

// SubmitRequest is everything an adapter needs to start one generation.
type SubmitRequest struct {
	JobID     string
	Model     string
	Prompt    string
	InputURLs []string
}

// Outcome is the normalized status of a provider task. A succeeded outcome
// carries either ResultURL, a remote and usually expiring location, or
// Inline bytes.
type Outcome struct {
	State       State
	ResultURL   string
	Inline      []byte
	ContentType string
	Message     string
}

func (o Outcome) Terminal() bool {
	return o.State == StateSucceeded || o.State == StateFailed
}

// Pending, Succeeded and Failed build outcomes.
func Pending() Outcome { return Outcome{State: StatePending} }

func Succeeded(url string) Outcome { return Outcome{State: StateSucceeded, ResultURL: url} }

func Failed(msg string) Outcome { return Outcome{State: StateFailed, Message: msg} }

// Task is what Submit hands back. Result is set when the provider answered
// synchronously and no resolution step is needed.
type Task struct {
	Handle string
	Result *Outcome
}

// Adapter drives one external provider.
type Adapter interface {
	Name() string
	Mode() Mode
	Submit(ctx context.Context, req SubmitRequest) (Task, error)
	Resolve(ctx context.Context, handle string) (Outcome, error)
}

// InputRequirer is implemented by adapters serving models that cannot run
// without an input image.
type InputRequirer interface {
	RequiresInput(model string) bool
}

// CallbackParser is implemented by adapters whose providers post results in
// their own body shape.
type CallbackParser interface {
	ParseCallback(body []byte) (handle string, outcome Outcome, err error)
}
