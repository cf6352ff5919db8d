package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

type stubAdapter struct {
	name      string
	submitErr error
	calls     int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) Mode() Mode { return ModePoll }

func (s *stubAdapter) Submit(ctx context.Context, req SubmitRequest) (Task, error) {
	s.calls++
	if s.submitErr != nil {
		return Task{}, s.submitErr
	}
	return Task{Handle: "h-" + req.JobID}, nil
}

func (s *stubAdapter) Resolve(ctx context.Context, handle string) (Outcome, error) {
	return Pending(), nil
}

type stubCallbackAdapter struct{ stubAdapter }

func (s *stubCallbackAdapter) ParseCallback(body []byte) (string, Outcome, error) {
	return string(body), Succeeded("u"), nil
}

func TestRegistryRoutesModels(t *testing.T) {
	reg := NewRegistry()
	a := &stubAdapter{name: "qwen"}
	b := &stubAdapter{name: "kie"}
	reg.Register(a, "qwen-image", "Wan2.2-T2I-Flash")
	reg.Register(b, "google/nano-banana")
	reg.SetDefaultModel("qwen-image")

	got, err := reg.ForModel(" WAN2.2-t2i-flash ")
	if err != nil || got != a {
		t.Fatalf("ForModel = %v, %v", got, err)
	}
	model, got, err := reg.Route("")
	if err != nil || got != a || model != "qwen-image" {
		t.Fatalf("default route = %q %v %v", model, got, err)
	}
	if _, err := reg.ForModel("dall-e-3"); err == nil {
		t.Fatalf("unknown model should not route")
	}
	if byName, ok := reg.ByName("KIE"); !ok || byName != b {
		t.Fatalf("ByName = %v, %v", byName, ok)
	}
	if models := reg.Models(); len(models) != 3 || models[0] != "google/nano-banana" {
		t.Fatalf("Models = %v", models)
	}
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	inner := &stubAdapter{name: "qwen", submitErr: errors.New("upstream 503")}
	wrapped := WithBreaker(inner, zerolog.Nop())

	for i := 0; i < 3; i++ {
		if _, err := wrapped.Submit(context.Background(), SubmitRequest{JobID: "j"}); err == nil {
			t.Fatalf("submit %d should fail", i)
		}
	}
	_, err := wrapped.Submit(context.Background(), SubmitRequest{JobID: "j"})
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("err = %v, want open circuit", err)
	}
	if inner.calls != 3 {
		t.Fatalf("inner calls = %d, want 3", inner.calls)
	}
	if wrapped.Name() != "qwen" {
		t.Fatalf("wrapped name = %q", wrapped.Name())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	inner := &stubAdapter{name: "qwen", submitErr: context.Canceled}
	wrapped := WithBreaker(inner, zerolog.Nop())
	for i := 0; i < 5; i++ {
		_, _ = wrapped.Submit(context.Background(), SubmitRequest{})
	}
	if inner.calls != 5 {
		t.Fatalf("breaker tripped on cancellations: %d calls", inner.calls)
	}
}

func TestBreakerKeepsCallbackParser(t *testing.T) {
	wrapped := WithBreaker(&stubCallbackAdapter{stubAdapter{name: "kie"}}, zerolog.Nop())
	parser, ok := wrapped.(CallbackParser)
	if !ok {
		t.Fatalf("wrapped adapter lost CallbackParser")
	}
	handle, out, err := parser.ParseCallback([]byte("task-1"))
	if err != nil || handle != "task-1" || out.State != StateSucceeded {
		t.Fatalf("ParseCallback = %q %+v %v", handle, out, err)
	}
	if _, ok := WithBreaker(&stubAdapter{name: "qwen"}, zerolog.Nop()).(CallbackParser); ok {
		t.Fatalf("plain adapter should not gain CallbackParser")
	}
}

func TestBreakerIgnoresRequestErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
	}{
		{"invalid request", fmt.Errorf("kie: recraft/remove-background needs an input image: %w", ErrInvalidRequest)},
		{"missing key", ErrMissingAPIKey},
		{"bad request", &StatusError{Provider: "kie", Status: http.StatusBadRequest}},
		{"unprocessable", &StatusError{Provider: "kie", Status: http.StatusUnprocessableEntity}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			inner := &stubAdapter{name: "kie", submitErr: tc.err}
			wrapped := WithBreaker(inner, zerolog.Nop())
			for i := 0; i < 3; i++ {
				_, _ = wrapped.Submit(context.Background(), SubmitRequest{JobID: "bad"})
			}
			inner.submitErr = nil
			if _, err := wrapped.Submit(context.Background(), SubmitRequest{JobID: "good"}); err != nil {
				t.Fatalf("valid submit after %s failures: %v", tc.name, err)
			}
		})
	}
}

func TestBreakerCountsThrottlingAndServerErrors(t *testing.T) {
	for _, status := range []int{http.StatusTooManyRequests, http.StatusBadGateway} {
		inner := &stubAdapter{name: "kie", submitErr: &StatusError{Provider: "kie", Status: status}}
		wrapped := WithBreaker(inner, zerolog.Nop())
		for i := 0; i < 3; i++ {
			_, _ = wrapped.Submit(context.Background(), SubmitRequest{JobID: "j"})
		}
		if _, err := wrapped.Submit(context.Background(), SubmitRequest{JobID: "j"}); !errors.Is(err, gobreaker.ErrOpenState) {
			t.Fatalf("status %d: err = %v, want open circuit", status, err)
		}
	}
}

type stubInputAdapter struct{ stubAdapter }

func (s *stubInputAdapter) RequiresInput(model string) bool { return model == "edit" }

func TestRegistryRequiresInputThroughBreaker(t *testing.T) {
	reg := NewRegistry()
	reg.Register(WithBreaker(&stubInputAdapter{stubAdapter{name: "kie"}}, zerolog.Nop()), "edit", "Draw")
	reg.Register(&stubAdapter{name: "qwen"}, "qwen-image")
	reg.SetDefaultModel("qwen-image")

	if !reg.RequiresInput(" EDIT ") {
		t.Fatalf("edit should require an input image")
	}
	for _, model := range []string{"draw", "qwen-image", "", "unknown"} {
		if reg.RequiresInput(model) {
			t.Fatalf("%q should not require an input image", model)
		}
	}
}
