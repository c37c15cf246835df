package modelclient

import (
	"errors"
	"net/http"
	"testing"

	"github.com/agentruntime/core/internal/runtimeerr"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want runtimeerr.Kind
	}{
		{"rate limit", errors.New("rate limit exceeded"), runtimeerr.TransientUpstream},
		{"429 status", errors.New("received 429"), runtimeerr.TransientUpstream},
		{"unauthorized", errors.New("401 unauthorized"), runtimeerr.Unauthenticated},
		{"invalid api key", errors.New("invalid api key provided"), runtimeerr.Unauthenticated},
		{"server error", errors.New("500 internal server error"), runtimeerr.TransientUpstream},
		{"timeout", errors.New("context deadline exceeded"), runtimeerr.Timeout},
		{"cancelled", errors.New("context canceled"), runtimeerr.Cancelled},
		{"billing", errors.New("insufficient quota"), runtimeerr.PermanentUpstream},
		{"bad model", errors.New("model not found: bogus"), runtimeerr.InvalidArgument},
		{"unknown", errors.New("something weird happened"), runtimeerr.PermanentUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.want {
				t.Errorf("classifyError(%q) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyErrorPreservesRuntimeErrKind(t *testing.T) {
	wrapped := runtimeerr.New("test.op", runtimeerr.BudgetExceeded, errors.New("over budget"))
	if got := classifyError(wrapped); got != runtimeerr.BudgetExceeded {
		t.Errorf("classifyError() = %v, want %v", got, runtimeerr.BudgetExceeded)
	}
}

func TestClassifyStatusCode(t *testing.T) {
	tests := []struct {
		status int
		want   runtimeerr.Kind
	}{
		{http.StatusUnauthorized, runtimeerr.Unauthenticated},
		{http.StatusForbidden, runtimeerr.Unauthenticated},
		{http.StatusTooManyRequests, runtimeerr.TransientUpstream},
		{http.StatusRequestTimeout, runtimeerr.Timeout},
		{http.StatusBadRequest, runtimeerr.InvalidArgument},
		{http.StatusInternalServerError, runtimeerr.TransientUpstream},
		{http.StatusTeapot, runtimeerr.PermanentUpstream},
		{http.StatusOK, runtimeerr.Internal},
	}

	for _, tt := range tests {
		if got := classifyStatusCode(tt.status); got != tt.want {
			t.Errorf("classifyStatusCode(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestWrapErr(t *testing.T) {
	if wrapErr("op", nil) != nil {
		t.Fatal("wrapErr(nil) should return nil")
	}
	wrapped := wrapErr("modelclient.test", errors.New("rate limit exceeded"))
	var kindErr *runtimeerr.Error
	if !errors.As(wrapped, &kindErr) {
		t.Fatalf("wrapErr() did not produce a runtimeerr.Error: %v", wrapped)
	}
	if kindErr.Kind != runtimeerr.TransientUpstream {
		t.Errorf("Kind = %v, want %v", kindErr.Kind, runtimeerr.TransientUpstream)
	}
}
