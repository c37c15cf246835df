package modelclient

import (
	"errors"
	"net/http"
	"strings"

	"github.com/agentruntime/core/internal/runtimeerr"
)

// classifyError maps a provider SDK error to a runtimeerr.Kind using the
// same string-matching heuristics the teacher's providers.ClassifyError
// applies, generalized from a provider-specific FailoverReason enum to
// the shared runtimeerr taxonomy.
func classifyError(err error) runtimeerr.Kind {
	if err == nil {
		return runtimeerr.Internal
	}

	var kindErr *runtimeerr.Error
	if errors.As(err, &kindErr) {
		return kindErr.Kind
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "context deadline"):
		return runtimeerr.Timeout
	case strings.Contains(msg, "context canceled") || strings.Contains(msg, "context.canceled"):
		return runtimeerr.Cancelled
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429"):
		return runtimeerr.TransientUpstream
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid api key") || strings.Contains(msg, "authentication") || strings.Contains(msg, "401") || strings.Contains(msg, "403"):
		return runtimeerr.Unauthenticated
	case strings.Contains(msg, "insufficient") || strings.Contains(msg, "quota") || strings.Contains(msg, "billing") || strings.Contains(msg, "402"):
		return runtimeerr.PermanentUpstream
	case strings.Contains(msg, "model not found") || strings.Contains(msg, "does not exist") || strings.Contains(msg, "400"):
		return runtimeerr.InvalidArgument
	case strings.Contains(msg, "internal server") || strings.Contains(msg, "server error") || strings.Contains(msg, "502") || strings.Contains(msg, "503") || strings.Contains(msg, "504") || strings.Contains(msg, "500"):
		return runtimeerr.TransientUpstream
	default:
		return runtimeerr.PermanentUpstream
	}
}

// classifyStatusCode maps an HTTP status code directly, used when an
// adapter has the status available without string-sniffing an error.
func classifyStatusCode(status int) runtimeerr.Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return runtimeerr.Unauthenticated
	case status == http.StatusTooManyRequests:
		return runtimeerr.TransientUpstream
	case status == http.StatusRequestTimeout:
		return runtimeerr.Timeout
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return runtimeerr.InvalidArgument
	case status >= 500:
		return runtimeerr.TransientUpstream
	case status >= 400:
		return runtimeerr.PermanentUpstream
	default:
		return runtimeerr.Internal
	}
}

// wrapErr classifies and wraps a provider error as a runtimeerr.Error.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return runtimeerr.New(op, classifyError(err), err)
}
