package runtimeerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorUnwrapAndIs(t *testing.T) {
	cause := errors.New("connection refused")
	err := New("modelclient.call", TransientUpstream, cause)

	require.ErrorIs(t, err, cause)
	require.Equal(t, TransientUpstream, KindOf(err))
	require.True(t, Is(err, TransientUpstream))
	require.False(t, Is(err, NotFound))
}

func TestKindRetryable(t *testing.T) {
	require.True(t, TransientUpstream.Retryable())
	require.True(t, Timeout.Retryable())
	require.False(t, PermanentUpstream.Retryable())
	require.False(t, Cancelled.Retryable())
}

func TestKindOfPlainError(t *testing.T) {
	require.Equal(t, Internal, KindOf(errors.New("boom")))
}
