package errx

import (
	"errors"
	"net/http"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestWrapModelMatchesSentinel(t *testing.T) {
	cause := errors.New("connection refused")
	err := WrapModel(cause)

	require.ErrorIs(t, err, ErrModelUnavailable)
	require.ErrorIs(t, err, cause)
	require.Contains(t, err.Error(), ModelErrorMessage)
}

func TestToolLoopExceededMatchesSentinel(t *testing.T) {
	err := NewToolLoopExceeded(10)

	require.ErrorIs(t, err, ErrToolLoopExceeded)
	require.Contains(t, err.Error(), "10")
}

func TestWrapRedisStatusCodes(t *testing.T) {
	require.Nil(t, WrapRedis(nil))

	notFound := WrapRedis(redis.Nil)
	require.Equal(t, http.StatusNotFound, notFound.Status)

	other := WrapRedis(errors.New("connection reset"))
	require.Equal(t, http.StatusBadGateway, other.Status)
}

func TestErrorAs(t *testing.T) {
	var appErr *Error
	err := WrapModel(errors.New("boom"))

	require.ErrorAs(t, error(err), &appErr)
	require.Equal(t, http.StatusBadGateway, appErr.Status)
}
