package errx

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromClassifies(t *testing.T) {
	assert.Nil(t, From(nil))

	wrapped := fmt.Errorf("node Agent: %w", Validation("message is required"))
	got := From(wrapped)
	assert.Equal(t, CodeValidation, got.Code)
	assert.Equal(t, http.StatusBadRequest, got.Status)

	got = From(fmt.Errorf("invoke: %w", context.DeadlineExceeded))
	assert.Equal(t, CodeTimeout, got.Code)
	assert.Equal(t, http.StatusGatewayTimeout, got.Status)

	got = From(errors.New("kaboom"))
	assert.Equal(t, CodeInternal, got.Code)
	assert.Equal(t, http.StatusInternalServerError, got.Status)
}

func TestWrapStorageKeepsAppErrors(t *testing.T) {
	assert.NoError(t, WrapStorage(nil))

	conflict := HistoryConflict("t1", 4, 2)
	assert.Same(t, conflict, WrapStorage(conflict))

	err := WrapStorage(errors.New("disk full"))
	var appErr *AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, CodeStorage, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.Status)
}

func TestIsMatchesCode(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := WrapRedis(cause)
	assert.ErrorIs(t, err, &AppError{Code: CodeStorage})
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, &AppError{Code: CodeValidation})
}

func TestResponseHidesInternalCause(t *testing.T) {
	resp := From(errors.New("secret dsn")).Response()
	assert.Equal(t, SystemErrorMessage, resp.Error)
	assert.Equal(t, CodeInternal, resp.Code)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp = HistoryConflict("t1", 4, 2).Response()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "t1", resp.Details["thread_id"])
	assert.Equal(t, 4, resp.Details["stored_messages"])
}

func TestResponseKeepsMessageStable(t *testing.T) {
	appErr := ModelInvocation(errors.New("googleapi: Error 503: backend overloaded")).WithDetail("node", "model")
	resp := appErr.Response()

	assert.Equal(t, ModelErrorMessage, resp.Error)
	assert.Equal(t, "googleapi: Error 503: backend overloaded", resp.Details["cause"])
	assert.Equal(t, "model", resp.Details["node"])
	assert.NotContains(t, appErr.Details, "cause")
	assert.NotEmpty(t, resp.Hints)
}
