package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (int, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	RespondError(c, err)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestRespondErrorMapsKinds(t *testing.T) {
	cases := []struct {
		err    error
		status int
		kind   ErrorKind
	}{
		{NotFoundError("quiz not found"), http.StatusNotFound, KindNotFound},
		{UnavailableError("quiz is not active"), http.StatusConflict, KindUnavailable},
		{AttemptLimitError(1, 1), http.StatusConflict, KindAttemptLimitExceeded},
		{ErrAlreadySubmitted, http.StatusConflict, KindAlreadySubmitted},
		{ForbiddenError("not your attempt"), http.StatusForbidden, KindForbidden},
		{ErrTransientConflict, http.StatusServiceUnavailable, KindTransientConflict},
		{ValidationError("title is required"), http.StatusBadRequest, KindValidation},
		{ErrUnauthorized, http.StatusUnauthorized, KindUnauthorized},
		{NewError(KindRateLimited, "too many requests"), http.StatusTooManyRequests, KindRateLimited},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			status, resp := respond(t, tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.status, resp.Code)
			assert.Equal(t, tc.kind, resp.Kind)
		})
	}
}

func TestRespondErrorHidesInternalDetails(t *testing.T) {
	status, resp := respond(t, errors.New("dial tcp 10.0.0.1:3306: connection refused"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, KindInternal, resp.Kind)
	assert.Equal(t, "Internal server error", resp.Message)

	// 包装的原因只写日志
	status, resp = respond(t, WrapError(KindNotFound, errors.New("sql: no rows"), "attempt not found"))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "attempt not found", resp.Message)
}

func TestAppErrorMatchesByKind(t *testing.T) {
	err := fmt.Errorf("start: %w", AttemptLimitError(2, 3))
	assert.True(t, errors.Is(err, ErrAttemptLimitExceeded))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindAttemptLimitExceeded, KindOf(err))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Contains(t, err.Error(), "(2 of 3)")
}

func TestParsePage(t *testing.T) {
	cases := []struct {
		page, limit         string
		wantPage, wantLimit int
	}{
		{"", "", 1, 20},
		{"3", "10", 3, 10},
		{"0", "-5", 1, 20},
		{"abc", "500", 1, 100},
		{"9223372036854775807", "20", math.MaxInt32 / 20, 20},
		{"99999999999", "100", math.MaxInt32 / 100, 100},
	}
	for _, tc := range cases {
		page, limit := ParsePage(tc.page, tc.limit, 20, 100)
		assert.Equal(t, tc.wantPage, page, "page %q", tc.page)
		assert.Equal(t, tc.wantLimit, limit, "limit %q", tc.limit)
		assert.GreaterOrEqual(t, (page-1)*limit, 0)
	}
}

func TestNewPagination(t *testing.T) {
	assert.Equal(t, Pagination{Page: 1, Limit: 2, Total: 5, Pages: 3}, NewPagination(1, 2, 5))
	assert.Equal(t, 0, NewPagination(1, 20, 0).Pages)
}
