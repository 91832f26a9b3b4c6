package handler_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/handler"
	"github.com/dmitrymomot/subsync/pkg/binder"
)

type greetRequest struct {
	Name string `json:"name"`
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Meta  map[string]any  `json:"meta"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestWrap_BindsAndRenders(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(ctx handler.Context, req greetRequest) handler.Response {
		return handler.JSON(map[string]string{"hello": req.Name},
			handler.WithJSONStatus(http.StatusCreated),
			handler.WithJSONMeta(map[string]any{"count": 1}),
		)
	}, handler.WithBinders[handler.Context, greetRequest](binder.JSON()))

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"jane"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	env := decode(t, rec)
	assert.JSONEq(t, `{"hello":"jane"}`, string(env.Data))
	assert.Equal(t, float64(1), env.Meta["count"])
	assert.Nil(t, env.Error)
}

func TestWrap_BindErrorIsBadRequest(t *testing.T) {
	t.Parallel()

	called := false
	h := handler.Wrap(func(ctx handler.Context, req greetRequest) handler.Response {
		called = true
		return handler.Empty()
	},
		handler.WithBinders[handler.Context, greetRequest](binder.JSON()),
		handler.WithErrorHandler[handler.Context, greetRequest](handler.NewErrorHandler(nil)),
	)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"nope":1}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	env := decode(t, rec)
	require.NotNil(t, env.Error)
	assert.Equal(t, "bad_request", env.Error.Code)
}

func TestWrap_NilResponse(t *testing.T) {
	t.Parallel()

	h := handler.Wrap(func(ctx handler.Context, req struct{}) handler.Response { return nil })
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWrap_DecoratorOrder(t *testing.T) {
	t.Parallel()

	var order []string
	trace := func(name string) handler.Decorator[handler.Context, struct{}] {
		return func(next handler.HandlerFunc[handler.Context, struct{}]) handler.HandlerFunc[handler.Context, struct{}] {
			return func(ctx handler.Context, req struct{}) handler.Response {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	h := handler.Wrap(func(ctx handler.Context, req struct{}) handler.Response {
		order = append(order, "handler")
		return handler.Empty()
	}, handler.WithDecorators(trace("outer"), trace("inner")))

	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"outer", "inner", "handler"}, order)
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
	}{
		{
			name:        "client error exposes chain",
			err:         errors.Join(handler.ErrConflict, errors.New("user already has an active subscription")),
			wantStatus:  http.StatusConflict,
			wantCode:    "conflict",
			wantMessage: "conflict\nuser already has an active subscription",
		},
		{
			name:        "wrapped with fmt",
			err:         fmt.Errorf("lookup: %w", handler.ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    "not_found",
			wantMessage: "lookup: not_found",
		},
		{
			name:        "server error hides details",
			err:         errors.Join(handler.ErrServiceUnavailable, errors.New("dial tcp 10.0.0.1:443")),
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    "service_unavailable",
			wantMessage: "Service Unavailable",
		},
		{
			name:        "plain error is internal",
			err:         errors.New("pq: connection reset"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "internal_server_error",
			wantMessage: "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

			assert.Equal(t, tt.wantStatus, rec.Code)
			env := decode(t, rec)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.wantCode, env.Error.Code)
			assert.Equal(t, tt.wantMessage, env.Error.Message)
		})
	}
}

func TestStatusCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusNotFound, handler.StatusCode(handler.ErrNotFound))
	assert.Equal(t, http.StatusTeapot, handler.StatusCode(handler.NewHTTPError(http.StatusTeapot, "teapot")))
	assert.Equal(t, http.StatusInternalServerError, handler.StatusCode(errors.New("boom")))
}

func TestEmptyWithStatus(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, handler.EmptyWithStatus(http.StatusAccepted).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Body.String())
}
