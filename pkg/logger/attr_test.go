package logger_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/logger"
)

func TestGroup(t *testing.T) {
	attr := logger.Group("req", slog.String("id", "1"), slog.Int("n", 2))
	require.Equal(t, "req", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, "id", g[0].Key)
	assert.Equal(t, "n", g[1].Key)
}

func TestErrors(t *testing.T) {
	err1 := errors.New("first")
	err2 := errors.New("second")

	attr := logger.Errors(err1, nil, err2)
	require.Equal(t, "errors", attr.Key)
	require.Equal(t, slog.KindGroup, attr.Value.Kind())
	g := attr.Value.Group()
	require.Len(t, g, 2)
	assert.Equal(t, err1, g[0].Value.Any())
	assert.Equal(t, err2, g[1].Value.Any())

	empty := logger.Errors(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestError(t *testing.T) {
	err := errors.New("boom")
	attr := logger.Error(err)
	require.Equal(t, "error", attr.Key)
	assert.Equal(t, err, attr.Value.Any())

	empty := logger.Error(nil)
	assert.True(t, empty.Equal(slog.Attr{}))
}

func TestUserID(t *testing.T) {
	attr := logger.UserID("123")
	require.Equal(t, "user_id", attr.Key)
	assert.Equal(t, "123", attr.Value.Any())
}

func TestRequestID(t *testing.T) {
	attr := logger.RequestID("abc")
	require.Equal(t, "request_id", attr.Key)
	assert.Equal(t, "abc", attr.Value.Any())
}

func TestSubscriptionAttrs(t *testing.T) {
	t.Parallel()

	ext := logger.ExternalSubscriptionID("sub_123")
	assert.Equal(t, "external_subscription_id", ext.Key)
	assert.Equal(t, "sub_123", ext.Value.String())

	status := logger.SubscriptionStatus("ACTIVE")
	assert.Equal(t, "status", status.Key)
	assert.Equal(t, "ACTIVE", status.Value.String())

	plan := logger.PlanID(7)
	assert.Equal(t, "plan_id", plan.Key)
	assert.Equal(t, int64(7), plan.Value.Int64())

	provider := logger.Provider("stripe")
	assert.Equal(t, "provider", provider.Key)
	assert.Equal(t, "stripe", provider.Value.String())

	retry := logger.Retryable(true)
	assert.Equal(t, "retryable", retry.Key)
	assert.True(t, retry.Value.Bool())
}
