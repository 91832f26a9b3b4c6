package templates_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/subsync/pkg/email/templates"
)

func TestSubscriptionConfirmed(t *testing.T) {
	t.Parallel()

	t.Run("with period end", func(t *testing.T) {
		t.Parallel()

		end := time.Date(2025, 2, 15, 0, 0, 0, 0, time.UTC)
		html, err := templates.Render(context.Background(), templates.SubscriptionConfirmed(templates.SubscriptionConfirmedData{
			AppName:   "Acme",
			PlanName:  "Pro",
			PeriodEnd: &end,
		}))
		require.NoError(t, err)
		assert.Contains(t, html, "subscribing to Acme.")
		assert.Contains(t, html, "<strong>Pro</strong>")
		assert.Contains(t, html, "February 15, 2025")
	})

	t.Run("escapes values", func(t *testing.T) {
		t.Parallel()

		html, err := templates.Render(context.Background(), templates.SubscriptionConfirmed(templates.SubscriptionConfirmedData{
			AppName:  "Acme",
			PlanName: "<script>alert(1)</script>",
		}))
		require.NoError(t, err)
		assert.NotContains(t, html, "<script>")
		assert.Contains(t, html, "&lt;script&gt;")
		assert.NotContains(t, html, "period ends")
	})
}
