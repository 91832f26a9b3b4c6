package templates

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/a-h/templ"
)

// SubscriptionConfirmedData fills the purchase confirmation email.
type SubscriptionConfirmedData struct {
	AppName   string
	PlanName  string
	PeriodEnd *time.Time
}

// SubscriptionConfirmed renders the body sent when a purchase becomes active.
// All interpolated values are HTML-escaped.
func SubscriptionConfirmed(d SubscriptionConfirmedData) templ.Component {
	return templ.ComponentFunc(func(_ context.Context, w io.Writer) error {
		if _, err := fmt.Fprintf(w,
			"<p>Thank you for subscribing to %s.</p><p>Your <strong>%s</strong> plan is now active.</p>",
			templ.EscapeString(d.AppName), templ.EscapeString(d.PlanName),
		); err != nil {
			return err
		}
		if d.PeriodEnd != nil {
			if _, err := fmt.Fprintf(w, "<p>Current period ends on %s.</p>", d.PeriodEnd.Format("January 2, 2006")); err != nil {
				return err
			}
		}
		return nil
	})
}
