// Package templates holds the HTML bodies of billing notices.
package templates

import (
	"context"
	"io"
	"time"

	"github.com/a-h/templ"
)

// NoticeData is the content shared by billing notices.
type NoticeData struct {
	TenantName   string
	PlanName     string
	OccurredAt   time.Time
	SupportEmail string
}

// PaymentFailed tells the tenant its last payment did not go through.
func PaymentFailed(d NoticeData) templ.Component {
	return notice(d, "We could not process your payment",
		"Your subscription to the "+d.PlanName+" plan is past due. "+
			"Please update your payment method to keep your fleet running without interruption.")
}

// SubscriptionCancelled confirms the end of a paid subscription.
func SubscriptionCancelled(d NoticeData) templ.Component {
	return notice(d, "Your subscription has been cancelled",
		"Your subscription to the "+d.PlanName+" plan has ended. "+
			"Existing vehicles, users and drivers stay available; adding new ones requires an active plan.")
}

func notice(d NoticeData, title, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		parts := []string{
			`<!doctype html><html><body style="font-family:sans-serif">`,
			`<h2>`, templ.EscapeString(title), `</h2>`,
			`<p>Hello `, templ.EscapeString(d.TenantName), `,</p>`,
			`<p>`, templ.EscapeString(body), `</p>`,
		}
		if !d.OccurredAt.IsZero() {
			parts = append(parts, `<p style="color:#666">`, templ.EscapeString(d.OccurredAt.UTC().Format("January 2, 2006 15:04 MST")), `</p>`)
		}
		if d.SupportEmail != "" {
			parts = append(parts, `<p>Questions? Write to <a href="mailto:`,
				templ.EscapeString(d.SupportEmail), `">`, templ.EscapeString(d.SupportEmail), `</a>.</p>`)
		}
		parts = append(parts, `</body></html>`)

		for _, p := range parts {
			if _, err := io.WriteString(w, p); err != nil {
				return err
			}
		}
		return nil
	})
}
