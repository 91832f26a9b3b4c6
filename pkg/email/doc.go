// Package email sends transactional emails through Postmark, or writes them to
// disk during local development.
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Subscription Confirmed - Pro",
//	    BodyHTML: body,
//	    Tag:      "subscription-confirmation",
//	})
//
// NewSender picks Postmark when POSTMARK_SERVER_TOKEN is set and DevSender
// otherwise. Both validate params first and return errors matching
// ErrInvalidParams or ErrFailedToSendEmail.
//
// Bodies are built with templ components from the templates subpackage.
package email
