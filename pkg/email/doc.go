// Package email sends transactional billing notices.
//
// EmailSender has two implementations: a Postmark client for production and
// DevSender, which writes messages to disk. New picks one based on Config.
// Message bodies are built from templ components in the templates subpackage:
//
//	body, err := templates.Render(ctx, templates.PaymentFailed(data))
//	if err != nil {
//		return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//		SendTo:   t.Email,
//		Subject:  "Payment failed",
//		BodyHTML: body,
//		Tag:      "billing-past-due",
//	})
package email
