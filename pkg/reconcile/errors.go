package reconcile

import "errors"

var (
	ErrNotificationFailed = errors.New("failed to send status notification")
	ErrMissingRecipient   = errors.New("tenant has no email address")
)
