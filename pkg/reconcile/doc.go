// Package reconcile applies asynchronous billing notifications to local
// tenant state.
//
// Each notification is verified by a Parser (the billing gateway), mapped to
// a tenant by external customer or subscription id, and applied under a
// per-tenant lock:
//
//	checkout completed     attach subscription, switch plan by price, active, stamp start
//	subscription created   attach subscription, copy status, stamp start
//	subscription updated   copy status, switch plan by price, stamp end when cancelled
//	subscription deleted   cancelled, stamp end
//	payment succeeded      active unless already active
//	payment failed         past due
//
// Unknown notification types and unknown customers are logged and dropped so
// the sender does not retry forever. Transitions into past due or cancelled
// are passed to an optional Notifier after commit.
package reconcile
