// Package billing is the narrow boundary to the external payment processor.
//
// Gateway covers customer, subscription, checkout, portal and invoice calls
// plus verification of inbound notifications. StripeGateway and PaddleGateway
// implement it; New picks one from configuration.
//
// The processor is treated as an unreliable remote dependency: every call runs
// under a bounded timeout, is never retried on the request path, and fails with
// an error wrapping ErrGateway so callers can decide whether the failure is
// fatal. Inbound notifications are verified before anything is decoded; a bad
// signature yields ErrSignatureInvalid.
//
// Verified notifications are normalized into Event values. Successful payments
// are handed to an optional PaymentRecorder.
package billing
