// Package api exposes the billing subsystem over HTTP.
//
// The router serves three audiences: the payment processor posting signed
// notifications to /webhooks/billing, the product calling /api/v1/billing to
// read entitlements and count resources, and operators probing /health and
// /metrics.
//
// Tenant-scoped routes identify the caller by the X-Tenant-ID header. The
// header is trusted; authentication belongs to the gateway in front of the
// service.
//
// Every JSON body uses the same envelope:
//
//	{"data": ..., "meta": {...}}
//	{"error": {"code": "LIMIT_REACHED", "message": "...", "details": {...}}}
//
// Domain errors map onto stable codes: quota rejections answer 403 with the
// resource, limit and current usage, rejected plan changes answer 422 with
// the offending resources.
package api
