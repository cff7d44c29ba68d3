// Package metrics exposes Prometheus metrics for webhook processing, limit
// enforcement, payment processor calls and HTTP traffic.
package metrics
