// Package redis connects to Redis with go-redis and exposes a readiness probe.
// The client backs the distributed per-tenant lock in pkg/keylock.
package redis
