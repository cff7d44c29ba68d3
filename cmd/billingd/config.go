package main

import (
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/email"
	"github.com/dmitrymomot/fleetbilling/pkg/httpserver"
)

const (
	storageMemory   = "memory"
	storagePostgres = "postgres"
	lockMemory      = "memory"
	lockRedis       = "redis"
)

type appConfig struct {
	Env           string        `env:"APP_ENV" envDefault:"development"`
	Service       string        `env:"APP_NAME" envDefault:"billingd"`
	StorageDriver string        `env:"STORAGE_DRIVER" envDefault:"memory"` // memory or postgres
	LockDriver    string        `env:"LOCK_DRIVER" envDefault:"memory"`    // memory or redis
	PlansFile     string        `env:"PLANS_FILE" envDefault:"./plans.yaml"`
	FreePlanID    string        `env:"FREE_PLAN_ID"`
	CatalogTTL    time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"5m"`
	TenantHeader  string        `env:"TENANT_HEADER" envDefault:"X-Tenant-ID"`
	MetricsPrefix string        `env:"METRICS_NAMESPACE" envDefault:"fleet"`
}

type settings struct {
	App     appConfig
	HTTP    httpserver.Config
	Billing billing.Config
	Stripe  billing.StripeConfig
	Paddle  billing.PaddleConfig
	Email   email.Config
}
