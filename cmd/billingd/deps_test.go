package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

const testPlans = `plans:
  - id: freemium
    name: Freemium
    limits: {vehicles: 2, users: 1, drivers: 2}
  - id: pro
    name: Pro
    price: {amount: 4900}
    interval: monthly
    external_price_id: price_pro
    limits: {vehicles: 50, users: 10, drivers: -1}
`

func writePlans(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plans.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testPlans), 0o600))
	return path
}

func TestOpenDeps(t *testing.T) {
	t.Parallel()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		d, err := openDeps(context.Background(), appConfig{
			StorageDriver: storageMemory,
			LockDriver:    lockMemory,
			PlansFile:     writePlans(t),
		}, logger.Discard())
		require.NoError(t, err)
		defer d.Close()

		assert.IsType(t, &keylock.Memory{}, d.locker)
		assert.Empty(t, d.checks)

		p, err := d.catalog.GetByPriceID(context.Background(), "price_pro")
		require.NoError(t, err)
		assert.Equal(t, "pro", p.ID)
		assert.Equal(t, "USD", p.Price.Currency)
	})

	t.Run("missing plans file", func(t *testing.T) {
		t.Parallel()
		_, err := openDeps(context.Background(), appConfig{
			StorageDriver: storageMemory,
			LockDriver:    lockMemory,
			PlansFile:     filepath.Join(t.TempDir(), "missing.yaml"),
		}, logger.Discard())
		assert.ErrorIs(t, err, plan.ErrFailedToLoad)
	})

	t.Run("unknown storage driver", func(t *testing.T) {
		t.Parallel()
		_, err := openDeps(context.Background(), appConfig{StorageDriver: "sqlite"}, logger.Discard())
		assert.ErrorContains(t, err, "unknown storage driver")
	})

	t.Run("unknown lock driver", func(t *testing.T) {
		t.Parallel()
		_, err := openDeps(context.Background(), appConfig{
			StorageDriver: storageMemory,
			LockDriver:    "etcd",
			PlansFile:     writePlans(t),
		}, logger.Discard())
		assert.ErrorContains(t, err, "unknown lock driver")
	})
}
