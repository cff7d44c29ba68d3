package tenant_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

type providerFunc func(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error)

func (f providerFunc) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return f(ctx, id)
}

func staticProvider(tenants ...*tenant.Tenant) tenant.Provider {
	return providerFunc(func(_ context.Context, id uuid.UUID) (*tenant.Tenant, error) {
		for _, t := range tenants {
			if t.ID == id {
				return t, nil
			}
		}
		return nil, tenant.ErrTenantNotFound
	})
}

func serve(t *testing.T, h http.Handler, header string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/billing/entitlement", nil)
	if header != "" {
		req.Header.Set("X-Tenant-ID", header)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	known := &tenant.Tenant{ID: uuid.New(), Status: tenant.StatusPastDue}
	resolver := tenant.NewHeaderResolver("")

	t.Run("adds tenant to context", func(t *testing.T) {
		t.Parallel()
		mw := tenant.Middleware(resolver, staticProvider(known))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := tenant.FromContext(r.Context())
			require.True(t, ok)
			assert.Equal(t, known.ID, got.ID)
			w.WriteHeader(http.StatusOK)
		}))

		w := serve(t, h, known.ID.String())
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("past due tenant is not blocked", func(t *testing.T) {
		t.Parallel()
		mw := tenant.Middleware(resolver, staticProvider(known))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))
		assert.Equal(t, http.StatusNoContent, serve(t, h, known.ID.String()).Code)
	})

	t.Run("continues without tenant when header missing", func(t *testing.T) {
		t.Parallel()
		mw := tenant.Middleware(resolver, staticProvider(known))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, ok := tenant.FromContext(r.Context())
			assert.False(t, ok)
			w.WriteHeader(http.StatusOK)
		}))
		assert.Equal(t, http.StatusOK, serve(t, h, "").Code)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		mw := tenant.Middleware(resolver, staticProvider(known))
		h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler should not be called")
		}))
		w := serve(t, h, uuid.NewString())
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed identifier", func(t *testing.T) {
		t.Parallel()
		mw := tenant.Middleware(resolver, staticProvider(known))
		h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler should not be called")
		}))
		assert.Equal(t, http.StatusBadRequest, serve(t, h, "acme").Code)
	})

	t.Run("provider failure", func(t *testing.T) {
		t.Parallel()
		failing := providerFunc(func(context.Context, uuid.UUID) (*tenant.Tenant, error) {
			return nil, errors.New("connection refused")
		})
		var handled error
		mw := tenant.Middleware(resolver, failing, tenant.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			handled = err
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		h := mw(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Error("handler should not be called")
		}))
		assert.Equal(t, http.StatusServiceUnavailable, serve(t, h, known.ID.String()).Code)
		assert.EqualError(t, handled, "connection refused")
	})

	t.Run("skip paths", func(t *testing.T) {
		t.Parallel()
		mw := tenant.Middleware(resolver, staticProvider(), tenant.WithSkipPaths("/api/v1/billing"))
		h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		assert.Equal(t, http.StatusOK, serve(t, h, uuid.NewString()).Code)
	})
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	h := tenant.RequireTenant(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(tenant.WithTenant(req.Context(), &tenant.Tenant{ID: uuid.New()}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
