package tenant_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/tenantgate/pkg/tenant"
)

func serve(h http.Handler, host string, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "http://"+host+path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("attaches resolution and headers", func(t *testing.T) {
		t.Parallel()

		f := newResolverFixture(t)
		var got tenant.ResolutionContext
		h := tenant.Middleware(f.resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = tenant.MustFromContext(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		w := serve(h, "acme.example.com", "/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, f.acme.ID, got.TenantID)
		assert.Equal(t, f.acme.ID.String(), w.Header().Get(tenant.HeaderTenantID))
		assert.Equal(t, "primary", w.Header().Get(tenant.HeaderMatchType))
	})

	t.Run("headers can be disabled", func(t *testing.T) {
		t.Parallel()

		f := newResolverFixture(t)
		h := tenant.Middleware(f.resolver, tenant.WithResponseHeaders(false))(okHandler())

		w := serve(h, "acme.example.com", "/")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get(tenant.HeaderTenantID))
	})

	t.Run("error responses stay generic", func(t *testing.T) {
		t.Parallel()

		f := newResolverFixture(t)
		h := tenant.Middleware(f.resolver)(okHandler())

		notFound := serve(h, "ghost.example.com", "/")
		inactive := serve(h, "initech.biz", "/")
		assert.Equal(t, http.StatusNotFound, notFound.Code)
		assert.Equal(t, http.StatusNotFound, inactive.Code)
		assert.Equal(t, notFound.Body.String(), inactive.Body.String())
		assert.NotContains(t, notFound.Body.String(), "ghost")
	})

	t.Run("store failure is a 503", func(t *testing.T) {
		t.Parallel()

		store := &mockStore{}
		store.On("FindByDomain", mock.Anything, "acme.example.com").Return(nil, assert.AnError)
		r := tenant.NewResolver(store, tenant.WithCache(nil))

		w := serve(tenant.Middleware(r)(okHandler()), "acme.example.com", "/")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.NotContains(t, w.Body.String(), assert.AnError.Error())
	})

	t.Run("skip paths bypass resolution", func(t *testing.T) {
		t.Parallel()

		f := newResolverFixture(t)
		var resolved bool
		h := tenant.Middleware(f.resolver, tenant.WithSkipPaths("/health"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, resolved = tenant.FromContext(r.Context())
		}))

		w := serve(h, "ghost.example.com", "/health/live")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, resolved)
		f.store.AssertNotCalled(t, "FindByDomain", mock.Anything, mock.Anything)
	})

	t.Run("custom error handler", func(t *testing.T) {
		t.Parallel()

		f := newResolverFixture(t)
		var handled error
		h := tenant.Middleware(f.resolver, tenant.WithErrorHandler(func(w http.ResponseWriter, _ *http.Request, err error) {
			handled = err
			w.WriteHeader(http.StatusTeapot)
		}))(okHandler())

		w := serve(h, "ghost.example.com", "/")
		assert.Equal(t, http.StatusTeapot, w.Code)
		assert.ErrorIs(t, handled, tenant.ErrTenantNotFound)
	})

	t.Run("panics on nil resolver", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { tenant.Middleware(nil) })
	})
}

func TestRequireTenant(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)
	chain := func(tenantOnly bool) http.Handler {
		return tenant.Middleware(f.resolver)(tenant.RequireTenant(tenantOnly, nil)(okHandler()))
	}

	assert.Equal(t, http.StatusOK, serve(chain(false), "acme.example.com", "/").Code)
	assert.Equal(t, http.StatusOK, serve(chain(false), "localhost", "/").Code)
	assert.Equal(t, http.StatusOK, serve(chain(true), "acme.example.com", "/").Code)
	assert.Equal(t, http.StatusForbidden, serve(chain(true), "localhost", "/").Code)

	// Without the resolution middleware nothing is scoped.
	w := serve(tenant.RequireTenant(false, nil)(okHandler()), "acme.example.com", "/")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireSuperAdmin(t *testing.T) {
	t.Parallel()

	f := newResolverFixture(t)
	h := tenant.Middleware(f.resolver)(tenant.RequireSuperAdmin(nil)(okHandler()))

	assert.Equal(t, http.StatusOK, serve(h, "localhost:8080", "/admin").Code)
	assert.Equal(t, http.StatusForbidden, serve(h, "acme.example.com", "/admin").Code)
}

func TestDefaultErrorHandler(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		err  error
		code int
	}{
		{tenant.ErrTenantNotFound, http.StatusNotFound},
		{tenant.ErrTenantInactive, http.StatusNotFound},
		{tenant.ErrMissingDomain, http.StatusNotFound},
		{tenant.ErrNoResolution, http.StatusForbidden},
		{tenant.ErrStoreTimeout, http.StatusServiceUnavailable},
		{context.Canceled, http.StatusServiceUnavailable},
	} {
		w := httptest.NewRecorder()
		tenant.DefaultErrorHandler(w, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.code, w.Code, tc.err.Error())
	}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}
