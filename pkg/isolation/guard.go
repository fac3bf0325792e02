package isolation

import (
	"net/http"
)

// ReferenceExtractor pulls the tenant reference of an operation out of a request.
// It returns a zero Reference when the request carries none.
type ReferenceExtractor func(r *http.Request) Reference

// QueryReference reads the tenant reference from a query parameter.
func QueryReference(param string) ReferenceExtractor {
	return func(r *http.Request) Reference {
		return Reference{TenantID: r.URL.Query().Get(param), Field: FieldQuery}
	}
}

// PathReference wraps a router-specific path parameter lookup, such as chi.URLParam.
func PathReference(lookup func(r *http.Request) string) ReferenceExtractor {
	return func(r *http.Request) Reference {
		return Reference{TenantID: lookup(r), Field: FieldPath}
	}
}

// FirstReference returns the first non-empty reference of extractors.
func FirstReference(extractors ...ReferenceExtractor) ReferenceExtractor {
	return func(r *http.Request) Reference {
		for _, extract := range extractors {
			if ref := extract(r); ref.TenantID != "" {
				return ref
			}
		}
		return Reference{}
	}
}

// Guard runs the enforcer for every request behind it, using the resolution
// attached by tenant.Middleware. Mutating methods are marked as write intent.
// Denied requests get a generic 403.
func Guard(enforcer *Enforcer, extract ReferenceExtractor) func(http.Handler) http.Handler {
	if enforcer == nil {
		panic("isolation: enforcer cannot be nil")
	}
	if extract == nil {
		extract = func(*http.Request) Reference { return Reference{} }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ref := extract(r)
			ref.Write = ref.Write || isWrite(r.Method)

			if d := enforcer.AuthorizeContext(r.Context(), ref); !d.Allowed {
				http.Error(w, "access denied", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isWrite(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return false
	default:
		return true
	}
}
