package middleware

import (
	"net/http"
	"strings"
)

const (
	corsAllowedHeaders = "Authorization, Content-Type, X-Request-ID"
	corsAllowedMethods = "GET, POST, PUT, OPTIONS"
	corsExposedHeaders = "Retry-After, X-Request-ID"
)

// OriginAllowlist decides which browser origins may call the API or open the
// appointment stream. "*" allows every origin.
type OriginAllowlist struct {
	any     bool
	origins map[string]struct{}
}

func NewOriginAllowlist(origins []string) OriginAllowlist {
	list := OriginAllowlist{origins: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
		case "*":
			list.any = true
		default:
			list.origins[origin] = struct{}{}
		}
	}
	return list
}

// Empty reports whether no origin was configured at all.
func (l OriginAllowlist) Empty() bool {
	return !l.any && len(l.origins) == 0
}

// Allows reports whether origin is permitted.
func (l OriginAllowlist) Allows(origin string) bool {
	if l.any {
		return true
	}
	_, ok := l.origins[strings.TrimRight(origin, "/")]
	return ok
}

// CORS answers preflight requests and tags responses for allowlisted origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allow := NewOriginAllowlist(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Add("Vary", "Origin")
			if !allow.Allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.Header().Add("Vary", "Access-Control-Request-Method")
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Allow-Methods", corsAllowedMethods)
				w.Header().Set("Access-Control-Max-Age", "600")
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
