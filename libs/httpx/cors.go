package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy defines the CORS headers to emit for matching origins.
// An origin entry may be "*", an exact origin, or a subdomain wildcard
// such as "https://*.clinic.example".
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// WithCORS adds CORS handling. With no AllowedOrigins it returns nil, which
// Chain skips.
func WithCORS(cfg CORSPolicy) Middleware {
	origins := normalizeList(cfg.AllowedOrigins)
	if len(origins) == 0 {
		return nil
	}

	methods := strings.Join(normalizeList(cfg.AllowedMethods), ", ")
	headers := strings.Join(normalizeList(cfg.AllowedHeaders), ", ")
	exposed := strings.Join(normalizeList(cfg.ExposedHeaders), ", ")
	maxAge := ""
	if secs := int(cfg.MaxAge.Seconds()); secs > 0 {
		maxAge = strconv.Itoa(secs)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowOrigin, ok := matchOrigin(origin, origins, cfg.AllowCredentials)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", allowOrigin)
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if exposed != "" {
				h.Set("Access-Control-Expose-Headers", exposed)
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			if methods != "" {
				h.Set("Access-Control-Allow-Methods", methods)
			}
			if headers != "" {
				h.Set("Access-Control-Allow-Headers", headers)
			}
			if maxAge != "" {
				h.Set("Access-Control-Max-Age", maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

func normalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func matchOrigin(origin string, allowed []string, allowCredentials bool) (string, bool) {
	for _, candidate := range allowed {
		switch {
		case candidate == "*":
			if allowCredentials {
				return origin, true
			}
			return "*", true
		case strings.EqualFold(candidate, origin):
			return origin, true
		case strings.Contains(candidate, "://*."):
			scheme, suffix, _ := strings.Cut(candidate, "://*")
			if strings.HasPrefix(strings.ToLower(origin), strings.ToLower(scheme)+"://") &&
				strings.HasSuffix(strings.ToLower(origin), strings.ToLower(suffix)) &&
				len(origin) > len(scheme)+3+len(suffix) {
				return origin, true
			}
		}
	}
	return "", false
}
