package security

import (
	"fmt"
	"net/http"
)

// HeadersConfig lists the response headers set on every payslip response.
type HeadersConfig struct {
	// CSP allows only same-origin scripts and styles: the printable payslip
	// page loads app.css and nothing else.
	CSP               string
	FrameOptions      string
	ReferrerPolicy    string
	PermissionsPolicy string
	// CacheControl keeps pay figures out of shared and browser caches.
	// Static assets override it.
	CacheControl string
	// HSTSMaxAge is sent only over TLS. Zero disables it.
	HSTSMaxAge int
}

// DefaultHeadersConfig returns the headers used by the boleta server.
func DefaultHeadersConfig() HeadersConfig {
	return HeadersConfig{
		CSP: "default-src 'self'; " +
			"style-src 'self'; " +
			"img-src 'self' data:; " +
			"object-src 'none'; " +
			"frame-ancestors 'none'; " +
			"base-uri 'self'; " +
			"form-action 'self'",
		FrameOptions:      "DENY",
		ReferrerPolicy:    "no-referrer",
		PermissionsPolicy: "geolocation=(), microphone=(), camera=(), payment=()",
		CacheControl:      "no-store",
		HSTSMaxAge:        31536000,
	}
}

// HeadersMiddleware applies HeadersConfig to responses.
type HeadersMiddleware struct {
	config HeadersConfig
}

func NewHeadersMiddleware(config HeadersConfig) *HeadersMiddleware {
	return &HeadersMiddleware{config: config}
}

// Middleware sets the headers before the wrapped handler runs, so handlers
// may still override them.
func (h *HeadersMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("X-Content-Type-Options", "nosniff")
		setIf(headers, "X-Frame-Options", h.config.FrameOptions)
		setIf(headers, "Content-Security-Policy", h.config.CSP)
		setIf(headers, "Referrer-Policy", h.config.ReferrerPolicy)
		setIf(headers, "Permissions-Policy", h.config.PermissionsPolicy)
		setIf(headers, "Cache-Control", h.config.CacheControl)
		if r.TLS != nil && h.config.HSTSMaxAge > 0 {
			headers.Set("Strict-Transport-Security", fmt.Sprintf("max-age=%d; includeSubDomains", h.config.HSTSMaxAge))
		}
		next.ServeHTTP(w, r)
	})
}

func setIf(h http.Header, key, value string) {
	if value != "" {
		h.Set(key, value)
	}
}

// StaticAssetMiddleware marks embedded assets as cacheable for maxAge seconds.
func StaticAssetMiddleware(maxAge int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if maxAge > 0 {
				w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", maxAge))
			}
			next.ServeHTTP(w, r)
		})
	}
}
