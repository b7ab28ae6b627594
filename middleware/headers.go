package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mnehpets/onerpc/endpoint"
)

// HeadersProcessor sets security headers suitable for a JSON API and
// answers CORS preflight requests.
//
// Defaults from NewHeadersProcessor:
//   - Strict-Transport-Security: max-age=31536000; includeSubDomains
//   - Referrer-Policy: no-referrer
//   - X-Content-Type-Options: nosniff
//   - Content-Security-Policy: default-src 'none'; frame-ancestors 'none'
//   - Cache-Control: no-store
type HeadersProcessor struct {
	// HSTSMaxAge is the Strict-Transport-Security max-age in seconds.
	// Zero disables the header.
	HSTSMaxAge int

	ReferrerPolicy        string
	ContentSecurityPolicy string
	CacheControl          string

	// CORS is nil when cross-origin requests are not allowed.
	CORS *CORSConfig
}

// CORSConfig configures Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	// AllowedOrigins lists allowed origins. "*" allows any origin unless
	// AllowCredentials is set.
	AllowedOrigins []string

	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	MaxAge int
}

// HeadersOption configures a HeadersProcessor.
type HeadersOption func(*HeadersProcessor)

// NewHeadersProcessor returns a HeadersProcessor with API defaults.
func NewHeadersProcessor(opts ...HeadersOption) *HeadersProcessor {
	p := &HeadersProcessor{
		HSTSMaxAge:            31536000,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		CacheControl:          "no-store",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithoutHSTS disables Strict-Transport-Security, for plain HTTP deployments.
func WithoutHSTS() HeadersOption {
	return func(p *HeadersProcessor) { p.HSTSMaxAge = 0 }
}

// WithCORS allows cross-origin calls from origins. An empty list disables CORS.
func WithCORS(origins []string, allowCredentials bool) HeadersOption {
	return func(p *HeadersProcessor) {
		if len(origins) == 0 {
			p.CORS = nil
			return
		}
		p.CORS = &CORSConfig{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Request-Id"},
			ExposedHeaders:   []string{"X-Request-Id"},
			AllowCredentials: allowCredentials,
			MaxAge:           3600,
		}
	}
}

// Process implements endpoint.Processor.
func (p *HeadersProcessor) Process(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request) error) error {
	h := w.Header()
	if p.HSTSMaxAge > 0 {
		h.Set("Strict-Transport-Security", "max-age="+strconv.Itoa(p.HSTSMaxAge)+"; includeSubDomains")
	}
	if p.ReferrerPolicy != "" {
		h.Set("Referrer-Policy", p.ReferrerPolicy)
	}
	if p.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", p.ContentSecurityPolicy)
	}
	if p.CacheControl != "" {
		h.Set("Cache-Control", p.CacheControl)
	}
	h.Set("X-Content-Type-Options", "nosniff")

	if p.CORS != nil {
		setCORSHeaders(w, r, p.CORS)
		if r.Method == http.MethodOptions &&
			r.Header.Get("Origin") != "" &&
			r.Header.Get("Access-Control-Request-Method") != "" {
			return endpoint.Error(http.StatusNoContent, "", nil)
		}
	}
	return next(w, r)
}

// setCORSHeaders only acts on requests carrying an Origin header.
func setCORSHeaders(w http.ResponseWriter, r *http.Request, c *CORSConfig) {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return
	}
	h := w.Header()
	h.Add("Vary", "Origin")
	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" {
			// Wildcard is never combined with credentials.
			if c.AllowCredentials {
				continue
			}
			h.Set("Access-Control-Allow-Origin", "*")
			break
		}
		if allowed == origin {
			h.Set("Access-Control-Allow-Origin", origin)
			break
		}
	}
	if c.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(c.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(c.ExposedHeaders, ", "))
	}
	if r.Method == http.MethodOptions {
		if len(c.AllowedMethods) > 0 {
			h.Set("Access-Control-Allow-Methods", strings.Join(c.AllowedMethods, ", "))
		}
		if len(c.AllowedHeaders) > 0 {
			h.Set("Access-Control-Allow-Headers", strings.Join(c.AllowedHeaders, ", "))
		}
		if c.MaxAge > 0 {
			h.Set("Access-Control-Max-Age", strconv.Itoa(c.MaxAge))
		}
	}
}

var _ endpoint.Processor = (*HeadersProcessor)(nil)
