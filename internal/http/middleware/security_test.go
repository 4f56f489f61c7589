package middleware

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func hitHealth(opts SecurityOptions, decorate func(*http.Request), pre gin.HandlerFunc) http.Header {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if pre != nil {
		r.Use(pre)
	}
	r.Use(SecurityHeaders(opts))
	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	if decorate != nil {
		decorate(req)
	}
	r.ServeHTTP(w, req)
	return w.Header()
}

func TestSecurityHeaders_BaselineOnly(t *testing.T) {
	h := hitHealth(SecurityOptions{}, nil, nil)

	if h.Get("X-Content-Type-Options") != "nosniff" ||
		h.Get("X-Frame-Options") != "DENY" ||
		h.Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("baseline headers missing: %#v", h)
	}

	// With every option off, nothing optional may leak out.
	for _, hdr := range []string{
		"Permissions-Policy", "X-Permitted-Cross-Domain-Policies",
		"Cache-Control", "Pragma", "Expires",
		"Strict-Transport-Security",
	} {
		if h.Get(hdr) != "" {
			t.Fatalf("unexpected %s = %q", hdr, h.Get(hdr))
		}
	}
}

func TestSecurityHeaders_PolicyAndNoStore(t *testing.T) {
	h := hitHealth(SecurityOptions{NoStore: true, EnablePolicy: true}, nil, nil)

	if h.Get("Permissions-Policy") == "" || h.Get("X-Permitted-Cross-Domain-Policies") != "none" {
		t.Fatalf("policy headers missing: %#v", h)
	}
	if h.Get("Cache-Control") != "no-store" || h.Get("Pragma") != "no-cache" || h.Get("Expires") != "0" {
		t.Fatalf("cache suppression missing: %#v", h)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	opts := SecurityOptions{EnableHSTS: true, HSTSMaxAge: 24 * time.Hour}

	cases := []struct {
		name     string
		decorate func(*http.Request)
		want     string
	}{
		{
			name:     "terminated TLS",
			decorate: func(r *http.Request) { r.TLS = &tls.ConnectionState{} },
			want:     "max-age=86400; includeSubDomains; preload",
		},
		{
			name:     "behind proxy",
			decorate: func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https") },
			want:     "max-age=86400; includeSubDomains; preload",
		},
		{
			// Never advertised on a plain HTTP hop.
			name:     "plain http",
			decorate: nil,
			want:     "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := hitHealth(opts, tc.decorate, nil)
			if got := h.Get("Strict-Transport-Security"); got != tc.want {
				t.Fatalf("HSTS = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSecurityHeaders_HSTSDefaultMaxAge(t *testing.T) {
	h := hitHealth(SecurityOptions{EnableHSTS: true}, func(r *http.Request) {
		r.TLS = &tls.ConnectionState{}
	}, nil)

	want := "max-age=15552000; includeSubDomains; preload" // 180 days
	if got := h.Get("Strict-Transport-Security"); got != want {
		t.Fatalf("default HSTS = %q, want %q", got, want)
	}
}

func TestSecurityHeaders_ExposesRequestID(t *testing.T) {
	cases := []struct {
		name     string
		existing string
		want     string
	}{
		{"no expose header yet", "", "X-Request-ID"},
		{"appends to existing", "ETag", "ETag, X-Request-ID"},
		{"already exposed", "X-Request-ID, ETag", "X-Request-ID, ETag"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pre := func(c *gin.Context) {
				c.Header("X-Request-ID", "req-1")
				if tc.existing != "" {
					c.Header("Access-Control-Expose-Headers", tc.existing)
				}
				c.Next()
			}
			h := hitHealth(SecurityOptions{}, nil, pre)
			if got := h.Get("Access-Control-Expose-Headers"); got != tc.want {
				t.Fatalf("expose header = %q, want %q", got, tc.want)
			}
		})
	}
}

func Test_isHTTPS(t *testing.T) {
	plain := httptest.NewRequest(http.MethodGet, "/", nil)
	if isHTTPS(plain) {
		t.Fatalf("plain HTTP misread as https")
	}

	tlsReq := httptest.NewRequest(http.MethodGet, "/", nil)
	tlsReq.TLS = &tls.ConnectionState{}
	if !isHTTPS(tlsReq) {
		t.Fatalf("direct TLS not recognized")
	}

	fwd := httptest.NewRequest(http.MethodGet, "/", nil)
	fwd.Header.Set("X-Forwarded-Proto", "https")
	if !isHTTPS(fwd) {
		t.Fatalf("X-Forwarded-Proto https not recognized")
	}
}
