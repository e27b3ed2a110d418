package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/prempal04/AyurSutra/internal/config"
	"github.com/prempal04/AyurSutra/internal/domain"
	"github.com/prempal04/AyurSutra/pkg/auth"
	"github.com/prempal04/AyurSutra/pkg/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestIDFrom(c)) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(HeaderRequestID)
	if _, err := uuid.Parse(generated); err != nil || w.Body.String() != generated {
		t.Errorf("generated id %q, body %q", generated, w.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	if w := serve(r, req); w.Header().Get(HeaderRequestID) != "abc-123" {
		t.Errorf("incoming id not propagated: %q", w.Header().Get(HeaderRequestID))
	}
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.NewNop()))
	r.GET("/boom", func(*gin.Context) { panic("kaboom") })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestMetrics_UsesRouteTemplate(t *testing.T) {
	m := metrics.NewCollector("test", prometheus.NewRegistry())
	r := gin.New()
	r.Use(Metrics(m))
	r.GET("/appointments/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for range 3 {
		serve(r, httptest.NewRequest(http.MethodGet, "/appointments/"+uuid.NewString(), nil))
	}
	serve(r, httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/appointments/:id", "204")); got != 3 {
		t.Errorf("templated count = %v", got)
	}
	if got := testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched count = %v", got)
	}
	if got := testutil.ToFloat64(m.InFlightGauge); got != 0 {
		t.Errorf("in flight = %v", got)
	}
}

func TestTracing_PassesThrough(t *testing.T) {
	r := gin.New()
	r.Use(RequestID(), Tracing("test"))
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	if w := serve(r, req); w.Code != http.StatusOK || w.Body.String() != "pong" {
		t.Errorf("status=%d body=%q", w.Code, w.Body.String())
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(config.CORSConfig{
		AllowedOrigins: []string{"https://clinic.example"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         time.Hour,
	}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://clinic.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := serve(r, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://clinic.example" {
		t.Errorf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example")
	if w := serve(r, req); w.Code != http.StatusForbidden {
		t.Errorf("foreign origin status = %d", w.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{RequestsPerSecond: 1, BurstSize: 2}, zap.NewNop())
	r := gin.New()
	r.Use(rl.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.1.1:5000"
		codes = append(codes, serve(r, req).Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}

	other := httptest.NewRequest(http.MethodGet, "/", nil)
	other.RemoteAddr = "10.1.1.2:5000"
	if w := serve(r, other); w.Code != http.StatusOK {
		t.Errorf("second client limited: %d", w.Code)
	}

	rl.now = func() time.Time { return time.Now().Add(time.Hour) }
	if removed := rl.Cleanup(); removed != 2 {
		t.Errorf("cleanup removed %d", removed)
	}
}

func TestAuthenticate(t *testing.T) {
	jwtm := auth.NewJWTManager(config.JWTConfig{
		Secret:         "middleware-test-secret-of-some-length",
		AccessTokenTTL: time.Minute,
		Issuer:         "ayursutra-api",
	})
	staff := uuid.New()
	token, _, err := jwtm.GenerateAccessToken(&domain.Claims{UserID: uuid.New(), Role: domain.RoleDoctor, StaffID: &staff})
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	r := gin.New()
	api := r.Group("/", Authenticate(jwtm))
	api.GET("/me", func(c *gin.Context) { c.String(http.StatusOK, string(ClaimsFrom(c).Role)) })
	api.GET("/admin", RequireRoles(domain.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	api.GET("/clinical", RequireRoles(domain.RoleAdmin, domain.RoleDoctor), func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"valid", "/me", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "/me", "bearer " + token, http.StatusOK},
		{"role denied", "/admin", "Bearer " + token, http.StatusForbidden},
		{"role allowed", "/clinical", "Bearer " + token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := serve(r, req)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
			if tt.name == "valid" && w.Body.String() != "doctor" {
				t.Errorf("role = %q", w.Body.String())
			}
		})
	}
}

func TestRequireRoles_WithoutAuthenticate(t *testing.T) {
	r := gin.New()
	r.GET("/", RequireRoles(domain.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusOK) })
	if w := serve(r, httptest.NewRequest(http.MethodGet, "/", nil)); w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d", w.Code)
	}
}
