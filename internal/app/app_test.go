package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgclosets/quote-service/internal/shared"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CSRF_SECRET", testSecret)
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "whsec")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, "pgc_session", cfg.SessionCookie)
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "America/Toronto", cfg.Location().String())
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, "PG Closets", cfg.SMTP().FromName)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("CSRF_SECRET", "")
	t.Setenv("PAYMENT_WEBHOOK_SECRET", "")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	base := Config{
		AppEnv:               "production",
		CSRFSecret:           testSecret,
		PaymentWebhookSecret: "whsec",
		BusinessTimeZone:     "America/Toronto",
		AdminEmail:           "sales@pgclosets.com",
	}
	require.NoError(t, base.Validate())

	cases := map[string]func(c *Config){
		"short production secret": func(c *Config) { c.CSRFSecret = "short" },
		"missing webhook secret":  func(c *Config) { c.PaymentWebhookSecret = "" },
		"unknown time zone":       func(c *Config) { c.BusinessTimeZone = "Mars/Olympus" },
		"bad admin email":         func(c *Config) { c.AdminEmail = "not an address" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoggerJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&Config{AppEnv: "staging", LogFormat: "json", LogLevel: "warn"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "staging", line["env"])
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func newTestRouter(t *testing.T, ready map[string]Pinger) (http.Handler, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{AppEnv: "test", AppRequestTimeout: 5 * time.Second}
	logger := newLogger(cfg, &bytes.Buffer{})
	router := NewRouter(RouterParams{
		Logger:         logger,
		Config:         cfg,
		SessionManager: shared.NewSessionManager(client, "pgc_session", time.Hour, false),
		CSRFManager:    shared.NewCSRFManager(testSecret),
		Ready:          ready,
	})
	return router, mr
}

func TestRouterHealthAndNotFound(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
}

func TestRouterReadiness(t *testing.T) {
	router, _ := newTestRouter(t, map[string]Pinger{
		"postgres": pingerFunc(func(context.Context) error { return nil }),
		"redis":    pingerFunc(func(context.Context) error { return errors.New("dial tcp: refused") }),
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Ready  bool              `json:"ready"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Ready)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "unavailable"}, body.Checks)
}

func TestRouterCSRFToken(t *testing.T) {
	router, mr := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/session/csrf", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	require.NoError(t, mr.Set("session:staff-1", `{"values":{},"user_id":"1","email":"staff@pgclosets.com"}`))
	req := httptest.NewRequest(http.MethodGet, "/api/session/csrf", nil)
	req.AddCookie(&http.Cookie{Name: "pgc_session", Value: "staff-1"})
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Token  string `json:"csrf_token"`
		Header string `json:"header"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body.Token)
	assert.Equal(t, shared.CSRFHeader, body.Header)

	stored, err := mr.Get("session:staff-1")
	require.NoError(t, err)
	assert.Contains(t, stored, body.Token)
}
