package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"jamlink/internal/core/domain"
	"jamlink/internal/core/services"
	"jamlink/pkg/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuth(t *testing.T) (services.AuthService, *services.TokenPair, *services.TokenPair) {
	t.Helper()
	auth := services.NewAuthService("secret", "1234", time.Minute, time.Hour)
	controller, err := auth.Pair("desk", "1234", domain.RoleController)
	require.NoError(t, err)
	observer, err := auth.Pair("phone", "1234", domain.RoleObserver)
	require.NoError(t, err)
	return auth, controller, observer
}

func TestAuthMiddleware(t *testing.T) {
	auth, controller, observer := newAuth(t)

	router := gin.New()
	router.GET("/state", AuthMiddleware(auth, domain.RoleObserver), func(c *gin.Context) {
		claims, err := services.ClaimsFromContext(c.Request.Context())
		require.NoError(t, err)
		c.String(http.StatusOK, claims.Name)
	})
	router.POST("/groups", AuthMiddleware(auth, domain.RoleController), func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	cases := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"missing token", http.MethodGet, "/state", "", http.StatusUnauthorized},
		{"malformed header", http.MethodGet, "/state", "Token abc", http.StatusUnauthorized},
		{"garbage token", http.MethodGet, "/state", "Bearer abc", http.StatusUnauthorized},
		{"observer reads", http.MethodGet, "/state", "Bearer " + observer.AccessToken, http.StatusOK},
		{"observer cannot mutate", http.MethodPost, "/groups", "Bearer " + observer.AccessToken, http.StatusForbidden},
		{"controller mutates", http.MethodPost, "/groups", "Bearer " + controller.AccessToken, http.StatusCreated},
		{"refresh token rejected", http.MethodGet, "/state", "Bearer " + controller.RefreshToken, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestBearerToken_QueryFallback(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=abc", nil)
	assert.Equal(t, "abc", BearerToken(req))

	req.Header.Set("Authorization", "bearer xyz")
	assert.Equal(t, "xyz", BearerToken(req))
}

func TestErrorHandlerMiddleware_MapsCoreErrors(t *testing.T) {
	router := gin.New()
	router.Use(ErrorHandlerMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/dup", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("add group: %w", domain.ErrDuplicateName))
	})
	router.GET("/busy", func(c *gin.Context) {
		_ = c.Error(domain.ErrTransitionInFlight)
	})
	router.GET("/boom", func(c *gin.Context) {
		_ = c.Error(fmt.Errorf("disk on fire"))
	})

	cases := map[string]struct {
		status int
		code   string
	}{
		"/dup":  {http.StatusConflict, "DUPLICATE_NAME"},
		"/busy": {http.StatusConflict, "TRANSITION_IN_FLIGHT"},
		"/boom": {http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for path, want := range cases {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, want.status, w.Code, path)

		var body map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, want.code, body["error"], path)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RecoveryMiddleware(zaptest.NewLogger(t).Sugar()))
	router.GET("/panic", func(c *gin.Context) { panic("unexpected") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestTracingMiddleware(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := tracesdk.NewTracerProvider(tracesdk.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})

	router := gin.New()
	router.Use(TracingMiddleware())
	router.GET("/api/v1/groups", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/groups", nil))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "http.GET", spans[0].Name())

	routes := map[string]bool{}
	for _, span := range spans {
		for _, attr := range span.Attributes() {
			if attr.Key == "http.route" {
				routes[attr.Value.AsString()] = true
			}
		}
	}
	assert.True(t, routes["/api/v1/groups"])
	assert.True(t, routes["unmatched"])
}

func TestRequestLoggerMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	auth, controller, _ := newAuth(t)

	router := gin.New()
	router.Use(TracingMiddleware(), RequestLoggerMiddleware(logger.NewContextLogger(zap.New(core))))
	router.GET("/api/v1/status", AuthMiddleware(auth, domain.RoleObserver), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer "+controller.AccessToken)
	req.Header.Set(requestIDHeader, "req-42")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	entries := logs.FilterMessage("http_request").All()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "req-42", first["request_id"])
	assert.Equal(t, int64(http.StatusOK), first["status_code"])
	assert.NotEmpty(t, first["client"])
	assert.Equal(t, int64(http.StatusUnauthorized), entries[1].ContextMap()["status_code"])
}
