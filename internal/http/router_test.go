package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "racereg/internal/jwt_token"
	regHandler "racereg/internal/registration/handler"
	"racereg/internal/registration/models"
	"racereg/internal/registration/service"
	"racereg/internal/registration/store/ledger"
	id "racereg/pkg/domain"
	"racereg/pkg/platform/middleware/request"
)

const signingKey = "router-test-key"

type routerFixture struct {
	router   http.Handler
	jwt      *jwttoken.JWTService
	distance *models.Distance
}

func newRouterFixture(t *testing.T, checks map[string]HealthCheck) *routerFixture {
	t.Helper()
	store := ledger.NewInMemory()
	race, distances, err := ledger.SeedDemoRace(context.Background(), store, id.UserID(uuid.New()), time.Now())
	require.NoError(t, err)
	require.NotNil(t, race)

	svc, err := service.New(store)
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))

	jwtService := jwttoken.NewJWTService(signingKey, "racereg", "racereg-api")
	router := NewRouter(Options{
		Logger:         logger,
		Validator:      jwttoken.NewJWTServiceAdapter(jwtService),
		RequestTimeout: 5 * time.Second,
		Private:        []Routes{regHandler.New(svc, logger)},
		HealthChecks:   checks,
	})
	return &routerFixture{router: router, jwt: jwtService, distance: distances[0]}
}

func (f *routerFixture) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		f := newRouterFixture(t, map[string]HealthCheck{
			"postgres": func(context.Context) error { return nil },
		})
		rec := f.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body healthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
	})

	t.Run("failing dependency degrades", func(t *testing.T) {
		f := newRouterFixture(t, map[string]HealthCheck{
			"redis": func(context.Context) error { return errors.New("connection refused") },
		})
		rec := f.serve(httptest.NewRequest(http.MethodGet, "/healthz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body healthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "degraded", body.Status)
		assert.Equal(t, "connection refused", body.Checks["redis"])
	})
}

func TestRouter_Metrics(t *testing.T) {
	f := newRouterFixture(t, nil)
	rec := f.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_Authentication(t *testing.T) {
	f := newRouterFixture(t, nil)

	t.Run("missing token", func(t *testing.T) {
		rec := f.serve(httptest.NewRequest(http.MethodGet, "/registrations", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("token signed with another key", func(t *testing.T) {
		other := jwttoken.NewJWTService("other-key", "racereg", "racereg-api")
		token, err := other.GenerateAccessToken(id.UserID(uuid.New()), time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/registrations", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		assert.Equal(t, http.StatusUnauthorized, f.serve(req).Code)
	})

	t.Run("valid token reaches the handler", func(t *testing.T) {
		token, err := f.jwt.GenerateAccessToken(id.UserID(uuid.New()), time.Hour)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/registrations", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := f.serve(req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotEmpty(t, rec.Header().Get(request.HeaderRequestID))
	})

	t.Run("public routes skip authentication", func(t *testing.T) {
		rec := f.serve(httptest.NewRequest(http.MethodGet, "/distances/"+f.distance.ID.String()+"/availability", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestRouter_RequestIDIsEchoed(t *testing.T) {
	f := newRouterFixture(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(request.HeaderRequestID, "req-123")

	rec := f.serve(req)
	assert.Equal(t, "req-123", rec.Header().Get(request.HeaderRequestID))
}
