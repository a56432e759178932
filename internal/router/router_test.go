package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/canteen-voting/internal/config"
	"github.com/iliyamo/canteen-voting/internal/handler"
	"github.com/iliyamo/canteen-voting/internal/middleware"
	"github.com/iliyamo/canteen-voting/internal/repository"
	"github.com/iliyamo/canteen-voting/internal/service"
	"github.com/iliyamo/canteen-voting/internal/testutil"
)

type app struct {
	e   *echo.Echo
	svc *service.VoteService
}

func newApp(t *testing.T) *app {
	t.Helper()
	return newAppWith(t, nil, config.RateLimitConfig{}, config.CacheConfig{})
}

// newAppWith wires the limiter, the response cache and the results cache
// to rdb when it is not nil.
func newAppWith(t *testing.T, rdb *redis.Client, rl config.RateLimitConfig, cc config.CacheConfig) *app {
	t.Helper()
	db := testutil.OpenDB(t)
	logger, _ := logtest.NewNullLogger()
	log := logrus.NewEntry(logger)
	cfg := config.Config{
		Env:            "test",
		JWTSecret:      "router-secret",
		AccessTTLMin:   15,
		RefreshTTLDays: 1,
		BcryptCost:     4,
		VotingTZ:       time.UTC,
		RequestTimeout: 5 * time.Second,
		CORSOrigins:    []string{"*"},
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	svc := service.NewVoteService(db, users, repository.NewVoteRepo(db), cfg.VotingTZ, log)
	svc.Now = func() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) }

	if rdb != nil {
		svc.Cache = service.NewResultsCache(rdb, "test", time.Minute)
	}

	e := New(cfg, log)
	limiter := middleware.NewTokenBucket(rl, rdb, log)
	cache := middleware.NewRedisCache(cc, rdb, log)
	RegisterRoutes(e, db)
	RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens, log), cfg.JWTSecret, middleware.NewTokenBucket(config.RateLimitConfig{}, nil, log))
	RegisterUsers(e, handler.NewUserHandler(users, cfg.RequestTimeout, log), cfg.JWTSecret, cache)
	RegisterVote(e, handler.NewVoteHandler(svc, cfg.RequestTimeout, log), cfg.JWTSecret, limiter)
	return &app{e: e, svc: svc}
}

func (a *app) serve(t *testing.T, method, path, token string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func (a *app) call(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	rec := a.serve(t, method, path, token, body, nil)

	out := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get(echo.HeaderContentType) != echo.MIMETextPlainCharsetUTF8 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

// register creates an account and returns (user id, access token).
func (a *app) register(t *testing.T, name, email, role string) (string, string) {
	t.Helper()
	code, body := a.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": name, "email": email, "password": "secret-pass", "role": role,
	})
	require.Equal(t, http.StatusCreated, code, body)
	user := body["user"].(map[string]any)
	return user["id"].(string), body["token"].(string)
}

func TestHealthEndpoints(t *testing.T) {
	a := newApp(t)

	code, _ := a.call(t, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	code, body := a.call(t, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ready", body["status"])
}

func TestAuthFlow(t *testing.T) {
	a := newApp(t)
	id, token := a.register(t, "  <b>Asha</b> ", "Asha@Example.com", "student")

	code, body := a.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Other", "email": "asha@example.com", "password": "x", "role": "student",
	})
	require.Equal(t, http.StatusConflict, code)
	require.Equal(t, false, body["success"])

	code, _ = a.call(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"name": "Admin", "email": "admin@example.com", "password": "x", "role": "admin",
	})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = a.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "asha@example.com", "password": "wrong"})
	require.Equal(t, http.StatusUnauthorized, code)

	code, body = a.call(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ASHA@example.com", "password": "secret-pass"})
	require.Equal(t, http.StatusOK, code)
	user := body["user"].(map[string]any)
	require.Equal(t, "Asha", user["name"])
	refresh := body["refresh"].(map[string]any)["token"].(string)

	code, body = a.call(t, http.MethodGet, "/api/auth/me", token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, id, body["user_id"])
	require.Equal(t, "student", body["role"])

	code, body = a.call(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusOK, code)
	rotated := body["refresh"].(map[string]any)["token"].(string)

	// the old refresh token was revoked by rotation
	code, _ = a.call(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refresh_token": refresh})
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.call(t, http.MethodPost, "/api/auth/logout", "", map[string]string{"refresh_token": rotated})
	require.Equal(t, http.StatusNoContent, code)
	code, _ = a.call(t, http.MethodPost, "/api/auth/refresh-access", "", map[string]string{"refresh_token": rotated})
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestVendorDirectory(t *testing.T) {
	a := newApp(t)
	_, student := a.register(t, "Asha", "asha@example.com", "student")
	a.register(t, "Noodle Bar", "noodle@example.com", "vendor")
	a.register(t, "Dosa Corner", "dosa@example.com", "vendor")

	code, _ := a.call(t, http.MethodGet, "/api/users/vendors", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := a.call(t, http.MethodGet, "/api/users/vendors", student, nil)
	require.Equal(t, http.StatusOK, code)
	vendors := body["vendors"].([]any)
	require.Len(t, vendors, 2)
	first := vendors[0].(map[string]any)
	require.Equal(t, "Dosa Corner", first["name"])
	require.NotContains(t, first, "password_hash")
	require.NotContains(t, first, "PasswordHash")
}

func TestVoteFlow(t *testing.T) {
	a := newApp(t)
	_, student := a.register(t, "Asha", "asha@example.com", "student")
	_, other := a.register(t, "Ben", "ben@example.com", "student")
	v1, vendorTok := a.register(t, "Noodle Bar", "noodle@example.com", "vendor")
	v2, _ := a.register(t, "Dosa Corner", "dosa@example.com", "vendor")

	code, body := a.call(t, http.MethodGet, "/api/vote/status", student, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, false, body["hasVoted"])
	require.Nil(t, body["vote"])

	code, body = a.call(t, http.MethodPost, "/api/vote/cast", student, map[string]string{"vendorId": v1})
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, true, body["success"])
	require.Equal(t, "Vote cast successfully", body["message"])

	code, body = a.call(t, http.MethodPost, "/api/vote/cast", student, map[string]string{"targetId": v2})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "You have already voted this period", body["message"])

	code, _ = a.call(t, http.MethodPost, "/api/vote/cast", other, map[string]string{"targetId": v1})
	require.Equal(t, http.StatusCreated, code)

	code, body = a.call(t, http.MethodGet, "/api/vote/status", student, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, true, body["hasVoted"])
	vote := body["vote"].(map[string]any)
	require.Equal(t, "Noodle Bar", vote["vendorName"])
	require.Equal(t, "2024-06", vote["votingPeriod"])

	code, body = a.call(t, http.MethodGet, "/api/vote/results", vendorTok, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "2024-06", body["period"])
	require.Equal(t, float64(2), body["totalVotes"])
	results := body["results"].([]any)
	require.Len(t, results, 1)
	top := results[0].(map[string]any)
	require.Equal(t, v1, top["vendorId"])
	require.Equal(t, float64(100), top["percentage"])

	code, body = a.call(t, http.MethodGet, "/api/vote/results?period=2024-05", student, nil)
	require.Equal(t, http.StatusOK, code)
	require.Empty(t, body["results"])

	code, _ = a.call(t, http.MethodGet, "/api/vote/results?period=June", student, nil)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestVotePolicy(t *testing.T) {
	a := newApp(t)
	v1, vendorTok := a.register(t, "Noodle Bar", "noodle@example.com", "vendor")
	_, student := a.register(t, "Asha", "asha@example.com", "student")

	code, _ := a.call(t, http.MethodPost, "/api/vote/cast", "", map[string]string{"vendorId": v1})
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = a.call(t, http.MethodPost, "/api/vote/cast", vendorTok, map[string]string{"vendorId": v1})
	require.Equal(t, http.StatusForbidden, code)

	code, _ = a.call(t, http.MethodGet, "/api/vote/status", vendorTok, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = a.call(t, http.MethodGet, "/api/vote/results", "", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, body := a.call(t, http.MethodPost, "/api/vote/cast", student, map[string]string{"vendorId": "not-a-uuid"})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["success"])

	code, body = a.call(t, http.MethodPost, "/api/vote/cast", student, map[string]string{})
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, false, body["success"])
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestCastRateLimited(t *testing.T) {
	a := newAppWith(t, newRedis(t), config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: time.Hour, KeyStrategy: "user_route", Prefix: "rl",
	}, config.CacheConfig{})
	v1, _ := a.register(t, "Noodle Bar", "noodle@example.com", "vendor")
	_, student := a.register(t, "Asha", "asha@example.com", "student")
	_, other := a.register(t, "Ben", "ben@example.com", "student")

	cast := func(token string) *httptest.ResponseRecorder {
		return a.serve(t, http.MethodPost, "/api/vote/cast", token, map[string]string{"vendorId": v1}, nil)
	}
	require.Equal(t, http.StatusCreated, cast(student).Code)
	require.Equal(t, http.StatusBadRequest, cast(student).Code)

	rec := cast(student)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.NotEmpty(t, rec.Header().Get("Retry-After"))
	require.NotEqual(t, "0", rec.Header().Get("Retry-After"))
	require.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// buckets are per user
	require.Equal(t, http.StatusCreated, cast(other).Code)
}

func TestResultsCachedInRedis(t *testing.T) {
	a := newAppWith(t, newRedis(t), config.RateLimitConfig{}, config.CacheConfig{})
	v1, vendorTok := a.register(t, "Noodle Bar", "noodle@example.com", "vendor")
	_, student := a.register(t, "Asha", "asha@example.com", "student")
	_, other := a.register(t, "Ben", "ben@example.com", "student")

	code, _ := a.call(t, http.MethodPost, "/api/vote/cast", student, map[string]string{"vendorId": v1})
	require.Equal(t, http.StatusCreated, code)
	_, body := a.call(t, http.MethodGet, "/api/vote/results", vendorTok, nil)
	require.Equal(t, float64(1), body["totalVotes"])

	// the second cast drops the cached tally
	code, _ = a.call(t, http.MethodPost, "/api/vote/cast", other, map[string]string{"vendorId": v1})
	require.Equal(t, http.StatusCreated, code)
	_, body = a.call(t, http.MethodGet, "/api/vote/results", vendorTok, nil)
	require.Equal(t, float64(2), body["totalVotes"])
}

func TestVendorsCacheHitKeepsRequestHeaders(t *testing.T) {
	a := newAppWith(t, newRedis(t), config.RateLimitConfig{}, config.CacheConfig{
		Enabled: true, Methods: map[string]bool{http.MethodGet: true},
		TTL: time.Minute, KeyStrategy: "route_query", Prefix: "test",
	})
	a.register(t, "Noodle Bar", "noodle@example.com", "vendor")
	_, student := a.register(t, "Asha", "asha@example.com", "student")
	origin := map[string]string{echo.HeaderOrigin: "http://localhost:5173"}

	first := a.serve(t, http.MethodGet, "/api/users/vendors", student, nil, origin)
	require.Equal(t, http.StatusOK, first.Code)
	require.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := a.serve(t, http.MethodGet, "/api/users/vendors", student, nil, origin)
	require.Equal(t, http.StatusOK, second.Code)
	require.Equal(t, "HIT", second.Header().Get("X-Cache"))
	require.Equal(t, first.Body.String(), second.Body.String())
	require.Len(t, second.Header().Values(echo.HeaderAccessControlAllowOrigin), 1)
	require.Len(t, second.Header().Values(echo.HeaderXRequestID), 1)
	require.NotEqual(t, first.Header().Get(echo.HeaderXRequestID), second.Header().Get(echo.HeaderXRequestID))
	require.Len(t, second.Header().Values(echo.HeaderContentType), 1)
}
