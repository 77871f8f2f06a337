package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"user-crud-service/internal/adapter/cache"
	"user-crud-service/internal/adapter/db/postgres"
	"user-crud-service/internal/adapter/gin/handler"
	"user-crud-service/internal/adapter/gin/middleware"
	"user-crud-service/internal/adapter/repository/cached"
	"user-crud-service/internal/usecase/user"
	"user-crud-service/pkg/security"
)

type testServer struct {
	router *gin.Engine
	db     *gorm.DB
}

func newTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, postgres.AutoMigrate(db))
	return db
}

// newTestServer wires the full stack on an in-memory database.
// With rdb set, reads go through the Redis cache.
func newTestServer(t *testing.T, rdb *redis.Client, rl *middleware.RateLimiter) *testServer {
	gin.SetMode(gin.TestMode)
	log := zaptest.NewLogger(t)
	db := newTestDB(t)

	var repo user.Repository = postgres.NewUserRepoPG(db, log)
	if rdb != nil {
		repo = cached.NewCachedUserRepository(repo, cache.NewRedisUserCache(rdb, time.Minute, log), log)
	}

	uc := user.New(repo, security.NewBcryptHasher(bcrypt.MinCost), log)
	health := handler.NewHealthHandler("user-crud-service", map[string]handler.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	})
	r := SetupRouter(handler.NewUserHandler(uc, log), health, rl, log)
	return &testServer{router: r, db: db}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) create(t *testing.T, name, email, password string) handler.UserResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/users", handler.UserRequest{Name: name, Email: email, Password: password})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var u handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	return u
}

func (s *testServer) list(t *testing.T) []handler.UserResponse {
	t.Helper()
	w := s.do(t, http.MethodGet, "/users", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var users []handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	return users
}

func TestRouter_Health(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp handler.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_OpenAPI(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodGet, "/openapi.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, paths, "/users")
	assert.Contains(t, paths, "/users/{user_id}")

	w = s.do(t, http.MethodGet, "/swagger/index.html", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_CreateThenGet(t *testing.T) {
	s := newTestServer(t, nil, nil)

	created := s.create(t, "Ana", "ana@example.com", "secret")
	assert.Positive(t, created.ID)
	assert.Equal(t, "Ana", created.Name)
	assert.Equal(t, "ana@example.com", created.Email)

	w := s.do(t, http.MethodGet, fmt.Sprintf("/users/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)

	var fetched handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, created, fetched)
}

func TestRouter_PasswordNeverReturnedAndHashed(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPost, "/users", handler.UserRequest{Name: "Ana", Email: "ana@example.com", Password: "plain-secret"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "plain-secret")

	var created handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	for _, path := range []string{"/users", fmt.Sprintf("/users/%d", created.ID)} {
		w := s.do(t, http.MethodGet, path, nil)
		assert.NotContains(t, w.Body.String(), "password")
		assert.NotContains(t, w.Body.String(), "plain-secret")
	}

	var stored postgres.UserSchema
	require.NoError(t, s.db.First(&stored, created.ID).Error)
	assert.NotEqual(t, "plain-secret", stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("plain-secret")))
}

func TestRouter_UpdateReplacesFields(t *testing.T) {
	s := newTestServer(t, nil, nil)
	created := s.create(t, "Ana", "ana@example.com", "secret")
	path := fmt.Sprintf("/users/%d", created.ID)

	w := s.do(t, http.MethodPut, path, handler.UserRequest{Name: "Bea", Email: "bea@example.com", Password: "other"})
	require.Equal(t, http.StatusOK, w.Code)

	var updated handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &updated))
	assert.Equal(t, handler.UserResponse{ID: created.ID, Name: "Bea", Email: "bea@example.com"}, updated)

	w = s.do(t, http.MethodGet, path, nil)
	var fetched handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, updated, fetched)
}

func TestRouter_UpdateMissingUser(t *testing.T) {
	s := newTestServer(t, nil, nil)

	w := s.do(t, http.MethodPut, "/users/42", handler.UserRequest{Name: "Bea", Email: "bea@example.com", Password: "other"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Empty(t, s.list(t))
}

func TestRouter_DeleteIsIdempotent(t *testing.T) {
	s := newTestServer(t, nil, nil)
	created := s.create(t, "Ana", "ana@example.com", "secret")
	path := fmt.Sprintf("/users/%d", created.ID)

	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/users/999", nil).Code)
}

func TestRouter_ListContainsAllUsersInOrder(t *testing.T) {
	s := newTestServer(t, nil, nil)
	assert.Equal(t, "[]", s.do(t, http.MethodGet, "/users", nil).Body.String())

	var want []handler.UserResponse
	for i := 0; i < 5; i++ {
		want = append(want, s.create(t, fmt.Sprintf("user-%d", i), fmt.Sprintf("user%d@example.com", i), "secret"))
	}

	assert.Equal(t, want, s.list(t))
}

func TestRouter_UserIDBoundary(t *testing.T) {
	s := newTestServer(t, nil, nil)

	for _, id := range []string{"0", "-1", "abc"} {
		for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
			w := s.do(t, method, "/users/"+id, handler.UserRequest{Name: "Ana", Email: "ana@example.com", Password: "x"})
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code, "%s /users/%s", method, id)
		}
	}

	// id 1 passes validation and reaches storage
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/users/1", nil).Code)
}

func TestRouter_InvalidInputLeavesStoreUnchanged(t *testing.T) {
	s := newTestServer(t, nil, nil)
	created := s.create(t, "Ana", "ana@example.com", "secret")

	cases := []struct {
		name string
		body any
	}{
		{"invalid email", handler.UserRequest{Name: "Bea", Email: "not-an-email", Password: "x"}},
		{"missing name", handler.UserRequest{Email: "bea@example.com", Password: "x"}},
		{"missing password", handler.UserRequest{Name: "Bea", Email: "bea@example.com"}},
		{"wrong type", map[string]any{"name": 7, "email": "bea@example.com", "password": "x"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/users", tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

			w = s.do(t, http.MethodPut, fmt.Sprintf("/users/%d", created.ID), tc.body)
			assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

			assert.Equal(t, []handler.UserResponse{created}, s.list(t))
		})
	}
}

func TestRouter_CachedReadsSeeWrites(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := newTestServer(t, rdb, nil)

	created := s.create(t, "Ana", "ana@example.com", "secret")
	path := fmt.Sprintf("/users/%d", created.ID)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodGet, path, nil).Code)
	assert.True(t, mr.Exists(cache.Key(created.ID)))

	w := s.do(t, http.MethodPut, path, handler.UserRequest{Name: "Bea", Email: "bea@example.com", Password: "other"})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, path, nil)
	var fetched handler.UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fetched))
	assert.Equal(t, "Bea", fetched.Name)

	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil).Code)
}

func TestRouter_RateLimitOnlyAppliesToUsers(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := middleware.NewRateLimiter(rdb, middleware.RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstCapacity:     1,
		Enabled:           true,
	}, zaptest.NewLogger(t))
	s := newTestServer(t, nil, rl)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/users", nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, http.MethodGet, "/users", nil).Code)

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/health", nil).Code)
	}
}
