package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quillworks/quill/middleware"
	"github.com/quillworks/quill/models"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "controller-test-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// newTestServer builds a router over a fresh in-memory database, wired the
// same way as routes.SetupRouter.
func newTestServer(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single connection keeps the in-memory database alive and shared
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Post{}, &models.Comment{}))

	r := gin.New()
	auth := NewAuthController(db)
	posts := NewPostController(db)

	api := r.Group("/api/v1")
	api.POST("/auth/register", auth.Register)
	api.POST("/auth/login", auth.Login)
	api.POST("/auth/logout", auth.Logout)
	api.GET("/auth/me", middleware.AuthRequired(), auth.Me)
	api.GET("/posts", posts.ListPosts)
	api.GET("/users/:id/posts", posts.ListUserPosts)

	protected := api.Group("")
	protected.Use(middleware.AuthRequired())
	protected.GET("/posts/:id", posts.GetPost)
	protected.POST("/posts", posts.CreatePost)
	protected.PUT("/posts/:id", posts.UpdatePost)
	protected.DELETE("/posts/:id", posts.DeletePost)
	protected.POST("/posts/:id/comments", posts.CreateComment)

	return r, db
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Notice  string          `json:"notice"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

// registerUser registers an account and returns its session token.
func registerUser(t *testing.T, r http.Handler, name, email string) string {
	t.Helper()

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":     name,
		"email":    email,
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	require.NotEmpty(t, data.Token)
	return data.Token
}

func TestRegisterCreatesUserAndAuthenticates(t *testing.T) {
	r, db := newTestServer(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":     "Alice",
		"email":    "alice@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// the response carries a session cookie
	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookieName {
			sessionCookie = c
		}
	}
	require.NotNil(t, sessionCookie)
	assert.NotEmpty(t, sessionCookie.Value)
	assert.True(t, sessionCookie.HttpOnly)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	var user models.User
	require.NoError(t, db.Where("email = ?", "alice@example.com").First(&user).Error)
	assert.Equal(t, "Alice", user.Name)
	assert.NotEqual(t, "secret123", user.PasswordHash)

	// and the token works against a guarded route
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	me := doJSON(t, r, http.MethodGet, "/api/v1/auth/me", data.Token, nil)
	assert.Equal(t, http.StatusOK, me.Code)
}

func TestFirstUserBecomesAdmin(t *testing.T) {
	r, db := newTestServer(t)

	registerUser(t, r, "Alice", "alice@example.com")
	registerUser(t, r, "Bob", "bob@example.com")

	var alice, bob models.User
	require.NoError(t, db.Where("email = ?", "alice@example.com").First(&alice).Error)
	require.NoError(t, db.Where("email = ?", "bob@example.com").First(&bob).Error)

	assert.Equal(t, models.RoleAdmin, alice.Role)
	assert.True(t, alice.IsAdmin())
	assert.Equal(t, models.RoleMember, bob.Role)
	assert.False(t, bob.IsAdmin())
}

// simultaneous first registrations must still produce exactly one admin
func TestConcurrentRegistrationsSingleAdmin(t *testing.T) {
	r, db := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf(`{"name":"User %d","email":"user%d@example.com","password":"secret123"}`, i, i)
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			r.ServeHTTP(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	var admins int64
	require.NoError(t, db.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error)
	assert.EqualValues(t, 1, admins)

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.EqualValues(t, 4, users)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	r, db := newTestServer(t)

	registerUser(t, r, "Alice", "alice@example.com")

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"name":     "Impostor",
		"email":    "alice@example.com",
		"password": "different456",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "user already exists", decodeEnvelope(t, w).Message)

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRegisterValidatesPayload(t *testing.T) {
	r, _ := newTestServer(t)

	cases := []gin.H{
		{"name": "Alice", "email": "not-an-email", "password": "secret123"},
		{"name": "Alice", "email": "alice@example.com", "password": "short"},
		{"email": "alice@example.com", "password": "secret123"},
		{"name": "   ", "email": "alice@example.com", "password": "secret123"},
	}
	for _, body := range cases {
		w := doJSON(t, r, http.MethodPost, "/api/v1/auth/register", "", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, "payload %v", body)
	}
}

func TestLoginFlows(t *testing.T) {
	r, _ := newTestServer(t)
	registerUser(t, r, "Alice", "alice@example.com")

	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusOK, w.Code)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w).Data, &data))
	assert.NotEmpty(t, data.Token)

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "alice@example.com",
		"password": "wrong-password",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Password is Incorrect!", decodeEnvelope(t, w).Message)

	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email":    "nobody@example.com",
		"password": "secret123",
	})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "User Not Found!", decodeEnvelope(t, w).Message)
}

func TestLogoutRevokesSession(t *testing.T) {
	r, _ := newTestServer(t)
	token := registerUser(t, r, "Alice", "alice@example.com")

	me := doJSON(t, r, http.MethodGet, "/api/v1/auth/me", token, nil)
	require.Equal(t, http.StatusOK, me.Code)

	out := doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	require.Equal(t, http.StatusOK, out.Code)

	me = doJSON(t, r, http.MethodGet, "/api/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusUnauthorized, me.Code)
}

func TestLogoutIsIdempotent(t *testing.T) {
	r, _ := newTestServer(t)

	// no session at all
	w := doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// twice in a row with the same token
	token := registerUser(t, r, "Alice", "alice@example.com")
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doJSON(t, r, http.MethodPost, "/api/v1/auth/logout", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGuardedRoutesRejectAnonymous(t *testing.T) {
	r, _ := newTestServer(t)

	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/v1/auth/me"},
		{http.MethodGet, "/api/v1/posts/1"},
		{http.MethodPost, "/api/v1/posts"},
		{http.MethodPut, "/api/v1/posts/1"},
		{http.MethodDelete, "/api/v1/posts/1"},
		{http.MethodPost, "/api/v1/posts/1/comments"},
	} {
		w := doJSON(t, r, route.method, route.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "%s %s", route.method, route.path)
	}
}
