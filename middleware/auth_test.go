package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/quill/models"
	"github.com/quillworks/quill/utils"
)

func TestMain(m *testing.M) {
	os.Setenv("JWT_SECRET", "middleware-test-secret")
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func guardedRouter() *gin.Engine {
	r := gin.New()
	r.GET("/guarded", AuthRequired(), func(ctx *gin.Context) {
		id := ctx.GetUint(ContextUserIDKey)
		name := ctx.GetString(ContextDisplayNameKey)
		role := ctx.GetString(ContextRoleKey)
		ctx.JSON(http.StatusOK, gin.H{"id": id, "name": name, "role": role})
	})
	return r
}

func TestAuthRequiredAcceptsBearerToken(t *testing.T) {
	r := guardedRouter()
	token, err := utils.GenerateToken(3, "Carol", models.RoleMember, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"name":"Carol"`)
	assert.Contains(t, w.Body.String(), `"role":"member"`)
}

func TestAuthRequiredAcceptsSessionCookie(t *testing.T) {
	r := guardedRouter()
	token, err := utils.GenerateToken(3, "Carol", models.RoleMember, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthRequiredRejectsAnonymous(t *testing.T) {
	r := guardedRouter()

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthRequiredRejectsMalformedHeader(t *testing.T) {
	r := guardedRouter()

	for _, header := range []string{"Bearer", "Basic abc", "garbage"} {
		req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestAuthRequiredRejectsRevokedToken(t *testing.T) {
	r := guardedRouter()
	token, err := utils.GenerateToken(3, "Carol", models.RoleMember, time.Hour)
	require.NoError(t, err)

	utils.BlacklistToken(token, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
