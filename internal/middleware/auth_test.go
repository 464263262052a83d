package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"mwork_messaging/internal/auth"
	"mwork_messaging/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "middleware_test_secret"

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	auth.Init(testSecret, 0)

	r := gin.New()
	r.Use(middleware.RequestIDMiddleware())
	chain := append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": middleware.GetUserID(c),
			"role":    middleware.GetRole(c),
		})
	})
	r.GET("/whoami", chain...)
	return r
}

func doRequest(r http.Handler, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	r := newRouter(middleware.AuthMiddleware())

	token, err := auth.GenerateToken("user-1", auth.RoleCandidate)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{name: "без заголовка", header: "", status: http.StatusUnauthorized},
		{name: "без Bearer", header: token, status: http.StatusUnauthorized},
		{name: "мусорный токен", header: "Bearer not-a-jwt", status: http.StatusUnauthorized},
		{name: "валидный токен", header: "Bearer " + token, status: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(r, tt.header)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := doRequest(r, "Bearer "+token)
	assert.Contains(t, rec.Body.String(), `"user_id":"user-1"`)
	assert.Contains(t, rec.Body.String(), `"role":"candidate"`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestAuthMiddleware_RejectsForeignSecret(t *testing.T) {
	auth.Init("another_secret", 0)
	foreign, err := auth.GenerateToken("user-1", auth.RoleAdmin)
	require.NoError(t, err)

	r := newRouter(middleware.AuthMiddleware())
	rec := doRequest(r, "Bearer "+foreign)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePermission(t *testing.T) {
	r := newRouter(middleware.AuthMiddleware(), middleware.RequirePermission(auth.PermissionNotificationsDispatch))

	cases := map[string]int{
		auth.RoleCandidate: http.StatusForbidden,
		auth.RoleEmployer:  http.StatusForbidden,
		auth.RoleAdmin:     http.StatusOK,
		auth.RoleSystem:    http.StatusOK,
	}
	for role, status := range cases {
		token, err := auth.GenerateToken("user-"+role, role)
		require.NoError(t, err)
		rec := doRequest(r, "Bearer "+token)
		assert.Equal(t, status, rec.Code, "role %s", role)
	}
}

func TestRequireRoles(t *testing.T) {
	r := newRouter(middleware.AuthMiddleware(), middleware.RequireRoles(auth.RoleEmployer))

	token, err := auth.GenerateToken("user-1", auth.RoleCandidate)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, doRequest(r, "Bearer "+token).Code)

	token, err = auth.GenerateToken("user-2", auth.RoleEmployer)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, doRequest(r, "Bearer "+token).Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	r := newRouter()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestPermissionsMatrix(t *testing.T) {
	assert.True(t, auth.HasPermission(auth.RoleCandidate, auth.PermissionMessagingUse))
	assert.True(t, auth.HasPermission(auth.RoleEmployer, auth.PermissionNotificationsRead))
	assert.False(t, auth.HasPermission(auth.RoleSystem, auth.PermissionMessagingUse))
	assert.False(t, auth.HasPermission("guest", auth.PermissionNotificationsRead))
	assert.Error(t, auth.ValidateRole("guest"))
	assert.NoError(t, auth.ValidateRole(auth.RoleSystem))
}
