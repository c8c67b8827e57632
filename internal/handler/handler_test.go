package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulse-chat/internal/domain/user"
	"pulse-chat/internal/middleware"
	"pulse-chat/internal/repository"
	"pulse-chat/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

type testAPI struct {
	router   *gin.Engine
	auth     *services.AuthService
	messages *services.MessageService
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := repository.NewMemoryUserRepository()
	messages := repository.NewMemoryMessageRepository(users)
	auth := services.NewAuthService(users, "test-secret", time.Hour)

	authHandler := NewAuthHandler(auth)
	userHandler := NewUserHandler(services.NewUserService(users, nil))
	analyticsHandler := NewAnalyticsHandler(services.NewStatsService(users, messages))

	r := gin.New()
	api := r.Group("/api")
	api.POST("/auth/register", authHandler.Register)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("/users", middleware.AuthMiddleware(auth))
	protected.GET("", userHandler.List)
	protected.GET("/:id", userHandler.Get)
	protected.PUT("/:id", userHandler.Update)
	protected.DELETE("/:id", userHandler.Delete)
	protected.POST("/:id/avatar", userHandler.AvatarUpload)

	api.GET("/analytics/stats", analyticsHandler.Stats)
	api.GET("/analytics/messages", analyticsHandler.Messages)

	return &testAPI{router: r, auth: auth, messages: services.NewMessageService(messages)}
}

func (a *testAPI) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, envelope) {
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
	a.router.ServeHTTP(w, req)

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func (a *testAPI) register(t *testing.T, username string) map[string]string {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out map[string]string
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

func TestAuthHandler_RegisterAndLogin(t *testing.T) {
	api := newTestAPI(t)
	reg := api.register(t, "alice")
	assert.NotEmpty(t, reg["id"])
	assert.Equal(t, "alice", reg["username"])
	assert.Equal(t, "alice@example.com", reg["email"])
	assert.NotEmpty(t, reg["token"])

	w, env := api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, env.Success)

	w, env = api.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "alice@example.com", "password": "wrong-one"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, env.Success)
	assert.Equal(t, "UNAUTHORIZED", env.Code)
}

func TestAuthHandler_RegisterErrors(t *testing.T) {
	api := newTestAPI(t)
	api.register(t, "alice")

	w, env := api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "secret1",
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CONFLICT", env.Code)

	w, env = api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, env.Success)

	w, _ = api.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "bob", "email": "bob@example.com", "password": "123",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUserHandler_CRUD(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	bob := api.register(t, "bob")

	w, _ := api.do(t, http.MethodGet, "/api/users", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := api.do(t, http.MethodGet, "/api/users", alice["token"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Users []map[string]any `json:"users"`
		Total int64            `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)

	w, _ = api.do(t, http.MethodGet, "/api/users/"+bob["id"], alice["token"], nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/users/not-a-uuid", alice["token"], nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = api.do(t, http.MethodGet, "/api/users/"+uuid.NewString(), alice["token"], nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env = api.do(t, http.MethodPut, "/api/users/"+alice["id"], alice["token"], map[string]string{"username": "alicia"})
	require.Equal(t, http.StatusOK, w.Code)
	var updated map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &updated))
	assert.Equal(t, "alicia", updated["username"])

	w, env = api.do(t, http.MethodPut, "/api/users/"+bob["id"], alice["token"], map[string]string{"username": "mallory"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Code)

	w, _ = api.do(t, http.MethodDelete, "/api/users/"+bob["id"], alice["token"], nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = api.do(t, http.MethodDelete, "/api/users/"+bob["id"], bob["token"], nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = api.do(t, http.MethodPost, "/api/users/"+alice["id"]+"/avatar", alice["token"], map[string]string{"contentType": "image/png"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestUserHandler_ListReportsAppliedPaging(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	api.register(t, "bob")

	w, env := api.do(t, http.MethodGet, "/api/users?page=0&limit=500", alice["token"], nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Users []map[string]any `json:"users"`
		Page  int              `json:"page"`
		Limit int              `json:"limit"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.Equal(t, 1, list.Page)
	assert.Equal(t, 20, list.Limit)
	assert.Len(t, list.Users, 2)
}

func TestAnalyticsHandler(t *testing.T) {
	api := newTestAPI(t)
	alice := api.register(t, "alice")
	api.register(t, "bob")

	w, env := api.do(t, http.MethodGet, "/api/analytics/messages", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(env.Data))

	id := user.Identity{UserID: uuid.MustParse(alice["id"]), Username: "alice"}
	for _, text := range []string{"first", "second", "third"} {
		_, err := api.messages.Send(context.Background(), id, text)
		require.NoError(t, err)
	}

	w, env = api.do(t, http.MethodGet, "/api/analytics/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"totalUsers":2,"totalMessages":3}`, string(env.Data))

	w, env = api.do(t, http.MethodGet, "/api/analytics/messages?limit=2", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var items []struct {
		ID        string `json:"id"`
		Content   string `json:"content"`
		Username  string `json:"username"`
		CreatedAt string `json:"createdAt"`
		User      *struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "third", items[0].Content)
	assert.Equal(t, "second", items[1].Content)
	require.NotNil(t, items[0].User)
	assert.Equal(t, "alice@example.com", items[0].User.Email)

	w, env = api.do(t, http.MethodGet, "/api/analytics/messages?limit=abc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &items))
	assert.Len(t, items, 3)
}
