package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"telegram-affiliate-bot/internal/config"
)

// The platform redelivers any non-2xx webhook response forever, so an
// update that cannot be attributed to a tenant must still be acknowledged.
func TestWebhookWithoutSecretAnswers200(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := &Server{}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"update_id":1}`))

	s.handleWebhook(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTasksSecretGuard(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newCtx := func(secret string) (*gin.Context, *httptest.ResponseRecorder) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/task/action", nil)
		if secret != "" {
			c.Request.Header.Set("X-Tasks-Secret", secret)
		}
		return c, w
	}

	s := &Server{cfg: &config.ServerConfig{TasksSecret: "s3cret"}}

	c, w := newCtx("s3cret")
	s.requireTasksSecret(c)
	assert.False(t, c.IsAborted())
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newCtx("wrong")
	s.requireTasksSecret(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// An unset secret locks the endpoints entirely.
	s = &Server{cfg: &config.ServerConfig{}}
	c, w = newCtx("")
	s.requireTasksSecret(c)
	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
