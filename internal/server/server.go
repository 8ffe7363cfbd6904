// Package server exposes the HTTP surface: per-tenant webhook intake,
// internal task endpoints, and health checks.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"telegram-affiliate-bot/internal/config"
	"telegram-affiliate-bot/internal/pkg/db"
	"telegram-affiliate-bot/internal/repository"
	"telegram-affiliate-bot/internal/router"
	"telegram-affiliate-bot/internal/scheduler"
	"telegram-affiliate-bot/internal/service"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

// Server wires the gin engine to the router and task handlers.
type Server struct {
	cfg       *config.ServerConfig
	pool      *db.Pool
	tenants   *repository.TenantRepository
	router    *router.Router
	broadcast *service.BroadcastService

	http *http.Server
}

// New creates a Server with all routes registered.
func New(
	cfg *config.ServerConfig,
	pool *db.Pool,
	tenants *repository.TenantRepository,
	rt *router.Router,
	broadcast *service.BroadcastService,
) *Server {
	s := &Server{
		cfg:       cfg,
		pool:      pool,
		tenants:   tenants,
		router:    rt,
		broadcast: broadcast,
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	engine.GET("/healthz", s.handleHealthz)
	engine.GET("/health", s.handleHealth)
	engine.POST("/webhook", s.handleWebhook)
	engine.POST("/telegram", s.handleWebhook)

	tasks := engine.Group("/task", s.requireTasksSecret)
	tasks.POST("/action", s.handleTaskAction)
	tasks.POST("/broadcast", s.handleTaskBroadcast)

	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// requestLogger emits one structured line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("Starting HTTP server")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.pool.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// handleWebhook resolves the tenant from the out-of-band secret header and
// dispatches the update. The platform retries non-200 responses
// indefinitely, so every outcome answers 200: failed events were already
// logged by the router, and updates with a missing or unknown secret (a
// rotated or deleted tenant) are dropped rather than left to redeliver.
func (s *Server) handleWebhook(c *gin.Context) {
	secret := c.GetHeader(secretHeader)
	if secret == "" {
		log.Warn().Msg("Webhook update without secret token dropped")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	tenant, err := s.tenants.GetByWebhookSecret(c.Request.Context(), secret)
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			log.Warn().Msg("Webhook update with unknown secret token dropped")
		} else {
			log.Error().Err(err).Msg("Failed to resolve tenant for webhook")
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		log.Warn().Err(err).Str("tenant_id", tenant.ID.String()).Msg("Malformed webhook payload")
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	s.router.HandleUpdate(c.Request.Context(), tenant, &update)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// requireTasksSecret guards the internal task endpoints.
func (s *Server) requireTasksSecret(c *gin.Context) {
	if s.cfg.TasksSecret == "" || c.GetHeader("X-Tasks-Secret") != s.cfg.TasksSecret {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

// handleTaskAction replays a deferred task delivered by an external queue
// worker.
func (s *Server) handleTaskAction(c *gin.Context) {
	var task scheduler.Task
	if err := c.ShouldBindJSON(&task); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed task"})
		return
	}

	if err := s.router.ExecuteTask(c.Request.Context(), task); err != nil {
		log.Error().Err(err).Str("key", task.Key).Msg("Task execution failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// handleTaskBroadcast delivers one broadcast batch.
func (s *Server) handleTaskBroadcast(c *gin.Context) {
	var batch service.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed batch"})
		return
	}

	tenantID, err := uuid.Parse(batch.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}
	tenant, err := s.tenants.GetByID(c.Request.Context(), tenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown tenant"})
		return
	}

	s.broadcast.DeliverBatch(c.Request.Context(), tenant, batch)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
