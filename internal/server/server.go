package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/newshub/newsdesk/internal/cache"
	"github.com/newshub/newsdesk/internal/config"
	"github.com/newshub/newsdesk/internal/metrics"
	"github.com/newshub/newsdesk/internal/models"
	"github.com/newshub/newsdesk/internal/service"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	Workflow    *service.WorkflowService
	Views       *service.ViewService
	Publisher   *service.ScheduledPublisher
	Notifier    *service.Notifier
	Live        *service.LiveService
	Broadcaster *service.RoomBroadcaster
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Shared dedup cache; its absence degrades to per-process dedup
	redisClient := cache.NewRedisClient(cfg.Cache.RedisAddr)
	if redisClient != nil {
		pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			logger.Warn("Dedup cache unreachable at startup, views deduplicate per process", zap.Error(err))
		}
		cancel()
	}

	window, err := time.ParseDuration(cfg.Cache.DedupWindow)
	if err != nil {
		return nil, fmt.Errorf("invalid dedup window: %w", err)
	}
	deduper := cache.NewViewDeduper(redisClient, window, logger)

	// Initialize services
	media := service.NewHTTPMediaHost(&cfg.Media, logger)
	notifier := service.NewNotifier(db, service.NewHTTPPushDelivery(), logger)
	workflow := service.NewWorkflowService(db, media, notifier, logger)
	views := service.NewViewService(db, deduper, logger)
	publisher := service.NewScheduledPublisher(&cfg.Scheduler, db, logger)
	broadcaster := service.NewRoomBroadcaster()
	live := service.NewLiveService(db, broadcaster, logger)

	// Create router
	router := gin.New()

	// Create server
	srv := &Server{
		Config:      cfg,
		DB:          db,
		Router:      router,
		Logger:      logger,
		Workflow:    workflow,
		Views:       views,
		Publisher:   publisher,
		Notifier:    notifier,
		Live:        live,
		Broadcaster: broadcaster,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Actor-ID, X-Actor-Role")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.Router.Use(metrics.Middleware())
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := s.Router.Group("/api/v1")
	{
		articles := api.Group("/articles")
		{
			articles.POST("", s.handleCreateArticle)
			articles.GET("/:id", s.handleGetArticle)
			articles.PUT("/:id", s.handleUpdateArticle)
			articles.POST("/:id/approve", s.handleApproveArticle)
			articles.POST("/:id/reject", s.handleRejectArticle)
			articles.DELETE("/:id", s.handleSoftDeleteArticle)
			articles.POST("/:id/restore", s.handleRestoreArticle)
			articles.DELETE("/:id/purge", s.handleHardDeleteArticle)
		}

		api.GET("/recycle-bin", s.handleRecycleBin)
		api.POST("/subscriptions", s.handleSubscribe)

		live := api.Group("/live")
		{
			live.POST("/:event/entries", s.handleAddLiveEntry)
			live.GET("/:event/stream", s.handleLiveStream)
		}
	}
}

// actor returns the acting user's id and role, set upstream by the auth
// layer.
func actor(c *gin.Context) (uint, models.Role) {
	id, _ := strconv.ParseUint(c.GetHeader("X-Actor-ID"), 10, 32)
	role := models.Role(c.GetHeader("X-Actor-Role"))
	if role == "" {
		role = models.RoleContributor
	}
	return uint(id), role
}

func (s *Server) handleCreateArticle(c *gin.Context) {
	var in service.CreateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	actorID, role := actor(c)
	article, err := s.Workflow.Create(c.Request.Context(), in, actorID, role)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"id":     article.ID,
		"slug":   article.Slug,
		"title":  article.Title,
		"status": article.Status,
	})
}

func (s *Server) handleGetArticle(c *gin.Context) {
	article, err := s.Workflow.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderError(c, err)
		return
	}

	actorID, _ := actor(c)
	views, err := s.Views.Record(c.Request.Context(), article, service.Visitor{
		UserID:    actorID,
		RemoteIP:  c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		s.Logger.Error("Failed to record view", zap.Uint("article_id", article.ID), zap.Error(err))
	} else {
		article.Views = views
	}

	c.JSON(http.StatusOK, article)
}

func (s *Server) handleUpdateArticle(c *gin.Context) {
	var in service.UpdateInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	actorID, _ := actor(c)
	article, err := s.Workflow.Update(c.Request.Context(), c.Param("id"), in, actorID)
	if err != nil {
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":      article.ID,
		"slug":    article.Slug,
		"title":   article.Title,
		"status":  article.Status,
		"version": article.Version,
	})
}

func (s *Server) handleApproveArticle(c *gin.Context) {
	_, role := actor(c)
	article, err := s.Workflow.Approve(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleRejectArticle(c *gin.Context) {
	_, role := actor(c)
	article, err := s.Workflow.Reject(c.Request.Context(), c.Param("id"), role)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, article)
}

func (s *Server) handleSoftDeleteArticle(c *gin.Context) {
	if err := s.Workflow.SoftDelete(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "article moved to recycle bin"})
}

func (s *Server) handleRestoreArticle(c *gin.Context) {
	if err := s.Workflow.Restore(c.Request.Context(), c.Param("id")); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "article restored"})
}

func (s *Server) handleHardDeleteArticle(c *gin.Context) {
	_, role := actor(c)
	if err := s.Workflow.HardDelete(c.Request.Context(), c.Param("id"), role); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "article permanently deleted"})
}

func (s *Server) handleRecycleBin(c *gin.Context) {
	articles, err := s.Workflow.RecycleBin(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles})
}

func (s *Server) handleSubscribe(c *gin.Context) {
	var sub models.PushSubscription
	if err := c.ShouldBindJSON(&sub); err != nil || sub.Endpoint == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid subscription"})
		return
	}
	if err := s.Notifier.Subscribe(c.Request.Context(), &sub); err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sub.ID})
}

func (s *Server) handleAddLiveEntry(c *gin.Context) {
	var entry models.LiveEntry
	if err := c.ShouldBindJSON(&entry); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	created, err := s.Live.AddEntry(c.Request.Context(), c.Param("event"), &entry)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

func (s *Server) handleLiveStream(c *gin.Context) {
	room := c.Param("event")
	ch := s.Broadcaster.Subscribe(room)
	defer s.Broadcaster.Unsubscribe(room, ch)

	c.Stream(func(w io.Writer) bool {
		select {
		case update := <-ch:
			c.SSEvent("entry", update)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// renderError maps workflow errors onto HTTP statuses.
func (s *Server) renderError(c *gin.Context, err error) {
	var vErrs validation.Errors
	switch {
	case errors.As(err, &vErrs):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotDeleted), errors.Is(err, service.ErrAlreadyDeleted):
		c.JSON(http.StatusPreconditionFailed, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	default:
		s.Logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start scheduled publisher
	if err := s.Publisher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduled publisher: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop the scheduled publisher first
	s.Publisher.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
