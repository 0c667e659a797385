package planeserver

import (
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"reelmill/internal/controlplane"
	"reelmill/internal/logging"
	"reelmill/internal/planestore"
	"reelmill/internal/services"
)

const (
	ctxDaemonID  = "daemon_id"
	ctxRequestID = "request_id"
	ctxAdmin     = "admin_subject"
)

// Config configures the HTTP API.
type Config struct {
	// Password is the shared daemon secret.
	Password string
	// AdminSecret signs operator tokens.
	AdminSecret string
	// ObjectDir stores uploaded artifacts.
	ObjectDir string
	// PublicURL prefixes object URLs; empty derives it from the request.
	PublicURL string
	Version   string
}

// Server is the control-plane API.
type Server struct {
	store  *planestore.Store
	cfg    Config
	logger *slog.Logger
	router *gin.Engine
}

// New builds the API and its routes.
func New(store *planestore.Store, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	s := &Server{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "plane-api"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/health", s.health)
	router.GET("/storage/objects/*path", s.serveObject)

	daemon := router.Group("/")
	daemon.Use(s.daemonAuth())
	daemon.GET("/jobs/queue", s.queuedJobs)
	daemon.GET("/jobs/exists", s.jobExists)
	daemon.POST("/jobs", s.createJob)
	daemon.POST("/jobs/:id/claim", s.claimJob)
	daemon.POST("/jobs/:id/status", s.jobStatus)
	daemon.GET("/projects/eligible", s.eligibleProjects)
	daemon.GET("/projects/:id", s.getProject)
	daemon.GET("/projects/:id/creation-snapshot", s.creationSnapshot)
	daemon.GET("/projects/:id/script", s.getScript)
	daemon.POST("/projects/:id/script", s.saveScript)
	daemon.POST("/projects/:id/status", s.projectStatus)
	daemon.GET("/projects/:id/language-progress", s.getProgress)
	daemon.POST("/projects/:id/language-progress", s.saveProgress)
	daemon.GET("/projects/:id/assets", s.listAssets)
	daemon.POST("/projects/:id/assets", s.registerAsset)
	daemon.GET("/projects/:id/history", s.history)
	daemon.POST("/storage/upload", s.upload)

	admin := router.Group("/admin")
	admin.Use(s.adminAuth())
	admin.GET("/projects", s.listProjects)
	admin.POST("/projects", s.createProject)
	admin.POST("/projects/:id/rollback", s.rollback)
	admin.POST("/projects/:id/approve", s.approve)

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) health(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, controlplane.HealthResponse{Status: "degraded", Version: s.cfg.Version})
		return
	}
	c.JSON(http.StatusOK, controlplane.HealthResponse{Status: "ok", Version: s.cfg.Version})
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(controlplane.HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ctxRequestID, requestID)
		c.Header(controlplane.HeaderRequestID, requestID)
		c.Next()

		attrs := []logging.Attr{
			logging.String("method", c.Request.Method),
			logging.String("path", c.FullPath()),
			logging.Int("status", c.Writer.Status()),
			logging.Duration("duration", time.Since(start)),
			logging.String(logging.FieldCorrelationID, requestID),
		}
		if daemonID := c.GetString(ctxDaemonID); daemonID != "" {
			attrs = append(attrs, logging.String(logging.FieldDaemonID, daemonID))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", logging.Args(attrs...)...)
			return
		}
		s.logger.Debug("request served", logging.Args(attrs...)...)
	}
}

func (s *Server) daemonAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		password := c.GetHeader(controlplane.HeaderPassword)
		if s.cfg.Password == "" || subtle.ConstantTimeCompare([]byte(password), []byte(s.cfg.Password)) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, controlplane.ErrorResponse{Error: "invalid daemon password", Code: controlplane.CodeAuth})
			return
		}
		daemonID := strings.TrimSpace(c.GetHeader(controlplane.HeaderDaemonID))
		if daemonID == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, controlplane.ErrorResponse{Error: "missing " + controlplane.HeaderDaemonID + " header", Code: controlplane.CodeAuth})
			return
		}
		c.Set(ctxDaemonID, daemonID)
		c.Next()
	}
}

func (s *Server) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, controlplane.ErrorResponse{Error: "missing bearer token", Code: controlplane.CodeAuth})
			return
		}
		claims, err := controlplane.ParseAdminToken(s.cfg.AdminSecret, strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, controlplane.ErrorResponse{Error: "invalid admin token: " + err.Error(), Code: controlplane.CodeAuth})
			return
		}
		c.Set(ctxAdmin, claims.Subject)
		c.Next()
	}
}

// fail writes err with the status matching its classification.
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := ""
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrConflict):
		status = http.StatusForbidden
		code = controlplane.CodeOwnership
	case errors.Is(err, services.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request error",
			logging.String("path", c.FullPath()),
			logging.String(logging.FieldCorrelationID, c.GetString(ctxRequestID)),
			logging.Error(err))
	}
	c.JSON(status, controlplane.ErrorResponse{Error: err.Error(), Code: code})
}

func (s *Server) badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, controlplane.ErrorResponse{Error: message})
}

func queryLimit(c *gin.Context, fallback int) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return fallback
	}
	return min(limit, 500)
}
