package api

import (
	"net/http"
	"time"

	"bibkeys/internal/auth"
	"bibkeys/internal/config"
	"bibkeys/internal/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewRouter builds the gin engine with logging, CORS and every route mounted.
func NewRouter(cfg config.ServerConfig, logger zerolog.Logger, projectService services.ProjectService, bibtexService services.BibTexService) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(logger))

	if len(cfg.AllowedOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	SetupRoutes(r, cfg, projectService, bibtexService)
	return r
}

func SetupRoutes(r *gin.Engine, cfg config.ServerConfig, projectService services.ProjectService, bibtexService services.BibTexService) {
	api := r.Group("/api", auth.AuthMiddleware(cfg.JWTSecret))
	{
		api.POST("/dedupe", dedupeHandler(bibtexService, cfg.MaxUploadBytes))
		api.POST("/duplicates", duplicatesHandler(bibtexService, cfg.MaxUploadBytes))

		api.GET("/projects", listProjectsHandler(projectService))
		api.POST("/projects", createProjectHandler(projectService))
		api.GET("/projects/:name", getProjectHandler(projectService))
		api.DELETE("/projects/:name", deleteProjectHandler(projectService))
		api.POST("/projects/:name/import", importHandler(bibtexService, cfg.MaxUploadBytes))
		api.GET("/projects/:name/export", exportHandler(bibtexService))
		api.POST("/projects/:name/references", addReferenceHandler(projectService))
		api.GET("/projects/:name/references/:key", getReferenceHandler(projectService))
		api.DELETE("/projects/:name/references/:key", deleteReferenceHandler(projectService))
		api.PUT("/projects/:name/references/:key/file", attachFileHandler(projectService, cfg.MaxUploadBytes))
	}
}

// RequestLogger attaches a request-scoped logger carrying a request id and
// logs one line per request.
func RequestLogger(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		logger := base.With().Str("request_id", requestID).Logger()
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context()))

		start := time.Now()
		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
