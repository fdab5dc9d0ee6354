package handlers

import (
	"teamdrive/config"
	"teamdrive/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter builds the HTTP API. When metrics are enabled, request metrics
// are registered on reg and exposed on the configured path.
func NewRouter(cfg *config.Config, reg *prometheus.Registry) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())

	if cfg.Metrics.Enabled && reg != nil {
		metrics, err := middleware.Metrics(reg)
		if err != nil {
			return nil, err
		}
		r.Use(metrics)
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	}

	setupRoutes(r, cfg.JWT.Secret)
	return r, nil
}

func setupRoutes(r *gin.Engine, secret string) {
	api := r.Group("/api")

	api.GET("/health", HealthCheck)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(secret))
	{
		protected.GET("/me", GetProfile)

		protected.GET("/files", ListResources)
		protected.GET("/files/:id", RetrieveResource)
		protected.PUT("/files/:id", UpdateResource)
		protected.POST("/files/:id/commit", CommitUpload)
		protected.DELETE("/files/:id", DestroyResource)
		protected.GET("/files/:id/members", GetMembers)
		protected.PUT("/files/:id/members", UpdateMembers)

		protected.GET("/teams", ListTeams)
		protected.POST("/teams", CreateTeam)
		protected.GET("/teams/:id/usage", TeamUsage)
		protected.PUT("/teams/:id/members/:userId", SetMemberMask)
	}
}
