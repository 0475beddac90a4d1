package handler

import (
	"net/http"
	"time"

	"aina-notebook/internal/config"
	"aina-notebook/internal/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires every HTTP route. spa may be nil when no frontend build is served.
func NewRouter(cfg *config.Config, presentations *PresentationHandler, gate *AccessGate, spa *SPA) *gin.Engine {
	router := gin.New()

	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	if cfg.Metrics.Enabled {
		router.Use(metrics.Middleware())
	}

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	{
		access := api.Group("/access")
		{
			access.GET("", gate.Status)
			access.POST("", gate.Login)
			access.DELETE("", gate.Logout)
		}

		gated := api.Group("", gate.Middleware())
		{
			gated.GET("/styles", presentations.Styles)
			gated.GET("/generation/status", presentations.Status)

			p := gated.Group("/presentations")
			{
				p.POST("", presentations.Generate)
				p.GET("", presentations.List)
				p.DELETE("", presentations.Clear)
				p.GET("/events", presentations.Events)
				p.GET("/:id", presentations.Get)
				p.GET("/:id/pdf", presentations.PDF)
				p.POST("/:id/slides/:index/retry", presentations.RetrySlide)
			}
		}
	}

	if spa != nil {
		router.NoRoute(spa.Handle)
	}

	return router
}
