// Package httpapi wires the worker's ops HTTP surface: health and readiness
// probes plus the Prometheus scrape endpoint. The pipeline has no public
// message API; webhook ingress is an external collaborator that talks to the
// queue, so this router carries observability traffic only.
//
// Middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Logger: structured access logs
//  4. Recovery: capture panics after logger
//  5. Metrics
//  6. gzip and CORS
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/convoflow/go-message-pipeline/internal/config"
	"github.com/convoflow/go-message-pipeline/internal/faststore"
	"github.com/convoflow/go-message-pipeline/internal/http/middleware"
)

// readyTimeout bounds each dependency probe on /readyz.
const readyTimeout = 2 * time.Second

// RegisterRoutes attaches the ops middleware and endpoints to the engine.
// All dependencies are injected; the router owns none of their lifecycles.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, store faststore.Store, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger())
	r.Use(middleware.Recovery())
	r.Use(middleware.Metrics())
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders:   []string{"X-Request-ID", "Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"code": "not_found", "message": "route not found"})
	})
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"code": "method_not_allowed", "message": "method not allowed"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Liveness: the process is up and serving.
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: both stores are reachable.
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), readyTimeout)
		defer cancel()

		checks := gin.H{"database": "ok", "faststore": "ok"}
		ready := true

		if sqlDB, err := db.DB(); err != nil {
			checks["database"] = err.Error()
			ready = false
		} else if err := sqlDB.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			ready = false
		}
		if err := store.Ping(ctx); err != nil {
			checks["faststore"] = err.Error()
			ready = false
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
			middleware.LoggerFrom(c).Warn().Interface("checks", checks).Msg("readiness probe failed")
		}
		c.JSON(status, gin.H{"ready": ready, "checks": checks})
	})
}
