package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ndquoc/recon-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes.
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "recon-api-service",
					"error":   err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "recon-api-service",
		})
	})

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	toolHandler := handler.NewToolHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	streamHandler := handler.NewStreamHandler(deps)
	resultHandler := handler.NewResultHandler(deps)

	// Tool catalog
	r.GET("/tools", toolHandler.ListTools)

	// Jobs
	jobs := r.Group("/jobs")
	{
		jobs.POST("", jobHandler.CreateJob)
		jobs.GET("", jobHandler.ListJobs)
		jobs.GET("/:job_id", jobHandler.GetJob)
		jobs.GET("/:job_id/stream", streamHandler.StreamJob)
	}

	// Results
	results := r.Group("/results")
	{
		results.GET("", resultHandler.ListResults)
		results.GET("/export", resultHandler.ExportResults)
	}

	return r
}
