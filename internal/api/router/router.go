package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kaushalkrishnax/inflow-backend/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.Database != nil {
			if err := deps.Database.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "scheduler-service",
					"error":   err.Error(),
				})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "scheduler-service",
		})
	})

	// Initialize schedule handler
	scheduleHandler := handler.NewScheduleHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/schedule - Submit content for scheduling or immediate publish
		v1.POST("/schedule", scheduleHandler.ScheduleContent)

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs grouped by content type
			jobs.GET("", scheduleHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job details
			jobs.GET("/:job_id", scheduleHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a scheduled job
			jobs.POST("/:job_id/cancel", scheduleHandler.CancelJob)
		}
	}

	return r
}
