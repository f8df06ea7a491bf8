package router

import (
	"context"
	"net/http"
	"time"

	"github.com/cuongbtq/meeting-jobs/internal/api/handler"
	"github.com/gin-gonic/gin"
)

const healthCheckTimeout = 3 * time.Second

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", healthHandler(deps))

	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		// POST /api/v1/events - Accept a trigger event
		v1.POST("/events", jobHandler.CreateEvent)

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List job instances with pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:instance_id - Instance with its step ledger
			jobs.GET("/:instance_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:instance_id/redispatch - Queue the stored trigger again
			jobs.POST("/:instance_id/redispatch", jobHandler.RedispatchJob)
		}
	}

	return r
}

func healthHandler(deps *handler.Dependencies) gin.HandlerFunc {
	service := deps.ServiceName
	if service == "" {
		service = "job-api-service"
	}

	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
		defer cancel()

		checks := make(map[string]string, len(deps.HealthChecks))
		healthy := true
		for name, check := range deps.HealthChecks {
			if err := check(ctx); err != nil {
				checks[name] = err.Error()
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		status, code := "healthy", http.StatusOK
		if !healthy {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}

		c.JSON(code, gin.H{
			"status":  status,
			"service": service,
			"checks":  checks,
		})
	}
}
