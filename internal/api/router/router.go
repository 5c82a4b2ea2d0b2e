package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/glebkhr/vk-group-builder/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, corsOrigin string) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware(corsOrigin))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "group-builder-api",
		})
	})

	groupHandler := handler.NewGroupHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		oauth := v1.Group("/oauth")
		{
			// POST /api/v1/oauth/init - Validate the intake form and start the OAuth flow
			oauth.POST("/init", groupHandler.InitOAuth)

			// GET /api/v1/oauth/callback - Exchange the code and enqueue provisioning
			oauth.GET("/callback", groupHandler.OAuthCallback)
		}

		groups := v1.Group("/groups")
		{
			// GET /api/v1/groups/:id/status - Poll provisioning progress
			groups.GET("/:id/status", groupHandler.GetStatus)

			// DELETE /api/v1/groups/:id/revoke - Retire a provisioned group
			groups.DELETE("/:id/revoke", groupHandler.RevokeGroup)
		}

		students := v1.Group("/students")
		{
			// GET /api/v1/students/:student_id/groups - List a student's groups
			students.GET("/:student_id/groups", groupHandler.ListStudentGroups)
		}
	}

	return r
}
