package api

import (
	"github.com/gin-gonic/gin"
	"github.com/portfoliolens/sheetload/internal/api/handler"
	"github.com/portfoliolens/sheetload/internal/api/middleware"
	"github.com/portfoliolens/sheetload/internal/config"
	"github.com/portfoliolens/sheetload/internal/logger"
)

// SetupRouter configures the Gin router with all routes
func SetupRouter(
	imports *handler.ImportHandler,
	health *handler.HealthHandler,
	cfg *config.ServerConfig,
	log *logger.Logger,
) *gin.Engine {
	// Set Gin mode
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	// Add middleware
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	// Health check
	r.GET("/health", health.Health)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.POST("/imports", imports.CreateImport)
		v1.GET("/imports/:id", imports.GetImport)
		v1.GET("/imports/:id/sheets", imports.ListSheets)
		v1.POST("/imports/:id/process", imports.ProcessImport)
		v1.POST("/imports/:id/cancel", imports.CancelImport)
	}

	return r
}
