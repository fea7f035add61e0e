package api

import (
	"github.com/gin-gonic/gin"
	"github.com/timmy/harvester/internal/api/handler"
	"github.com/timmy/harvester/internal/api/middleware"
	"github.com/timmy/harvester/internal/logger"
)

// RouterDeps are the collaborators of the admin API.
type RouterDeps struct {
	Runs        handler.RunService
	History     handler.RunLister   // optional
	Entries     handler.EntryLister // optional
	Checks      map[string]handler.Pinger
	CORSOrigins []string
	Logger      *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, mode string) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}))

	healthHandler := handler.NewHealthHandler(deps.Checks)
	runHandler := handler.NewRunHandler(deps.Runs, deps.History)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Runs
		v1.POST("/runs", runHandler.TriggerRun)
		v1.GET("/runs/status", runHandler.GetStatus)
		v1.GET("/runs", runHandler.ListRuns)

		// Research entries
		if deps.Entries != nil {
			v1.GET("/entries", handler.NewResearchHandler(deps.Entries).ListTop)
		}
	}

	return r
}
