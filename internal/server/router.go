package server

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/lecturelens-backend/internal/handlers"
)

type RouterConfig struct {
	TaskHandler *handlers.TaskHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{
			"http://localhost:80",
			"http://localhost:3000",
			"http://localhost:5174",
		},
		AllowMethods:     []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")
	{
		api.POST("/tasks", cfg.TaskHandler.CreateTask)
		api.GET("/tasks", cfg.TaskHandler.ListTasks)
		api.GET("/tasks/:id/status", cfg.TaskHandler.GetTaskStatus)
		api.GET("/tasks/:id/events", cfg.TaskHandler.StreamTaskEvents)
		api.GET("/tasks/:id/document", cfg.TaskHandler.DownloadDocument)
		api.DELETE("/tasks/:id", cfg.TaskHandler.DeleteTask)
	}

	return router
}
