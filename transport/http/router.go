package http

import (
	"github.com/gin-gonic/gin"

	"vecstore"
)

func AddRouters(r *gin.Engine, endpoints vecstore.EndpointSet, svc vecstore.Service) {
	r.GET("/health", HealthHandler(svc))

	api := r.Group("/api")
	{
		api.POST("/users", AddUserHandler(endpoints.AddUser))
		api.PUT("/users/:user_id", UpdateUserHandler(endpoints.UpdateUser))
		api.GET("/users/:user_id", GetUserHandler(endpoints.GetUser))

		api.POST("/recommendations", FindSimilarToUserHandler(endpoints.FindSimilarToUser))
		api.POST("/search", SearchHandler(endpoints.Search))
		api.POST("/content/vectorize", AddItemHandler(endpoints.AddItem))

		api.POST("/backups", BackupHandler(endpoints.Backup))
		api.GET("/backups", ListBackupsHandler(endpoints.ListBackups))
		api.POST("/backups/cleanup", CleanupBackupsHandler(endpoints.CleanupBackups))
		api.POST("/backups/:backup_id/restore", RestoreHandler(endpoints.Restore))
		api.GET("/backups/:backup_id/verify", VerifyBackupHandler(endpoints.VerifyBackup))
	}
}
