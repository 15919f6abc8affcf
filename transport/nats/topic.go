package nats

import (
	"github.com/nats-io/nats.go/micro"

	"vecstore"
)

func AddEndpoints(group micro.Group, endpoints vecstore.EndpointSet) {
	group.AddEndpoint("add_item", AddItemHandler(endpoints.AddItem))
	group.AddEndpoint("add_user", AddUserHandler(endpoints.AddUser))
	group.AddEndpoint("update_user", UpdateUserHandler(endpoints.UpdateUser))
	group.AddEndpoint("get_user", GetUserHandler(endpoints.GetUser))
	group.AddEndpoint("find_similar_to_user", FindSimilarToUserHandler(endpoints.FindSimilarToUser))
	group.AddEndpoint("search", SearchHandler(endpoints.Search))
	group.AddEndpoint("backup", BackupHandler(endpoints.Backup))
	group.AddEndpoint("restore", RestoreHandler(endpoints.Restore))
	group.AddEndpoint("verify_backup", VerifyBackupHandler(endpoints.VerifyBackup))
	group.AddEndpoint("list_backups", ListBackupsHandler(endpoints.ListBackups))
	group.AddEndpoint("cleanup_backups", CleanupBackupsHandler(endpoints.CleanupBackups))
}
