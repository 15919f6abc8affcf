package vecstore

import (
	"context"
	"errors"

	"github.com/go-kit/kit/endpoint"
)

type EndpointSet struct {
	AddItem           endpoint.Endpoint
	AddUser           endpoint.Endpoint
	UpdateUser        endpoint.Endpoint
	GetUser           endpoint.Endpoint
	FindSimilarToUser endpoint.Endpoint
	Search            endpoint.Endpoint
	Backup            endpoint.Endpoint
	Restore           endpoint.Endpoint
	VerifyBackup      endpoint.Endpoint
	ListBackups       endpoint.Endpoint
	CleanupBackups    endpoint.Endpoint
}

func NewEndpointSet(svc Service) EndpointSet {
	return EndpointSet{
		AddItem:           AddItemEndpoint(svc),
		AddUser:           AddUserEndpoint(svc),
		UpdateUser:        UpdateUserEndpoint(svc),
		GetUser:           GetUserEndpoint(svc),
		FindSimilarToUser: FindSimilarToUserEndpoint(svc),
		Search:            SearchEndpoint(svc),
		Backup:            BackupEndpoint(svc),
		Restore:           RestoreEndpoint(svc),
		VerifyBackup:      VerifyBackupEndpoint(svc),
		ListBackups:       ListBackupsEndpoint(svc),
		CleanupBackups:    CleanupBackupsEndpoint(svc),
	}
}

type AddItemRequest struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata,omitempty"`
}

func AddItemEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(AddItemRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.AddItem(ctx, req.ID, req.Text, req.Metadata)
		return nil, err
	}
}

func AddUserEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		profile, ok := request.(UserProfile)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.AddUser(ctx, profile)
		return nil, err
	}
}

func UpdateUserEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		profile, ok := request.(UserProfile)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.UpdateUser(ctx, profile)
		return nil, err
	}
}

func GetUserEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		userID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		user, err := svc.GetUser(ctx, userID)
		if err != nil {
			return nil, err
		}

		if user == nil {
			return nil, ErrUserNotFound
		}

		return user, nil
	}
}

type FindSimilarRequest struct {
	UserID       string   `json:"user_id"`
	ContentTypes []string `json:"content_types,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

func FindSimilarToUserEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(FindSimilarRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.FindSimilarToUser(ctx, req.UserID, req.ContentTypes, req.Limit)
	}
}

func SearchEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(SearchRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.Search(ctx, req)
	}
}

type BackupRequest struct {
	BackupID string `json:"backup_id,omitempty"`
	Upload   bool   `json:"upload,omitempty"`
}

type BackupResponse struct {
	BackupID string `json:"backup_id"`
}

func BackupEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(BackupRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		id, err := svc.Backup(ctx, req.BackupID, req.Upload)
		if err != nil {
			return nil, err
		}

		return BackupResponse{BackupID: id}, nil
	}
}

type RestoreRequest struct {
	BackupID string `json:"backup_id"`
	Download bool   `json:"download,omitempty"`
}

func RestoreEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(RestoreRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		err := svc.Restore(ctx, req.BackupID, req.Download)
		return nil, err
	}
}

func VerifyBackupEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		backupID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		return svc.VerifyBackup(ctx, backupID)
	}
}

func ListBackupsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		return svc.ListBackups(ctx)
	}
}

type CleanupRequest struct {
	RetainDays    int `json:"retain_days"`
	RetainWeekly  int `json:"retain_weekly"`
	RetainMonthly int `json:"retain_monthly"`
}

type CleanupResponse struct {
	Deleted int `json:"deleted"`
}

func CleanupBackupsEndpoint(svc Service) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(CleanupRequest)
		if !ok {
			return nil, errors.New("invalid request type")
		}

		deleted, err := svc.CleanupOldBackups(ctx, req.RetainDays, req.RetainWeekly, req.RetainMonthly)
		if err != nil {
			return nil, err
		}

		return CleanupResponse{Deleted: deleted}, nil
	}
}
