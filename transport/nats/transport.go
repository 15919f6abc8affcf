package nats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go/micro"

	"vecstore"
)

// errorCode mirrors the HTTP transport's status mapping so callers see
// the same classification over either transport.
func errorCode(err error) string {
	switch {
	case errors.Is(err, vecstore.ErrUserNotFound),
		errors.Is(err, vecstore.ErrBackupNotFound):
		return "404"
	case errors.Is(err, vecstore.ErrInvalidUserWeight),
		errors.Is(err, vecstore.ErrInvalidRetention),
		errors.Is(err, vecstore.ErrDimensionMismatch),
		errors.Is(err, vecstore.ErrObjectStorageNotSet):
		return "400"
	case errors.Is(err, vecstore.ErrNotInitialized):
		return "503"
	default:
		return "417"
	}
}

func AddItemHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req vecstore.AddItemRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		_, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func AddUserHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var profile vecstore.UserProfile
		if err := json.Unmarshal(r.Data(), &profile); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		_, err := endpoint(ctx, profile)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func UpdateUserHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var profile vecstore.UserProfile
		if err := json.Unmarshal(r.Data(), &profile); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		_, err := endpoint(ctx, profile)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func GetUserHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		userID := string(r.Data())
		if userID == "" {
			r.Error("400", "user id is required", nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, userID)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func FindSimilarToUserHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req vecstore.FindSimilarRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		items, ok := resp.([]vecstore.ScoredItem)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(&items)
	}
}

func SearchHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req vecstore.SearchRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		items, ok := resp.([]vecstore.ScoredItem)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(&items)
	}
}

func BackupHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req vecstore.BackupRequest
		if len(r.Data()) > 0 {
			if err := json.Unmarshal(r.Data(), &req); err != nil {
				r.Error("400", err.Error(), nil)
				return
			}
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func RestoreHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req vecstore.RestoreRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		if req.BackupID == "" {
			r.Error("400", "backup id is required", nil)
			return
		}

		ctx := context.Background()
		_, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.Respond([]byte("OK"))
	}
}

func VerifyBackupHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		backupID := string(r.Data())
		if backupID == "" {
			r.Error("400", "backup id is required", nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, backupID)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}

func ListBackupsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		ctx := context.Background()
		resp, err := endpoint(ctx, nil)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		manifests, ok := resp.([]vecstore.Manifest)
		if !ok {
			r.Error("500", "invalid response type", nil)
			return
		}

		r.RespondJSON(&manifests)
	}
}

func CleanupBackupsHandler(endpoint endpoint.Endpoint) micro.HandlerFunc {
	return func(r micro.Request) {
		var req vecstore.CleanupRequest
		if err := json.Unmarshal(r.Data(), &req); err != nil {
			r.Error("400", err.Error(), nil)
			return
		}

		ctx := context.Background()
		resp, err := endpoint(ctx, req)
		if err != nil {
			r.Error(errorCode(err), err.Error(), nil)
			return
		}

		r.RespondJSON(&resp)
	}
}
