package nats

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-kit/kit/endpoint"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"vecstore"
)

// MakeEndpoints builds client-side endpoints that call a remote
// instance over NATS. prefix is the remote service's subject prefix,
// e.g. "vecstore.main".
func MakeEndpoints(nc *nats.Conn, prefix string) *vecstore.EndpointSet {
	return &vecstore.EndpointSet{
		AddItem:           AddItemEndpoint(nc, prefix+".add_item"),
		AddUser:           AddUserEndpoint(nc, prefix+".add_user"),
		UpdateUser:        UpdateUserEndpoint(nc, prefix+".update_user"),
		GetUser:           GetUserEndpoint(nc, prefix+".get_user"),
		FindSimilarToUser: FindSimilarToUserEndpoint(nc, prefix+".find_similar_to_user"),
		Search:            SearchEndpoint(nc, prefix+".search"),
		Backup:            BackupEndpoint(nc, prefix+".backup"),
		Restore:           RestoreEndpoint(nc, prefix+".restore"),
		VerifyBackup:      VerifyBackupEndpoint(nc, prefix+".verify_backup"),
		ListBackups:       ListBackupsEndpoint(nc, prefix+".list_backups"),
		CleanupBackups:    CleanupBackupsEndpoint(nc, prefix+".cleanup_backups"),
	}
}

func requestJSON(nc *nats.Conn, topic string, request any) (*nats.Msg, error) {
	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	resp, err := nc.Request(topic, data, nats.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	if err := Error(resp); err != nil {
		return nil, err
	}

	return resp, nil
}

func AddItemEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(vecstore.AddItemRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &req)
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

func AddUserEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		profile, ok := request.(vecstore.UserProfile)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &profile)
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

func UpdateUserEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		profile, ok := request.(vecstore.UserProfile)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &profile)
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

func GetUserEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		userID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := nc.Request(topic, []byte(userID), nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(resp); err != nil {
			return nil, err
		}

		var user vecstore.UserRecord
		if err := json.Unmarshal(resp.Data, &user); err != nil {
			return nil, err
		}

		return &user, nil
	}
}

func FindSimilarToUserEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(vecstore.FindSimilarRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &req)
		if err != nil {
			return nil, err
		}

		var items []vecstore.ScoredItem
		if err := json.Unmarshal(resp.Data, &items); err != nil {
			return nil, err
		}

		return items, nil
	}
}

func SearchEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(vecstore.SearchRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &req)
		if err != nil {
			return nil, err
		}

		var items []vecstore.ScoredItem
		if err := json.Unmarshal(resp.Data, &items); err != nil {
			return nil, err
		}

		return items, nil
	}
}

func BackupEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(vecstore.BackupRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &req)
		if err != nil {
			return nil, err
		}

		var result vecstore.BackupResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func RestoreEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(vecstore.RestoreRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &req)
		if err != nil {
			return nil, err
		}

		return string(resp.Data), nil
	}
}

func VerifyBackupEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		backupID, ok := request.(string)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := nc.Request(topic, []byte(backupID), nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(resp); err != nil {
			return nil, err
		}

		var verification vecstore.Verification
		if err := json.Unmarshal(resp.Data, &verification); err != nil {
			return nil, err
		}

		return &verification, nil
	}
}

func ListBackupsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		resp, err := nc.Request(topic, nil, nats.DefaultTimeout)
		if err != nil {
			return nil, err
		}

		if err := Error(resp); err != nil {
			return nil, err
		}

		var manifests []vecstore.Manifest
		if err := json.Unmarshal(resp.Data, &manifests); err != nil {
			return nil, err
		}

		return manifests, nil
	}
}

func CleanupBackupsEndpoint(nc *nats.Conn, topic string) endpoint.Endpoint {
	return func(ctx context.Context, request any) (any, error) {
		req, ok := request.(vecstore.CleanupRequest)
		if !ok {
			return nil, errors.New("invalid request")
		}

		resp, err := requestJSON(nc, topic, &req)
		if err != nil {
			return nil, err
		}

		var result vecstore.CleanupResponse
		if err := json.Unmarshal(resp.Data, &result); err != nil {
			return nil, err
		}

		return result, nil
	}
}

func Error(msg *nats.Msg) error {
	if msg == nil {
		return errors.New("nil message")
	}

	code := msg.Header.Get(micro.ErrorCodeHeader)
	if code == "" {
		return nil
	}

	description := msg.Header.Get(micro.ErrorHeader)
	if description == "" {
		description = "unknown error"
	}

	return errors.New(code + ":" + description)
}
