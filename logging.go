package vecstore

import (
	"context"

	"go.uber.org/zap"
)

func LoggingMiddleware(log *zap.Logger) ServiceMiddleware {
	log = log.With(
		zap.String("service", "vecstore"),
	)

	return func(next Service) Service {
		log.Info("service initialized")

		return &loggingMiddleware{
			log:  log,
			next: next,
		}
	}
}

type loggingMiddleware struct {
	log  *zap.Logger
	next Service
}

func (mw *loggingMiddleware) Close() error {
	log := mw.log.With(
		zap.String("action", "close"),
	)

	err := mw.next.Close()
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("service closed")
	return nil
}

func (mw *loggingMiddleware) Healthy(ctx context.Context) bool {
	return mw.next.Healthy(ctx)
}

func (mw *loggingMiddleware) Counts() (int, int) {
	return mw.next.Counts()
}

func (mw *loggingMiddleware) AddItem(ctx context.Context, id, text string, metadata Metadata) error {
	log := mw.log.With(
		zap.String("action", "add_item"),
		zap.String("item_id", id),
	)

	if contentType, ok := metadata.ContentType(); ok {
		log = log.With(
			zap.String("content_type", contentType),
		)
	}

	err := mw.next.AddItem(ctx, id, text, metadata)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("item added")
	return nil
}

func (mw *loggingMiddleware) AddUser(ctx context.Context, profile UserProfile) error {
	log := mw.log.With(
		zap.String("action", "add_user"),
		zap.String("user_id", profile.ID),
	)

	err := mw.next.AddUser(ctx, profile)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("user added")
	return nil
}

func (mw *loggingMiddleware) UpdateUser(ctx context.Context, profile UserProfile) error {
	log := mw.log.With(
		zap.String("action", "update_user"),
		zap.String("user_id", profile.ID),
	)

	err := mw.next.UpdateUser(ctx, profile)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("user updated")
	return nil
}

func (mw *loggingMiddleware) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	log := mw.log.With(
		zap.String("action", "get_user"),
		zap.String("user_id", userID),
	)

	user, err := mw.next.GetUser(ctx, userID)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	return user, nil
}

func (mw *loggingMiddleware) FindSimilarToUser(ctx context.Context, userID string, contentTypes []string, limit int) ([]ScoredItem, error) {
	log := mw.log.With(
		zap.String("action", "find_similar_to_user"),
		zap.String("user_id", userID),
	)

	items, err := mw.next.FindSimilarToUser(ctx, userID, contentTypes, limit)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("recommendations found", zap.Int("count", len(items)))
	return items, nil
}

func (mw *loggingMiddleware) Search(ctx context.Context, req SearchRequest) ([]ScoredItem, error) {
	log := mw.log.With(
		zap.String("action", "search"),
		zap.String("query", req.Query),
	)

	if req.UserEmbedding != nil {
		log = log.With(
			zap.Float32("user_weight", req.UserWeight),
		)
	}

	items, err := mw.next.Search(ctx, req)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("search completed", zap.Int("count", len(items)))
	return items, nil
}

func (mw *loggingMiddleware) Rebuild(ctx context.Context) error {
	log := mw.log.With(
		zap.String("action", "rebuild"),
	)

	err := mw.next.Rebuild(ctx)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	content, user := mw.next.Counts()
	log.Info("indices rebuilt",
		zap.Int("content_vectors", content),
		zap.Int("user_vectors", user),
	)
	return nil
}

func (mw *loggingMiddleware) Backup(ctx context.Context, backupID string, upload bool) (string, error) {
	log := mw.log.With(
		zap.String("action", "backup"),
		zap.Bool("upload", upload),
	)

	id, err := mw.next.Backup(ctx, backupID, upload)
	if err != nil {
		log.Error(err.Error())
		return "", err
	}

	log.Info("backup created", zap.String("backup_id", id))
	return id, nil
}

func (mw *loggingMiddleware) Restore(ctx context.Context, backupID string, download bool) error {
	log := mw.log.With(
		zap.String("action", "restore"),
		zap.String("backup_id", backupID),
		zap.Bool("download", download),
	)

	err := mw.next.Restore(ctx, backupID, download)
	if err != nil {
		log.Error(err.Error())
		return err
	}

	log.Info("backup restored")
	return nil
}

func (mw *loggingMiddleware) VerifyBackup(ctx context.Context, backupID string) (*Verification, error) {
	log := mw.log.With(
		zap.String("action", "verify_backup"),
		zap.String("backup_id", backupID),
	)

	verification, err := mw.next.VerifyBackup(ctx, backupID)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	log.Info("backup verified",
		zap.Bool("content_index", verification.ContentIndex.Verified),
		zap.Bool("user_index", verification.UserIndex.Verified),
		zap.Bool("records", verification.Records.Verified),
		zap.Bool("model_compatible", verification.Model.Compatible),
	)
	return verification, nil
}

func (mw *loggingMiddleware) ListBackups(ctx context.Context) ([]Manifest, error) {
	log := mw.log.With(
		zap.String("action", "list_backups"),
	)

	manifests, err := mw.next.ListBackups(ctx)
	if err != nil {
		log.Error(err.Error())
		return nil, err
	}

	return manifests, nil
}

func (mw *loggingMiddleware) CleanupOldBackups(ctx context.Context, retainDays, retainWeekly, retainMonthly int) (int, error) {
	log := mw.log.With(
		zap.String("action", "cleanup_old_backups"),
		zap.Int("retain_days", retainDays),
		zap.Int("retain_weekly", retainWeekly),
		zap.Int("retain_monthly", retainMonthly),
	)

	deleted, err := mw.next.CleanupOldBackups(ctx, retainDays, retainWeekly, retainMonthly)
	if err != nil {
		log.Error(err.Error())
		return 0, err
	}

	log.Info("backups cleaned up", zap.Int("deleted", deleted))
	return deleted, nil
}
