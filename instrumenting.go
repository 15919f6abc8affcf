package vecstore

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// InstrumentingMiddleware records operation latency and error counts,
// index sizes, and backup outcomes. Collectors register against reg,
// so tests can pass an isolated registry.
func InstrumentingMiddleware(reg prometheus.Registerer) ServiceMiddleware {
	duration := promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vecstore",
		Name:      "operation_duration_seconds",
		Help:      "Latency of service operations.",
	}, []string{"operation"})

	operationErrors := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecstore",
		Name:      "operation_errors_total",
		Help:      "Failed service operations.",
	}, []string{"operation"})

	vectorCount := promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vecstore",
		Name:      "vector_count",
		Help:      "Vectors currently held per index.",
	}, []string{"index_type"})

	backupSuccess := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecstore",
		Name:      "backup_success_total",
		Help:      "Completed backup operations.",
	}, []string{"type"})

	backupFailure := promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecstore",
		Name:      "backup_failure_total",
		Help:      "Failed backup operations.",
	}, []string{"type"})

	lastBackup := promauto.With(reg).NewGauge(prometheus.GaugeOpts{
		Namespace: "vecstore",
		Name:      "last_backup_timestamp_seconds",
		Help:      "Unix time of the last successful backup.",
	})

	return func(next Service) Service {
		return &instrumentingMiddleware{
			duration:        duration,
			operationErrors: operationErrors,
			vectorCount:     vectorCount,
			backupSuccess:   backupSuccess,
			backupFailure:   backupFailure,
			lastBackup:      lastBackup,
			next:            next,
		}
	}
}

type instrumentingMiddleware struct {
	duration        *prometheus.HistogramVec
	operationErrors *prometheus.CounterVec
	vectorCount     *prometheus.GaugeVec
	backupSuccess   *prometheus.CounterVec
	backupFailure   *prometheus.CounterVec
	lastBackup      prometheus.Gauge
	next            Service
}

func (mw *instrumentingMiddleware) observe(operation string, begin time.Time, err error) {
	mw.duration.WithLabelValues(operation).Observe(time.Since(begin).Seconds())
	if err != nil {
		mw.operationErrors.WithLabelValues(operation).Inc()
	}
}

func (mw *instrumentingMiddleware) updateVectorCounts() {
	content, user := mw.next.Counts()
	mw.vectorCount.WithLabelValues("content").Set(float64(content))
	mw.vectorCount.WithLabelValues("user").Set(float64(user))
}

func (mw *instrumentingMiddleware) Close() error {
	return mw.next.Close()
}

func (mw *instrumentingMiddleware) Healthy(ctx context.Context) bool {
	return mw.next.Healthy(ctx)
}

func (mw *instrumentingMiddleware) Counts() (int, int) {
	return mw.next.Counts()
}

func (mw *instrumentingMiddleware) AddItem(ctx context.Context, id, text string, metadata Metadata) (err error) {
	defer func(begin time.Time) {
		mw.observe("add_item", begin, err)
	}(time.Now())

	err = mw.next.AddItem(ctx, id, text, metadata)
	if err == nil {
		mw.updateVectorCounts()
	}
	return err
}

func (mw *instrumentingMiddleware) AddUser(ctx context.Context, profile UserProfile) (err error) {
	defer func(begin time.Time) {
		mw.observe("add_user", begin, err)
	}(time.Now())

	err = mw.next.AddUser(ctx, profile)
	if err == nil {
		mw.updateVectorCounts()
	}
	return err
}

func (mw *instrumentingMiddleware) UpdateUser(ctx context.Context, profile UserProfile) (err error) {
	defer func(begin time.Time) {
		mw.observe("update_user", begin, err)
	}(time.Now())

	err = mw.next.UpdateUser(ctx, profile)
	if err == nil {
		mw.updateVectorCounts()
	}
	return err
}

func (mw *instrumentingMiddleware) GetUser(ctx context.Context, userID string) (user *UserRecord, err error) {
	defer func(begin time.Time) {
		mw.observe("get_user", begin, err)
	}(time.Now())

	return mw.next.GetUser(ctx, userID)
}

func (mw *instrumentingMiddleware) FindSimilarToUser(ctx context.Context, userID string, contentTypes []string, limit int) (items []ScoredItem, err error) {
	defer func(begin time.Time) {
		mw.observe("find_similar_to_user", begin, err)
	}(time.Now())

	return mw.next.FindSimilarToUser(ctx, userID, contentTypes, limit)
}

func (mw *instrumentingMiddleware) Search(ctx context.Context, req SearchRequest) (items []ScoredItem, err error) {
	defer func(begin time.Time) {
		mw.observe("search", begin, err)
	}(time.Now())

	return mw.next.Search(ctx, req)
}

func (mw *instrumentingMiddleware) Rebuild(ctx context.Context) (err error) {
	defer func(begin time.Time) {
		mw.observe("rebuild", begin, err)
	}(time.Now())

	err = mw.next.Rebuild(ctx)
	if err == nil {
		mw.updateVectorCounts()
	}
	return err
}

func (mw *instrumentingMiddleware) Backup(ctx context.Context, backupID string, upload bool) (id string, err error) {
	defer func(begin time.Time) {
		mw.observe("backup", begin, err)
	}(time.Now())

	backupType := "local"
	if upload {
		backupType = "remote"
	}

	id, err = mw.next.Backup(ctx, backupID, upload)
	if err != nil {
		mw.backupFailure.WithLabelValues(backupType).Inc()
		return "", err
	}

	mw.backupSuccess.WithLabelValues(backupType).Inc()
	mw.lastBackup.SetToCurrentTime()
	return id, nil
}

func (mw *instrumentingMiddleware) Restore(ctx context.Context, backupID string, download bool) (err error) {
	defer func(begin time.Time) {
		mw.observe("restore", begin, err)
	}(time.Now())

	err = mw.next.Restore(ctx, backupID, download)
	if err == nil {
		mw.updateVectorCounts()
	}
	return err
}

func (mw *instrumentingMiddleware) VerifyBackup(ctx context.Context, backupID string) (verification *Verification, err error) {
	defer func(begin time.Time) {
		mw.observe("verify_backup", begin, err)
	}(time.Now())

	return mw.next.VerifyBackup(ctx, backupID)
}

func (mw *instrumentingMiddleware) ListBackups(ctx context.Context) (manifests []Manifest, err error) {
	defer func(begin time.Time) {
		mw.observe("list_backups", begin, err)
	}(time.Now())

	return mw.next.ListBackups(ctx)
}

func (mw *instrumentingMiddleware) CleanupOldBackups(ctx context.Context, retainDays, retainWeekly, retainMonthly int) (deleted int, err error) {
	defer func(begin time.Time) {
		mw.observe("cleanup_old_backups", begin, err)
	}(time.Now())

	return mw.next.CleanupOldBackups(ctx, retainDays, retainWeekly, retainMonthly)
}
