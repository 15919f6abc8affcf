package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vecstore/embedding"
	"vecstore/index"
	"vecstore/persistence"
	"vecstore/storage"
)

// Service defines the core logic of the vector store.
type Service interface {

	// Close shuts down the service and releases the record store.
	Close() error

	// Healthy reports whether the store is initialized and the record
	// store is reachable.
	Healthy(ctx context.Context) bool

	// Counts returns the number of vectors in the content and user
	// indices.
	Counts() (content int, user int)

	// AddItem embeds the text and stores a content record. The store
	// write and the index append are not atomic: if the append fails
	// after the write, the collection stays inconsistent until the next
	// Rebuild.
	AddItem(ctx context.Context, id, text string, metadata Metadata) error

	// AddUser embeds the profile interests and stores a user record.
	AddUser(ctx context.Context, profile UserProfile) error

	// UpdateUser overwrites an existing user record and rebuilds the
	// user index from the record store. The rebuild holds the user
	// collection lock for its duration; callers with many updates should
	// batch them. Returns ErrUserNotFound if the user does not exist.
	UpdateUser(ctx context.Context, profile UserProfile) error

	// GetUser returns the user record, or (nil, nil) if absent.
	GetUser(ctx context.Context, userID string) (*UserRecord, error)

	// FindSimilarToUser returns content nearest to the user's embedding.
	// The content-type filter is applied after the index search and may
	// shrink the result below limit.
	FindSimilarToUser(ctx context.Context, userID string, contentTypes []string, limit int) ([]ScoredItem, error)

	// Search runs a semantic query over the content collection,
	// optionally blended with a user embedding.
	Search(ctx context.Context, req SearchRequest) ([]ScoredItem, error)

	// Rebuild reconstructs both indices from the record store. It is the
	// reconciliation path for any index/store divergence.
	Rebuild(ctx context.Context) error

	// Backup snapshots both collections and their indices into a backup
	// artifact set, optionally uploading it to object storage.
	Backup(ctx context.Context, backupID string, upload bool) (string, error)

	// Restore replaces both collections with a backup artifact set. The
	// live store is untouched if the backup is missing or incompatible.
	Restore(ctx context.Context, backupID string, download bool) error

	// VerifyBackup checks artifact integrity against its manifest
	// without mutating live state.
	VerifyBackup(ctx context.Context, backupID string) (*Verification, error)

	// ListBackups returns all known backup manifests, newest first.
	ListBackups(ctx context.Context) ([]Manifest, error)

	// CleanupOldBackups deletes backups not retained by the generational
	// daily/weekly/monthly policy and returns how many were removed.
	CleanupOldBackups(ctx context.Context, retainDays, retainWeekly, retainMonthly int) (int, error)
}

type ServiceMiddleware func(Service) Service

// collection pairs a vector index with its record-key namespace. The
// mutex serializes index mutation; ids maps index positions back to
// record identifiers, in insertion order.
type collection struct {
	name string

	mu    sync.RWMutex
	index *index.Flat
	ids   []string
}

func (c *collection) key(id string) string {
	return c.name + ":" + id
}

func (c *collection) prefix() string {
	return c.name + ":"
}

func NewService(ctx context.Context, cfg Config, embedder embedding.Embedder, store persistence.Store, objects storage.ObjectStorage) (Service, error) {
	log := zap.L().With(
		zap.String("service", "vecstore"),
	)

	cfg.ApplyDefaults()

	if embedder == nil {
		return nil, errors.New("embedder is required")
	}

	dim := embedder.Dimensions()
	if dim <= 0 {
		return nil, fmt.Errorf("invalid embedding dimension %d", dim)
	}

	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("record store unreachable: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)

	svc := &service{
		content: &collection{
			name:  cfg.Collections.Content,
			index: index.New(dim),
		},
		users: &collection{
			name:  cfg.Collections.User,
			index: index.New(dim),
		},

		cfg:      cfg,
		dim:      dim,
		embedder: embedder,
		store:    store,
		objects:  objects,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := svc.Rebuild(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("initial index rebuild failed: %w", err)
	}

	svc.initialized.Store(true)

	if interval := cfg.HealthInterval.Duration(); interval > 0 {
		go svc.healthMonitor(ctx, interval)
	}

	log.Info("vector store initialized",
		zap.String("model", embedder.Model()),
		zap.Int("dimension", dim),
	)

	return svc, nil
}

type service struct {
	content *collection
	users   *collection

	cfg      Config
	dim      int
	embedder embedding.Embedder
	store    persistence.Store
	objects  storage.ObjectStorage

	initialized atomic.Bool

	log    *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

func (svc *service) Close() error {
	if svc.cancel != nil {
		svc.cancel()
		svc.cancel = nil
	}

	svc.initialized.Store(false)

	return svc.store.Close()
}

func (svc *service) Healthy(ctx context.Context) bool {
	if !svc.initialized.Load() {
		return false
	}

	return svc.store.Ping(ctx) == nil
}

func (svc *service) Counts() (int, int) {
	svc.content.mu.RLock()
	content := svc.content.index.Count()
	svc.content.mu.RUnlock()

	svc.users.mu.RLock()
	users := svc.users.index.Count()
	svc.users.mu.RUnlock()

	return content, users
}

func (svc *service) healthMonitor(ctx context.Context, interval time.Duration) {
	log := svc.log.With(
		zap.String("action", "health_monitor"),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("done")
			return

		case <-ticker.C:
			if err := svc.store.Ping(ctx); err != nil {
				log.Error("record store unreachable", zap.Error(err))
				continue
			}

			content, users := svc.Counts()
			log.Debug("store is alive",
				zap.Int("content_vectors", content),
				zap.Int("user_vectors", users),
			)
		}
	}
}

func (svc *service) embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := svc.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}

	if len(vec) != svc.dim {
		return nil, fmt.Errorf("%w: model returned %d, store expects %d", ErrDimensionMismatch, len(vec), svc.dim)
	}

	return vec, nil
}

func (svc *service) AddItem(ctx context.Context, id, text string, metadata Metadata) error {
	if !svc.initialized.Load() {
		return ErrNotInitialized
	}

	if err := metadata.Validate(); err != nil {
		return err
	}

	vec, err := svc.embed(ctx, text)
	if err != nil {
		return fmt.Errorf("add item %s: %w", id, err)
	}

	record := ContentRecord{
		ID:        id,
		Embedding: vec,
		Metadata:  metadata,
		StoredAt:  time.Now().UTC(),
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	if err := svc.store.Set(ctx, svc.content.key(id), data); err != nil {
		return fmt.Errorf("add item %s: store write: %w", id, err)
	}

	// The record is durable at this point. An append failure below
	// leaves the content index one entry behind the store until the
	// next Rebuild.
	svc.content.mu.Lock()
	defer svc.content.mu.Unlock()

	if _, err := svc.content.index.Add(vec); err != nil {
		return fmt.Errorf("add item %s: index append: %w", id, err)
	}

	svc.content.ids = append(svc.content.ids, id)

	return nil
}

func (svc *service) AddUser(ctx context.Context, profile UserProfile) error {
	if !svc.initialized.Load() {
		return ErrNotInitialized
	}

	if err := profile.Preferences.Validate(); err != nil {
		return err
	}

	if err := profile.Metadata.Validate(); err != nil {
		return err
	}

	vec, err := svc.embed(ctx, profile.Interests)
	if err != nil {
		return fmt.Errorf("add user %s: %w", profile.ID, err)
	}

	now := time.Now().UTC()

	record := UserRecord{
		ID:          profile.ID,
		Embedding:   vec,
		Interests:   profile.Interests,
		Preferences: profile.Preferences,
		Role:        profile.Role,
		Metadata:    profile.Metadata,
		StoredAt:    now,
		UpdatedAt:   now,
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	if err := svc.store.Set(ctx, svc.users.key(profile.ID), data); err != nil {
		return fmt.Errorf("add user %s: store write: %w", profile.ID, err)
	}

	svc.users.mu.Lock()
	defer svc.users.mu.Unlock()

	if _, err := svc.users.index.Add(vec); err != nil {
		return fmt.Errorf("add user %s: index append: %w", profile.ID, err)
	}

	svc.users.ids = append(svc.users.ids, profile.ID)

	return nil
}

func (svc *service) UpdateUser(ctx context.Context, profile UserProfile) error {
	if !svc.initialized.Load() {
		return ErrNotInitialized
	}

	if err := profile.Preferences.Validate(); err != nil {
		return err
	}

	if err := profile.Metadata.Validate(); err != nil {
		return err
	}

	existing, err := svc.GetUser(ctx, profile.ID)
	if err != nil {
		return err
	}

	if existing == nil {
		return fmt.Errorf("update user %s: %w", profile.ID, ErrUserNotFound)
	}

	vec, err := svc.embed(ctx, profile.Interests)
	if err != nil {
		return fmt.Errorf("update user %s: %w", profile.ID, err)
	}

	record := UserRecord{
		ID:          profile.ID,
		Embedding:   vec,
		Interests:   profile.Interests,
		Preferences: profile.Preferences,
		Role:        profile.Role,
		Metadata:    profile.Metadata,
		StoredAt:    existing.StoredAt,
		UpdatedAt:   time.Now().UTC(),
	}

	data, err := json.Marshal(&record)
	if err != nil {
		return err
	}

	if err := svc.store.Set(ctx, svc.users.key(profile.ID), data); err != nil {
		return fmt.Errorf("update user %s: store write: %w", profile.ID, err)
	}

	// The index has no in-place update, so the whole user index is
	// rebuilt from the store. The lock is held for the duration; this
	// is a stop-the-world operation for other user-collection writers.
	svc.users.mu.Lock()
	defer svc.users.mu.Unlock()

	if err := svc.rebuildLocked(ctx, svc.users); err != nil {
		return fmt.Errorf("update user %s: rebuild: %w", profile.ID, err)
	}

	return nil
}

func (svc *service) GetUser(ctx context.Context, userID string) (*UserRecord, error) {
	if !svc.initialized.Load() {
		return nil, ErrNotInitialized
	}

	data, err := svc.store.Get(ctx, svc.users.key(userID))
	if err != nil {
		if errors.Is(err, persistence.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}

	var record UserRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("get user %s: corrupt record: %w", userID, err)
	}

	return &record, nil
}

func (svc *service) FindSimilarToUser(ctx context.Context, userID string, contentTypes []string, limit int) ([]ScoredItem, error) {
	if !svc.initialized.Load() {
		return nil, ErrNotInitialized
	}

	user, err := svc.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user == nil {
		return nil, fmt.Errorf("find similar for %s: %w", userID, ErrUserNotFound)
	}

	return svc.searchContent(ctx, user.Embedding, contentTypes, limit)
}

func (svc *service) Search(ctx context.Context, req SearchRequest) ([]ScoredItem, error) {
	if !svc.initialized.Load() {
		return nil, ErrNotInitialized
	}

	if req.UserWeight < 0 || req.UserWeight > 1 {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidUserWeight, req.UserWeight)
	}

	query, err := svc.embed(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if req.UserEmbedding != nil {
		combined, err := index.Combine(query, req.UserEmbedding, req.UserWeight)
		if err != nil {
			return nil, fmt.Errorf("search: %w", err)
		}

		query = combined
	}

	return svc.searchContent(ctx, query, req.ContentTypes, req.Limit)
}

// searchContent queries the content index and resolves hits to records,
// applying the content-type allow list after the search.
func (svc *service) searchContent(ctx context.Context, query []float32, contentTypes []string, limit int) ([]ScoredItem, error) {
	if limit <= 0 {
		limit = 10
	}

	svc.content.mu.RLock()
	hits, err := svc.content.index.Search(query, limit)
	if err != nil {
		svc.content.mu.RUnlock()
		return nil, fmt.Errorf("search content index: %w", err)
	}

	keys := make([]string, len(hits))
	for i, hit := range hits {
		keys[i] = svc.content.key(svc.content.ids[hit.Position])
	}
	svc.content.mu.RUnlock()

	if len(keys) == 0 {
		return []ScoredItem{}, nil
	}

	values, err := svc.store.MGet(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch content records: %w", err)
	}

	allowed := make(map[string]struct{}, len(contentTypes))
	for _, contentType := range contentTypes {
		allowed[contentType] = struct{}{}
	}

	results := make([]ScoredItem, 0, len(hits))
	for i, value := range values {
		if value == nil {
			continue
		}

		var record ContentRecord
		if err := json.Unmarshal(value, &record); err != nil {
			return nil, fmt.Errorf("corrupt content record %s: %w", keys[i], err)
		}

		if len(allowed) > 0 {
			contentType, ok := record.Metadata.ContentType()
			if !ok {
				continue
			}

			if _, ok := allowed[contentType]; !ok {
				continue
			}
		}

		results = append(results, ScoredItem{
			ContentRecord: record,
			Score:         hits[i].Score,
		})

		if len(results) >= limit {
			break
		}
	}

	return results, nil
}

func (svc *service) Rebuild(ctx context.Context) error {
	svc.content.mu.Lock()
	err := svc.rebuildLocked(ctx, svc.content)
	svc.content.mu.Unlock()

	if err != nil {
		return err
	}

	svc.users.mu.Lock()
	defer svc.users.mu.Unlock()

	return svc.rebuildLocked(ctx, svc.users)
}

const rebuildBatchSize = 1000

// rebuildLocked rescans the collection's records and rebuilds its index
// from scratch, in store-enumeration order. The caller holds the
// collection lock.
func (svc *service) rebuildLocked(ctx context.Context, c *collection) error {
	keys, err := svc.store.Keys(ctx, c.prefix())
	if err != nil {
		return fmt.Errorf("rebuild %s: enumerate keys: %w", c.name, err)
	}

	idx := index.New(svc.dim)
	ids := make([]string, 0, len(keys))

	for start := 0; start < len(keys); start += rebuildBatchSize {
		end := start + rebuildBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		batch := keys[start:end]

		values, err := svc.store.MGet(ctx, batch)
		if err != nil {
			return fmt.Errorf("rebuild %s: fetch records: %w", c.name, err)
		}

		for i, value := range values {
			if value == nil {
				continue
			}

			var record struct {
				ID        string    `json:"id"`
				Embedding []float32 `json:"embedding"`
			}

			if err := json.Unmarshal(value, &record); err != nil {
				return fmt.Errorf("rebuild %s: corrupt record %s: %w", c.name, batch[i], err)
			}

			if _, err := idx.Add(record.Embedding); err != nil {
				return fmt.Errorf("rebuild %s: record %s: %w", c.name, batch[i], err)
			}

			ids = append(ids, record.ID)
		}
	}

	c.index = idx
	c.ids = ids

	svc.log.Info("index rebuilt",
		zap.String("collection", c.name),
		zap.Int("vectors", idx.Count()),
	)

	return nil
}
