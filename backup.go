package vecstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"vecstore/index"
	"vecstore/storage"
)

const (
	manifestFile     = "manifest.json"
	recordsFile      = "records.json"
	contentIndexFile = "content_index.gob"
	userIndexFile    = "user_index.gob"
)

var artifactFiles = []string{manifestFile, recordsFile, contentIndexFile, userIndexFile}

// recordDump is one durable record inside a backup artifact set. Dump
// order matches index-position order per collection, so a restore can
// reload the index snapshots without re-embedding.
type recordDump struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (svc *service) backupPath(backupID string) string {
	return filepath.Join(svc.cfg.Backup.Dir, backupID)
}

func (svc *service) Backup(ctx context.Context, backupID string, upload bool) (string, error) {
	if !svc.initialized.Load() {
		return "", ErrNotInitialized
	}

	if upload && svc.objects == nil {
		return "", ErrObjectStorageNotSet
	}

	if backupID == "" {
		backupID = time.Now().UTC().Format("20060102_150405")
	}

	log := svc.log.With(
		zap.String("action", "backup"),
		zap.String("backup_id", backupID),
	)

	// Whole-store exclusivity for the duration: the snapshot must see a
	// single consistent state of both collections.
	svc.content.mu.Lock()
	defer svc.content.mu.Unlock()
	svc.users.mu.Lock()
	defer svc.users.mu.Unlock()

	var dump []recordDump
	for _, c := range []*collection{svc.content, svc.users} {
		part, err := svc.dumpCollectionLocked(ctx, c)
		if err != nil {
			return "", fmt.Errorf("backup %s: %w", backupID, err)
		}

		dump = append(dump, part...)
	}

	contentSnap, err := svc.content.index.Snapshot()
	if err != nil {
		return "", fmt.Errorf("backup %s: snapshot content index: %w", backupID, err)
	}

	userSnap, err := svc.users.index.Snapshot()
	if err != nil {
		return "", fmt.Errorf("backup %s: snapshot user index: %w", backupID, err)
	}

	manifest := Manifest{
		ID:             backupID,
		CreatedAt:      time.Now().UTC(),
		ContentVectors: svc.content.index.Count(),
		UserVectors:    svc.users.index.Count(),
		RecordKeys:     len(dump),
		Model:          svc.embedder.Model(),
		Dimension:      svc.dim,
	}

	recordsData, err := json.MarshalIndent(dump, "", "  ")
	if err != nil {
		return "", err
	}

	manifestData, err := json.MarshalIndent(&manifest, "", "  ")
	if err != nil {
		return "", err
	}

	path := svc.backupPath(backupID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("backup %s: %w", backupID, err)
	}

	files := map[string][]byte{
		recordsFile:      recordsData,
		contentIndexFile: contentSnap,
		userIndexFile:    userSnap,
		manifestFile:     manifestData,
	}

	for name, data := range files {
		if err := os.WriteFile(filepath.Join(path, name), data, 0o644); err != nil {
			return "", fmt.Errorf("backup %s: write %s: %w", backupID, name, err)
		}
	}

	if upload {
		for name, data := range files {
			if err := svc.objects.Put(ctx, backupID+"/"+name, data); err != nil {
				return "", fmt.Errorf("backup %s: upload %s: %w", backupID, name, err)
			}
		}
	}

	log.Info("backup completed",
		zap.Int("content_vectors", manifest.ContentVectors),
		zap.Int("user_vectors", manifest.UserVectors),
		zap.Int("record_keys", manifest.RecordKeys),
		zap.Bool("uploaded", upload),
	)

	return backupID, nil
}

// dumpCollectionLocked serializes the collection's records in index
// position order. The caller holds the collection lock.
func (svc *service) dumpCollectionLocked(ctx context.Context, c *collection) ([]recordDump, error) {
	keys := make([]string, len(c.ids))
	for i, id := range c.ids {
		keys[i] = c.key(id)
	}

	dump := make([]recordDump, 0, len(keys))

	for start := 0; start < len(keys); start += rebuildBatchSize {
		end := start + rebuildBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		batch := keys[start:end]

		values, err := svc.store.MGet(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", c.name, err)
		}

		for i, value := range values {
			if value == nil {
				svc.log.Warn("record missing during backup",
					zap.String("collection", c.name),
					zap.String("key", batch[i]),
				)
				continue
			}

			dump = append(dump, recordDump{
				Key:   batch[i],
				Value: json.RawMessage(value),
			})
		}
	}

	return dump, nil
}

func (svc *service) Restore(ctx context.Context, backupID string, download bool) error {
	if !svc.initialized.Load() {
		return ErrNotInitialized
	}

	if download {
		if svc.objects == nil {
			return ErrObjectStorageNotSet
		}

		if err := svc.downloadArtifacts(ctx, backupID); err != nil {
			return err
		}
	}

	manifest, err := svc.readManifest(backupID)
	if err != nil {
		return err
	}

	// Everything is validated and parsed before any live state changes,
	// so an incompatible or corrupt backup leaves the store untouched.
	if manifest.Dimension != svc.dim {
		return fmt.Errorf("restore %s: backup has dimension %d, store expects %d: %w",
			backupID, manifest.Dimension, svc.dim, ErrDimensionMismatch)
	}

	path := svc.backupPath(backupID)

	recordsData, err := os.ReadFile(filepath.Join(path, recordsFile))
	if err != nil {
		return fmt.Errorf("restore %s: %w", backupID, err)
	}

	var dump []recordDump
	if err := json.Unmarshal(recordsData, &dump); err != nil {
		return fmt.Errorf("restore %s: corrupt records dump: %w", backupID, err)
	}

	contentIdx, err := svc.readIndexSnapshot(backupID, contentIndexFile, svc.dim)
	if err != nil {
		return err
	}

	userIdx, err := svc.readIndexSnapshot(backupID, userIndexFile, svc.dim)
	if err != nil {
		return err
	}

	// Rebuild the position-to-id mapping from the dump order, which
	// mirrors index-position order per collection.
	var contentIDs, userIDs []string
	for _, record := range dump {
		switch {
		case strings.HasPrefix(record.Key, svc.content.prefix()):
			contentIDs = append(contentIDs, strings.TrimPrefix(record.Key, svc.content.prefix()))
		case strings.HasPrefix(record.Key, svc.users.prefix()):
			userIDs = append(userIDs, strings.TrimPrefix(record.Key, svc.users.prefix()))
		}
	}

	if len(contentIDs) != contentIdx.Count() || len(userIDs) != userIdx.Count() {
		return fmt.Errorf("restore %s: records and index snapshots disagree (content %d/%d, user %d/%d)",
			backupID, len(contentIDs), contentIdx.Count(), len(userIDs), userIdx.Count())
	}

	svc.content.mu.Lock()
	defer svc.content.mu.Unlock()
	svc.users.mu.Lock()
	defer svc.users.mu.Unlock()

	for _, prefix := range []string{svc.content.prefix(), svc.users.prefix()} {
		keys, err := svc.store.Keys(ctx, prefix)
		if err != nil {
			return fmt.Errorf("restore %s: enumerate %s: %w", backupID, prefix, err)
		}

		if err := svc.store.Delete(ctx, keys...); err != nil {
			return fmt.Errorf("restore %s: clear %s: %w", backupID, prefix, err)
		}
	}

	for _, record := range dump {
		if err := svc.store.Set(ctx, record.Key, record.Value); err != nil {
			return fmt.Errorf("restore %s: replay %s: %w", backupID, record.Key, err)
		}
	}

	svc.content.index = contentIdx
	svc.content.ids = contentIDs
	svc.users.index = userIdx
	svc.users.ids = userIDs

	svc.log.Info("restore completed",
		zap.String("backup_id", backupID),
		zap.Int("content_vectors", contentIdx.Count()),
		zap.Int("user_vectors", userIdx.Count()),
	)

	return nil
}

func (svc *service) downloadArtifacts(ctx context.Context, backupID string) error {
	keys, err := svc.objects.List(ctx, backupID+"/")
	if err != nil {
		return fmt.Errorf("restore %s: list remote artifacts: %w", backupID, err)
	}

	if len(keys) == 0 {
		// Fall back to a local copy if one exists.
		if _, err := os.Stat(svc.backupPath(backupID)); err == nil {
			return nil
		}

		return fmt.Errorf("restore %s: %w", backupID, ErrBackupNotFound)
	}

	path := svc.backupPath(backupID)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	for _, key := range keys {
		data, err := svc.objects.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("restore %s: download %s: %w", backupID, key, err)
		}

		name := filepath.Base(key)
		if err := os.WriteFile(filepath.Join(path, name), data, 0o644); err != nil {
			return fmt.Errorf("restore %s: write %s: %w", backupID, name, err)
		}
	}

	return nil
}

func (svc *service) readManifest(backupID string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(svc.backupPath(backupID), manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup %s: %w", backupID, ErrBackupNotFound)
		}
		return nil, err
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("backup %s: corrupt manifest: %w", backupID, err)
	}

	return &manifest, nil
}

func (svc *service) readIndexSnapshot(backupID, name string, dim int) (*index.Flat, error) {
	data, err := os.ReadFile(filepath.Join(svc.backupPath(backupID), name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup %s: %w", backupID, ErrBackupNotFound)
		}
		return nil, err
	}

	idx := index.New(dim)
	if err := idx.Restore(data); err != nil {
		return nil, fmt.Errorf("backup %s: load %s: %w", backupID, name, err)
	}

	return idx, nil
}

func (svc *service) VerifyBackup(ctx context.Context, backupID string) (*Verification, error) {
	if !svc.initialized.Load() {
		return nil, ErrNotInitialized
	}

	manifest, err := svc.readManifest(backupID)
	if err != nil {
		return nil, err
	}

	// Snapshots are loaded at the manifest's own dimension so counts can
	// be reported even when the backup is incompatible with this store.
	contentIdx, err := svc.readIndexSnapshot(backupID, contentIndexFile, manifest.Dimension)
	if err != nil {
		return nil, err
	}

	userIdx, err := svc.readIndexSnapshot(backupID, userIndexFile, manifest.Dimension)
	if err != nil {
		return nil, err
	}

	recordsData, err := os.ReadFile(filepath.Join(svc.backupPath(backupID), recordsFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup %s: %w", backupID, ErrBackupNotFound)
		}
		return nil, err
	}

	var dump []recordDump
	if err := json.Unmarshal(recordsData, &dump); err != nil {
		return nil, fmt.Errorf("backup %s: corrupt records dump: %w", backupID, err)
	}

	return &Verification{
		BackupID:  backupID,
		CreatedAt: manifest.CreatedAt,
		ContentIndex: ComponentCheck{
			Expected: manifest.ContentVectors,
			Actual:   contentIdx.Count(),
			Verified: contentIdx.Count() == manifest.ContentVectors,
		},
		UserIndex: ComponentCheck{
			Expected: manifest.UserVectors,
			Actual:   userIdx.Count(),
			Verified: userIdx.Count() == manifest.UserVectors,
		},
		Records: ComponentCheck{
			Expected: manifest.RecordKeys,
			Actual:   len(dump),
			Verified: len(dump) == manifest.RecordKeys,
		},
		Model: ModelCheck{
			Name:       manifest.Model,
			Dimension:  manifest.Dimension,
			Compatible: manifest.Dimension == svc.dim,
		},
	}, nil
}

func (svc *service) ListBackups(ctx context.Context) ([]Manifest, error) {
	if !svc.initialized.Load() {
		return nil, ErrNotInitialized
	}

	manifests := make([]Manifest, 0)
	seen := make(map[string]struct{})

	entries, err := os.ReadDir(svc.cfg.Backup.Dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		manifest, err := svc.readManifest(entry.Name())
		if err != nil {
			svc.log.Warn("skipping backup with unreadable manifest",
				zap.String("backup_id", entry.Name()),
				zap.Error(err),
			)
			continue
		}

		manifests = append(manifests, *manifest)
		seen[manifest.ID] = struct{}{}
	}

	if svc.objects != nil {
		keys, err := svc.objects.List(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("list remote backups: %w", err)
		}

		for _, key := range keys {
			if filepath.Base(key) != manifestFile {
				continue
			}

			data, err := svc.objects.Get(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("list remote backups: fetch %s: %w", key, err)
			}

			var manifest Manifest
			if err := json.Unmarshal(data, &manifest); err != nil {
				svc.log.Warn("skipping remote backup with corrupt manifest",
					zap.String("key", key),
					zap.Error(err),
				)
				continue
			}

			if _, ok := seen[manifest.ID]; ok {
				continue
			}

			manifests = append(manifests, manifest)
			seen[manifest.ID] = struct{}{}
		}
	}

	sort.Slice(manifests, func(i, j int) bool {
		return manifests[i].CreatedAt.After(manifests[j].CreatedAt)
	})

	return manifests, nil
}

func (svc *service) CleanupOldBackups(ctx context.Context, retainDays, retainWeekly, retainMonthly int) (int, error) {
	if !svc.initialized.Load() {
		return 0, ErrNotInitialized
	}

	if retainDays <= 0 || retainWeekly < 0 || retainMonthly < 0 {
		return 0, fmt.Errorf("%w: days=%d weekly=%d monthly=%d",
			ErrInvalidRetention, retainDays, retainWeekly, retainMonthly)
	}

	backups, err := svc.ListBackups(ctx)
	if err != nil {
		return 0, err
	}

	retained := retainedBackups(backups, time.Now().UTC(), retainDays, retainWeekly, retainMonthly)

	deleted := 0
	for _, backup := range backups {
		if _, ok := retained[backup.ID]; ok {
			continue
		}

		if err := svc.deleteBackup(ctx, backup.ID); err != nil {
			return deleted, err
		}

		deleted++
	}

	svc.log.Info("old backups cleaned up",
		zap.Int("retained", len(retained)),
		zap.Int("deleted", deleted),
	)

	return deleted, nil
}

func (svc *service) deleteBackup(ctx context.Context, backupID string) error {
	if err := os.RemoveAll(svc.backupPath(backupID)); err != nil {
		return fmt.Errorf("delete backup %s: %w", backupID, err)
	}

	if svc.objects == nil {
		return nil
	}

	keys, err := svc.objects.List(ctx, backupID+"/")
	if err != nil {
		return fmt.Errorf("delete backup %s: list remote: %w", backupID, err)
	}

	for _, key := range keys {
		if err := svc.objects.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			return fmt.Errorf("delete backup %s: remote %s: %w", backupID, key, err)
		}
	}

	return nil
}
