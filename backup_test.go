package vecstore

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"vecstore/persistence"
	"vecstore/persistence/inmem"
	"vecstore/storage"
)

// fakeObjectStorage keeps uploaded objects in memory.
type fakeObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeObjectStorage() *fakeObjectStorage {
	return &fakeObjectStorage{
		objects: make(map[string][]byte),
	}
}

func (s *fakeObjectStorage) Put(ctx context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := make([]byte, len(data))
	copy(stored, data)

	s.objects[key] = stored
	return nil
}

func (s *fakeObjectStorage) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}

	return data, nil
}

func (s *fakeObjectStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0)
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}

	sort.Strings(keys)
	return keys, nil
}

func (s *fakeObjectStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

type backupTestSuite struct {
	suite.Suite
	ctx       context.Context
	backupDir string
	store     persistence.Store
	svc       Service
}

func (suite *backupTestSuite) SetupTest() {
	zap.ReplaceGlobals(zap.NewNop())

	suite.ctx = context.Background()
	suite.backupDir = suite.T().TempDir()
	suite.store = inmem.NewStore()
	suite.svc = suite.newService(suite.store, nil)
}

func (suite *backupTestSuite) newService(store persistence.Store, objects storage.ObjectStorage) Service {
	cfg := Config{}
	cfg.Backup.Dir = suite.backupDir

	svc, err := NewService(suite.ctx, cfg, newTestEmbedder(), store, objects)
	suite.Require().NoError(err)

	return svc
}

func (suite *backupTestSuite) seed() {
	err := suite.svc.AddItem(suite.ctx, "article-go", "golang concurrency patterns", Metadata{
		"content_type": "article",
	})
	suite.Require().NoError(err)

	err = suite.svc.AddItem(suite.ctx, "article-bread", "sourdough baking basics", Metadata{
		"content_type": "recipe",
	})
	suite.Require().NoError(err)

	err = suite.svc.AddUser(suite.ctx, UserProfile{
		ID:        "user-1",
		Interests: "likes systems software",
	})
	suite.Require().NoError(err)
}

func (suite *backupTestSuite) TestBackupGeneratesTimestampID() {
	suite.seed()

	id, err := suite.svc.Backup(suite.ctx, "", false)
	suite.Require().NoError(err)

	suite.Regexp(regexp.MustCompile(`^\d{8}_\d{6}$`), id)
	suite.DirExists(filepath.Join(suite.backupDir, id))
}

func (suite *backupTestSuite) TestBackupRestoreRoundTrip() {
	suite.seed()

	id, err := suite.svc.Backup(suite.ctx, "roundtrip", false)
	suite.Require().NoError(err)
	suite.Equal("roundtrip", id)

	for _, name := range []string{"manifest.json", "records.json", "content_index.gob", "user_index.gob"} {
		suite.FileExists(filepath.Join(suite.backupDir, id, name))
	}

	// Restore into a service over an empty record store.
	fresh := suite.newService(inmem.NewStore(), nil)
	defer fresh.Close()

	err = fresh.Restore(suite.ctx, id, false)
	suite.Require().NoError(err)

	content, users := fresh.Counts()
	suite.Equal(2, content)
	suite.Equal(1, users)

	record, err := fresh.GetUser(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Require().NotNil(record)
	suite.Equal("likes systems software", record.Interests)

	results, err := fresh.Search(suite.ctx, SearchRequest{Query: "query: programming"})
	suite.Require().NoError(err)
	suite.Require().NotEmpty(results)
	suite.Equal("article-go", results[0].ID)
}

func (suite *backupTestSuite) TestRestoreMissingBackup() {
	err := suite.svc.Restore(suite.ctx, "nope", false)
	suite.ErrorIs(err, ErrBackupNotFound)
}

func (suite *backupTestSuite) TestRestoreDimensionMismatchLeavesStoreUntouched() {
	suite.seed()

	id, err := suite.svc.Backup(suite.ctx, "wrongdim", false)
	suite.Require().NoError(err)

	manifestPath := filepath.Join(suite.backupDir, id, "manifest.json")

	data, err := os.ReadFile(manifestPath)
	suite.Require().NoError(err)

	var manifest Manifest
	suite.Require().NoError(json.Unmarshal(data, &manifest))

	manifest.Dimension = testDim + 1

	data, err = json.Marshal(&manifest)
	suite.Require().NoError(err)
	suite.Require().NoError(os.WriteFile(manifestPath, data, 0o644))

	err = suite.svc.Restore(suite.ctx, id, false)
	suite.ErrorIs(err, ErrDimensionMismatch)

	content, users := suite.svc.Counts()
	suite.Equal(2, content)
	suite.Equal(1, users)
}

func (suite *backupTestSuite) TestVerifyBackup() {
	suite.seed()

	id, err := suite.svc.Backup(suite.ctx, "verify-me", false)
	suite.Require().NoError(err)

	verification, err := suite.svc.VerifyBackup(suite.ctx, id)
	suite.Require().NoError(err)

	suite.Equal(id, verification.BackupID)
	suite.True(verification.ContentIndex.Verified)
	suite.True(verification.UserIndex.Verified)
	suite.True(verification.Records.Verified)
	suite.True(verification.Model.Compatible)
	suite.Equal(2, verification.ContentIndex.Actual)
	suite.Equal(1, verification.UserIndex.Actual)
	suite.Equal(3, verification.Records.Actual)
}

func (suite *backupTestSuite) TestVerifyDetectsRecordTampering() {
	suite.seed()

	id, err := suite.svc.Backup(suite.ctx, "tampered", false)
	suite.Require().NoError(err)

	recordsPath := filepath.Join(suite.backupDir, id, "records.json")

	data, err := os.ReadFile(recordsPath)
	suite.Require().NoError(err)

	var dump []recordDump
	suite.Require().NoError(json.Unmarshal(data, &dump))
	suite.Require().NotEmpty(dump)

	data, err = json.Marshal(dump[:len(dump)-1])
	suite.Require().NoError(err)
	suite.Require().NoError(os.WriteFile(recordsPath, data, 0o644))

	verification, err := suite.svc.VerifyBackup(suite.ctx, id)
	suite.Require().NoError(err)

	suite.False(verification.Records.Verified)
	suite.True(verification.ContentIndex.Verified)
	suite.True(verification.UserIndex.Verified)
}

func (suite *backupTestSuite) TestVerifyMissingBackup() {
	_, err := suite.svc.VerifyBackup(suite.ctx, "nope")
	suite.ErrorIs(err, ErrBackupNotFound)
}

func (suite *backupTestSuite) TestUploadWithoutObjectStorage() {
	suite.seed()

	_, err := suite.svc.Backup(suite.ctx, "remote", true)
	suite.ErrorIs(err, ErrObjectStorageNotSet)
}

func (suite *backupTestSuite) TestRemoteBackupRoundTrip() {
	objects := newFakeObjectStorage()

	suite.svc.Close()
	suite.svc = suite.newService(suite.store, objects)

	suite.seed()

	id, err := suite.svc.Backup(suite.ctx, "offsite", true)
	suite.Require().NoError(err)

	keys, err := objects.List(suite.ctx, id+"/")
	suite.Require().NoError(err)
	suite.Len(keys, 4)

	// Drop the local artifact set; restore must fall back to download.
	suite.Require().NoError(os.RemoveAll(filepath.Join(suite.backupDir, id)))

	fresh := suite.newService(inmem.NewStore(), objects)
	defer fresh.Close()

	err = fresh.Restore(suite.ctx, id, true)
	suite.Require().NoError(err)

	content, users := fresh.Counts()
	suite.Equal(2, content)
	suite.Equal(1, users)
}

func (suite *backupTestSuite) TestListBackupsMergesLocalAndRemote() {
	objects := newFakeObjectStorage()

	suite.svc.Close()
	suite.svc = suite.newService(suite.store, objects)

	suite.seed()

	_, err := suite.svc.Backup(suite.ctx, "local-only", false)
	suite.Require().NoError(err)

	id, err := suite.svc.Backup(suite.ctx, "both", true)
	suite.Require().NoError(err)

	// A backup known only to object storage, as another instance would
	// leave behind.
	suite.Require().NoError(os.RemoveAll(filepath.Join(suite.backupDir, id)))

	manifests, err := suite.svc.ListBackups(suite.ctx)
	suite.Require().NoError(err)

	ids := make([]string, 0, len(manifests))
	for _, manifest := range manifests {
		ids = append(ids, manifest.ID)
	}

	suite.ElementsMatch([]string{"local-only", "both"}, ids)
}

func (suite *backupTestSuite) TestCleanupInvalidRetention() {
	_, err := suite.svc.CleanupOldBackups(suite.ctx, 0, 4, 6)
	suite.ErrorIs(err, ErrInvalidRetention)

	_, err = suite.svc.CleanupOldBackups(suite.ctx, 7, -1, 6)
	suite.ErrorIs(err, ErrInvalidRetention)
}

func (suite *backupTestSuite) TestCleanupDeletesExpiredBackups() {
	suite.seed()

	// One fresh backup, kept by the daily window.
	_, err := suite.svc.Backup(suite.ctx, "fresh", false)
	suite.Require().NoError(err)

	// One synthetic ancient backup, expired under any policy.
	old := Manifest{
		ID:        "ancient",
		CreatedAt: mustParseTime(suite.T(), "2019-03-09T12:00:00Z"),
		Model:     "static-test-model",
		Dimension: testDim,
	}

	dir := filepath.Join(suite.backupDir, old.ID)
	suite.Require().NoError(os.MkdirAll(dir, 0o755))

	data, err := json.Marshal(&old)
	suite.Require().NoError(err)
	suite.Require().NoError(os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o644))

	deleted, err := suite.svc.CleanupOldBackups(suite.ctx, 7, 4, 6)
	suite.Require().NoError(err)

	suite.Equal(1, deleted)
	suite.NoDirExists(dir)
	suite.DirExists(filepath.Join(suite.backupDir, "fresh"))
}

func (suite *backupTestSuite) TearDownTest() {
	if suite.svc != nil {
		suite.svc.Close()
	}

	suite.svc = nil
	suite.store = nil
}

func TestBackupTestSuite(t *testing.T) {
	suite.Run(t, new(backupTestSuite))
}
