package vecstore

import (
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"vecstore/persistence/inmem"
)

const testDim = 4

// staticEmbedder returns fixed vectors for known texts and a
// deterministic hash-derived vector otherwise.
type staticEmbedder struct {
	dim     int
	vectors map[string][]float32
}

func (e *staticEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.vectors[text]; ok {
		return vec, nil
	}

	sum := sha256.Sum256([]byte(text))

	vec := make([]float32, e.dim)
	for i := range vec {
		vec[i] = float32(sum[i]) / 255
	}

	return vec, nil
}

func (e *staticEmbedder) Dimensions() int {
	return e.dim
}

func (e *staticEmbedder) Model() string {
	return "static-test-model"
}

func newTestEmbedder() *staticEmbedder {
	return &staticEmbedder{
		dim: testDim,
		vectors: map[string][]float32{
			"golang concurrency patterns": {1, 0, 0, 0},
			"sourdough baking basics":     {0, 1, 0, 0},
			"distributed systems design":  {0.9, 0.1, 0, 0},

			"query: programming":     {1, 0, 0, 0},
			"query: cooking":         {0, 1, 0, 0},
			"likes systems software": {0.8, 0, 0.2, 0},
			"likes pastry":           {0, 1, 0, 0},
		},
	}
}

type serviceTestSuite struct {
	suite.Suite
	ctx context.Context
	svc Service
}

func (suite *serviceTestSuite) SetupTest() {
	zap.ReplaceGlobals(zap.NewNop())

	ctx := context.Background()

	cfg := Config{}
	cfg.Backup.Dir = suite.T().TempDir()

	svc, err := NewService(ctx, cfg, newTestEmbedder(), inmem.NewStore(), nil)
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.ctx = ctx
	suite.svc = svc
}

func (suite *serviceTestSuite) addFixtures() {
	items := []struct {
		id          string
		text        string
		contentType string
	}{
		{"article-go", "golang concurrency patterns", "article"},
		{"article-bread", "sourdough baking basics", "recipe"},
		{"article-dist", "distributed systems design", "article"},
	}

	for _, item := range items {
		err := suite.svc.AddItem(suite.ctx, item.id, item.text, Metadata{
			"content_type": item.contentType,
			"title":        item.id,
		})
		suite.Require().NoError(err)
	}
}

func (suite *serviceTestSuite) TestAddItemAndSearch() {
	suite.addFixtures()

	content, users := suite.svc.Counts()
	suite.Equal(3, content)
	suite.Equal(0, users)

	results, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query: "query: programming",
	})
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.Require().Len(results, 3)
	suite.Equal("article-go", results[0].ID)
	suite.Equal("article-dist", results[1].ID)
	suite.Equal("article-bread", results[2].ID)
	suite.InDelta(1.0, results[0].Score, 1e-6)
	suite.GreaterOrEqual(results[0].Score, results[1].Score)
	suite.GreaterOrEqual(results[1].Score, results[2].Score)
}

func (suite *serviceTestSuite) TestSearchLimit() {
	suite.addFixtures()

	results, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query: "query: programming",
		Limit: 2,
	})
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.Len(results, 2)
}

func (suite *serviceTestSuite) TestSearchContentTypeFilter() {
	suite.addFixtures()

	results, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query:        "query: programming",
		ContentTypes: []string{"recipe"},
	})
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.Require().Len(results, 1)
	suite.Equal("article-bread", results[0].ID)
}

func (suite *serviceTestSuite) TestSearchEmptyIndex() {
	results, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query: "query: programming",
	})
	suite.NoError(err)
	suite.Empty(results)
}

func (suite *serviceTestSuite) TestSearchInvalidWeight() {
	suite.addFixtures()

	for _, weight := range []float32{-0.1, 1.5} {
		_, err := suite.svc.Search(suite.ctx, SearchRequest{
			Query:         "query: programming",
			UserEmbedding: []float32{0, 1, 0, 0},
			UserWeight:    weight,
		})
		suite.ErrorIs(err, ErrInvalidUserWeight)
	}
}

func (suite *serviceTestSuite) TestSearchZeroWeightKeepsOrder() {
	suite.addFixtures()

	plain, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query: "query: programming",
	})
	suite.Require().NoError(err)

	blended, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query:         "query: programming",
		UserEmbedding: []float32{0, 1, 0, 0},
		UserWeight:    0,
	})
	suite.Require().NoError(err)

	suite.Require().Len(blended, len(plain))
	for i := range plain {
		suite.Equal(plain[i].ID, blended[i].ID)
	}
}

func (suite *serviceTestSuite) TestPersonalizedSearchFullWeight() {
	suite.addFixtures()

	// With full user weight the query text is ignored and the user
	// embedding alone drives the ranking.
	results, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query:         "query: programming",
		UserEmbedding: []float32{0, 1, 0, 0},
		UserWeight:    1,
	})
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.Require().NotEmpty(results)
	suite.Equal("article-bread", results[0].ID)
}

func (suite *serviceTestSuite) TestSearchUserEmbeddingDimensionMismatch() {
	suite.addFixtures()

	_, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query:         "query: programming",
		UserEmbedding: []float32{0, 1},
		UserWeight:    0.5,
	})
	suite.Error(err)
}

func (suite *serviceTestSuite) TestAddItemInvalidMetadata() {
	err := suite.svc.AddItem(suite.ctx, "bad", "golang concurrency patterns", Metadata{
		"nested": map[string]any{"not": "allowed"},
	})
	suite.Error(err)

	content, _ := suite.svc.Counts()
	suite.Equal(0, content)
}

func (suite *serviceTestSuite) TestAddAndGetUser() {
	profile := UserProfile{
		ID:        "user-1",
		Interests: "likes systems software",
		Role:      "engineer",
		Preferences: Metadata{
			"digest": true,
		},
	}

	err := suite.svc.AddUser(suite.ctx, profile)
	suite.Require().NoError(err)

	_, users := suite.svc.Counts()
	suite.Equal(1, users)

	record, err := suite.svc.GetUser(suite.ctx, "user-1")
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.Require().NotNil(record)
	suite.Equal("user-1", record.ID)
	suite.Equal("likes systems software", record.Interests)
	suite.Equal("engineer", record.Role)
	suite.Len(record.Embedding, testDim)
	suite.False(record.StoredAt.IsZero())
	suite.Equal(record.StoredAt, record.UpdatedAt)
}

func (suite *serviceTestSuite) TestGetUserAbsent() {
	record, err := suite.svc.GetUser(suite.ctx, "nobody")
	suite.NoError(err)
	suite.Nil(record)
}

func (suite *serviceTestSuite) TestUpdateUser() {
	err := suite.svc.AddUser(suite.ctx, UserProfile{
		ID:        "user-1",
		Interests: "likes systems software",
	})
	suite.Require().NoError(err)

	before, err := suite.svc.GetUser(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Require().NotNil(before)

	err = suite.svc.UpdateUser(suite.ctx, UserProfile{
		ID:        "user-1",
		Interests: "likes pastry",
	})
	suite.Require().NoError(err)

	after, err := suite.svc.GetUser(suite.ctx, "user-1")
	suite.Require().NoError(err)
	suite.Require().NotNil(after)

	suite.Equal("likes pastry", after.Interests)
	suite.Equal(before.StoredAt, after.StoredAt)
	suite.False(after.UpdatedAt.Before(before.UpdatedAt))
	suite.NotEqual(before.Embedding, after.Embedding)

	// The index must track the new embedding, not grow a second entry.
	_, users := suite.svc.Counts()
	suite.Equal(1, users)
}

func (suite *serviceTestSuite) TestUpdateUserNotFound() {
	err := suite.svc.UpdateUser(suite.ctx, UserProfile{
		ID:        "ghost",
		Interests: "likes pastry",
	})
	suite.ErrorIs(err, ErrUserNotFound)

	_, users := suite.svc.Counts()
	suite.Equal(0, users)
}

func (suite *serviceTestSuite) TestFindSimilarToUser() {
	suite.addFixtures()

	err := suite.svc.AddUser(suite.ctx, UserProfile{
		ID:        "user-1",
		Interests: "likes systems software",
	})
	suite.Require().NoError(err)

	results, err := suite.svc.FindSimilarToUser(suite.ctx, "user-1", nil, 2)
	if err != nil {
		suite.FailNow(err.Error())
		return
	}

	suite.Require().Len(results, 2)
	suite.Equal("article-go", results[0].ID)
}

func (suite *serviceTestSuite) TestFindSimilarToUserNotFound() {
	suite.addFixtures()

	_, err := suite.svc.FindSimilarToUser(suite.ctx, "ghost", nil, 5)
	suite.ErrorIs(err, ErrUserNotFound)
}

func (suite *serviceTestSuite) TestRebuildFromStore() {
	suite.addFixtures()

	err := suite.svc.AddUser(suite.ctx, UserProfile{
		ID:        "user-1",
		Interests: "likes systems software",
	})
	suite.Require().NoError(err)

	err = suite.svc.Rebuild(suite.ctx)
	suite.Require().NoError(err)

	content, users := suite.svc.Counts()
	suite.Equal(3, content)
	suite.Equal(1, users)

	results, err := suite.svc.Search(suite.ctx, SearchRequest{
		Query: "query: programming",
	})
	suite.Require().NoError(err)
	suite.Require().NotEmpty(results)
	suite.Equal("article-go", results[0].ID)
}

func (suite *serviceTestSuite) TestNotInitializedAfterClose() {
	suite.Require().NoError(suite.svc.Close())

	err := suite.svc.AddItem(suite.ctx, "late", "golang concurrency patterns", nil)
	suite.ErrorIs(err, ErrNotInitialized)

	_, err = suite.svc.Search(suite.ctx, SearchRequest{Query: "query: programming"})
	suite.ErrorIs(err, ErrNotInitialized)

	suite.False(suite.svc.Healthy(suite.ctx))

	suite.svc = nil
}

func (suite *serviceTestSuite) TestHealthy() {
	suite.True(suite.svc.Healthy(suite.ctx))
}

func (suite *serviceTestSuite) TearDownTest() {
	if suite.svc != nil {
		suite.svc.Close()
	}

	suite.svc = nil
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(serviceTestSuite))
}

func TestNewServiceRequiresEmbedder(t *testing.T) {
	_, err := NewService(context.Background(), Config{}, nil, inmem.NewStore(), nil)
	if err == nil {
		t.Fatal("expected an error without an embedder")
	}
}
