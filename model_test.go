package vecstore

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigDecode(t *testing.T) {
	raw := `
embedding:
  baseURL: https://api.openai.com/v1
  model: text-embedding-3-small
  dimension: 1536
store:
  url: redis://localhost:6379/0
collections:
  content: content
  user: user
backup:
  dir: /var/lib/vecstore/backups
  s3:
    bucket: vecstore-backups
    prefix: prod
    region: eu-west-1
healthInterval: 30s
`

	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	assert.Equal(t, "text-embedding-3-small", cfg.Embedding.Model)
	assert.Equal(t, 1536, cfg.Embedding.Dimension)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Store.URL)
	assert.Equal(t, "vecstore-backups", cfg.Backup.S3.Bucket)
	assert.Equal(t, "eu-west-1", cfg.Backup.S3.Region)
	assert.Equal(t, 30*time.Second, cfg.HealthInterval.Duration())
}

func TestConfigApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()

	assert.Equal(t, "content", cfg.Collections.Content)
	assert.Equal(t, "user", cfg.Collections.User)
	assert.Equal(t, "/var/lib/vecstore/backups", cfg.Backup.Dir)
}

func TestDurationJSONRoundTrip(t *testing.T) {
	d := Duration(90 * time.Second)

	data, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(data))

	var decoded Duration
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, d, decoded)
}

func TestDurationInvalid(t *testing.T) {
	var d Duration
	assert.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	assert.Error(t, json.Unmarshal([]byte(`42`), &d))
}

func TestMetadataValidate(t *testing.T) {
	valid := Metadata{
		"title":        "a title",
		"content_type": "article",
		"score":        0.92,
		"rank":         3,
		"published":    true,
		"missing":      nil,
		"tags":         []string{"go", "testing"},
		"entities":     []any{"alpha", "beta"},
	}
	assert.NoError(t, valid.Validate())

	invalid := []Metadata{
		{"nested": map[string]any{"no": "maps"}},
		{"mixed": []any{"ok", 7}},
		{"binary": []byte("raw")},
	}

	for _, m := range invalid {
		assert.Error(t, m.Validate())
	}
}

func TestMetadataContentType(t *testing.T) {
	contentType, ok := Metadata{"content_type": "video"}.ContentType()
	assert.True(t, ok)
	assert.Equal(t, "video", contentType)

	_, ok = Metadata{}.ContentType()
	assert.False(t, ok)

	_, ok = Metadata{"content_type": 7}.ContentType()
	assert.False(t, ok)
}
