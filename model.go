package vecstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"vecstore/embedding"
	"vecstore/index"
	"vecstore/persistence"
	"vecstore/storage"
)

var (
	ErrNotInitialized      = errors.New("vector store not initialized")
	ErrUserNotFound        = errors.New("user not found")
	ErrBackupNotFound      = errors.New("backup not found")
	ErrInvalidUserWeight   = errors.New("user weight must be between 0 and 1")
	ErrInvalidRetention    = errors.New("invalid retention parameters")
	ErrObjectStorageNotSet = errors.New("object storage not configured")

	// ErrDimensionMismatch is shared with the index package so callers can
	// match it regardless of which layer detected the disagreement.
	ErrDimensionMismatch = index.ErrDimensionMismatch
)

type Config struct {
	Embedding   embedding.Config   `yaml:"embedding"`
	Store       persistence.Config `yaml:"store"`
	Collections CollectionsConfig  `yaml:"collections"`
	Backup      BackupConfig       `yaml:"backup"`

	// HealthInterval controls how often the background monitor pings the
	// record store. Zero disables the monitor.
	HealthInterval Duration `yaml:"healthInterval"`
}

type CollectionsConfig struct {
	Content string `yaml:"content"`
	User    string `yaml:"user"`
}

type BackupConfig struct {
	Dir string         `yaml:"dir"`
	S3  storage.Config `yaml:"s3"`
}

func (cfg *Config) ApplyDefaults() {
	if cfg.Collections.Content == "" {
		cfg.Collections.Content = "content"
	}

	if cfg.Collections.User == "" {
		cfg.Collections.User = "user"
	}

	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = "/var/lib/vecstore/backups"
	}
}

type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalJSON() ([]byte, error) {
	str := d.Duration().String()
	return json.Marshal(str)
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() ([]byte, error) {
	str := d.Duration().String()
	return yaml.Marshal(str)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var str string
	if err := value.Decode(&str); err != nil {
		return err
	}

	duration, err := time.ParseDuration(str)
	if err != nil {
		return err
	}

	*d = Duration(duration)
	return nil
}

// Metadata is an open string-keyed attribute map. Values are restricted
// to a closed set of kinds: strings, numbers, booleans and string lists.
type Metadata map[string]any

func (m Metadata) Validate() error {
	for key, value := range m {
		switch v := value.(type) {
		case nil, string, bool,
			int, int32, int64, float32, float64:

		case []string:

		case []any:
			for _, elem := range v {
				if _, ok := elem.(string); !ok {
					return fmt.Errorf("metadata key %q: list values must be strings", key)
				}
			}

		default:
			return fmt.Errorf("metadata key %q: unsupported value type %T", key, value)
		}
	}

	return nil
}

// ContentType returns the content_type attribute, if present.
func (m Metadata) ContentType() (string, bool) {
	value, ok := m["content_type"]
	if !ok {
		return "", false
	}

	str, ok := value.(string)
	return str, ok
}

// ContentRecord is an indexed content item. Records are created once and
// never mutated in place; the content collection has no update or delete
// path outside of backup, restore and rebuild.
type ContentRecord struct {
	ID        string    `json:"id"`
	Embedding []float32 `json:"embedding"`
	Metadata  Metadata  `json:"metadata"`
	StoredAt  time.Time `json:"stored_at"`
}

// UserProfile is the caller-supplied portion of a user record.
type UserProfile struct {
	ID          string   `json:"id"`
	Interests   string   `json:"interests"`
	Preferences Metadata `json:"preferences,omitempty"`
	Role        string   `json:"role,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
}

// UserRecord is a stored user profile. The embedding is derived from the
// interests text and regenerated on every update.
type UserRecord struct {
	ID          string    `json:"id"`
	Embedding   []float32 `json:"embedding"`
	Interests   string    `json:"interests"`
	Preferences Metadata  `json:"preferences,omitempty"`
	Role        string    `json:"role,omitempty"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	StoredAt    time.Time `json:"stored_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ScoredItem is a content record paired with its similarity score.
type ScoredItem struct {
	ContentRecord
	Score float32 `json:"similarity"`
}

type SearchRequest struct {
	Query        string   `json:"query"`
	ContentTypes []string `json:"content_types,omitempty"`
	Limit        int      `json:"limit,omitempty"`

	// UserEmbedding personalizes the query: the search vector becomes
	// (1-UserWeight)*query + UserWeight*user, L2-normalized. Absent, the
	// raw query embedding is used and UserWeight is ignored.
	UserEmbedding []float32 `json:"user_embedding,omitempty"`
	UserWeight    float32   `json:"user_weight,omitempty"`
}

// Manifest describes one backup artifact set.
type Manifest struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	ContentVectors int       `json:"content_vectors"`
	UserVectors    int       `json:"user_vectors"`
	RecordKeys     int       `json:"record_keys"`
	Model          string    `json:"model"`
	Dimension      int       `json:"dimension"`
}

// ComponentCheck reports one integrity comparison of a backup component.
type ComponentCheck struct {
	Expected int  `json:"expected"`
	Actual   int  `json:"actual"`
	Verified bool `json:"verified"`
}

type ModelCheck struct {
	Name       string `json:"name"`
	Dimension  int    `json:"dimension"`
	Compatible bool   `json:"compatible"`
}

// Verification is the side-effect-free integrity report for one backup.
type Verification struct {
	BackupID     string         `json:"backup_id"`
	CreatedAt    time.Time      `json:"created_at"`
	ContentIndex ComponentCheck `json:"content_index"`
	UserIndex    ComponentCheck `json:"user_index"`
	Records      ComponentCheck `json:"records"`
	Model        ModelCheck     `json:"model"`
}
