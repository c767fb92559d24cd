// Package store is the typed settings layer over the database: a small
// enumerated set of JSON-valued keys with a read-through cache, plus the
// user allow-list.
package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/shipmatebot/shipmate/internal/models"
	"gorm.io/gorm"
)

// Storage keys. Every persisted value is bound to exactly one of these.
const (
	keyProjectConfig = "project_config"
	keyBotSettings   = "bot_settings"
)

// ProjectConfig holds the operator-configurable build settings.
type ProjectConfig struct {
	ProjectPath string   `json:"project_path"`
	Targets     []string `json:"targets"`
}

// BotSettings holds the last-used upload parameters, used to pre-fill
// subsequent dialogs.
type BotSettings struct {
	LastBranch  string `json:"last_branch"`
	LastVersion string `json:"last_version"` // "version build", e.g. "1.0 3"
}

// Defaults used until the operator sets explicit values.
var (
	DefaultProjectConfig = ProjectConfig{
		ProjectPath: "~/projects/app",
		Targets:     []string{"App"},
	}
	DefaultBotSettings = BotSettings{
		LastBranch:  "master",
		LastVersion: "1.0 1",
	}
)

// Store reads and writes typed settings with an in-memory read-through
// cache, and manages the user allow-list.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	cache map[string]string // key -> raw JSON, filled on first read
}

// New creates a Store. The database must already be migrated.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db, cache: make(map[string]string)}, nil
}

// ProjectConfig returns the stored project config, or the default if none
// was ever set.
func (s *Store) ProjectConfig() ProjectConfig {
	cfg := DefaultProjectConfig
	s.read(keyProjectConfig, &cfg)
	return cfg
}

// SetProjectConfig persists the project config.
func (s *Store) SetProjectConfig(cfg ProjectConfig) error {
	return s.write(keyProjectConfig, cfg)
}

// BotSettings returns the stored bot settings, or the default if none was
// ever set.
func (s *Store) BotSettings() BotSettings {
	bs := DefaultBotSettings
	s.read(keyBotSettings, &bs)
	return bs
}

// SetBotSettings persists the bot settings.
func (s *Store) SetBotSettings(bs BotSettings) error {
	return s.write(keyBotSettings, bs)
}

// read unmarshals the value for key into out. On a miss or decode error the
// caller's pre-filled default is left untouched.
func (s *Store) read(key string, out interface{}) {
	s.mu.Lock()
	raw, ok := s.cache[key]
	s.mu.Unlock()

	if !ok {
		var setting models.Setting
		if err := s.db.First(&setting, "key = ?", key).Error; err != nil {
			return
		}
		raw = setting.Value
		s.mu.Lock()
		s.cache[key] = raw
		s.mu.Unlock()
	}

	// A corrupt row decodes as far as it can; the caller's default covers
	// the rest.
	_ = json.Unmarshal([]byte(raw), out)
}

// write persists the value for key and refreshes the cache.
func (s *Store) write(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s: %w", key, err)
	}
	setting := models.Setting{Key: key, Value: string(data)}
	if err := s.db.Save(&setting).Error; err != nil {
		return fmt.Errorf("store: write %s: %w", key, err)
	}
	s.mu.Lock()
	s.cache[key] = string(data)
	s.mu.Unlock()
	return nil
}
