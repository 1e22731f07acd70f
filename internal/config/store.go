package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/gridjob/internal/core/domain"
)

const settingsKey = "app_config"

// SettingsRepository is the minimal DB interface for settings persistence.
type SettingsRepository interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SaveSetting(ctx context.Context, key string, value string) error
}

// OnChangeFunc is called when settings are updated.
type OnChangeFunc func(cfg *domain.AppConfig)

// SettingsStore manages operator settings persisted as one JSON document.
type SettingsStore struct {
	mu       sync.RWMutex
	logger   *slog.Logger
	repo     SettingsRepository
	config   *domain.AppConfig
	onChange []OnChangeFunc
}

// NewSettingsStore loads settings from the repository, saving defaults on first run.
func NewSettingsStore(logger *slog.Logger, repo SettingsRepository) (*SettingsStore, error) {
	store := &SettingsStore{
		logger: logger,
		repo:   repo,
	}

	ctx := context.Background()
	cfg, err := store.loadFromDB(ctx)
	if err != nil {
		logger.Warn("no saved settings found, using defaults", "error", err)
		cfg = domain.DefaultConfig()
		if err := store.saveToDB(ctx, cfg); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
	}

	store.config = cfg
	return store, nil
}

// OnChange registers a callback for when settings are updated.
func (s *SettingsStore) OnChange(fn OnChangeFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// GetConfig returns a copy of the current config.
func (s *SettingsStore) GetConfig() *domain.AppConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp := *s.config
	return &cp
}

// UpdateConfig validates, persists, and triggers onChange callbacks.
// Zero values in the update keep the current setting.
func (s *SettingsStore) UpdateConfig(ctx context.Context, update *domain.AppConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged := *s.config
	if update.StorageUser != "" {
		merged.StorageUser = update.StorageUser
	}
	if update.Submitter.CrabBinary != "" {
		merged.Submitter.CrabBinary = update.Submitter.CrabBinary
	}
	if update.Submitter.MaxConcurrent != 0 {
		merged.Submitter.MaxConcurrent = update.Submitter.MaxConcurrent
	}
	if update.Submitter.CommandTimeout != 0 {
		merged.Submitter.CommandTimeout = update.Submitter.CommandTimeout
	}
	if update.DryRun.Image != "" {
		merged.DryRun.Image = update.DryRun.Image
	}

	if err := validate(&merged); err != nil {
		return err
	}

	if err := s.saveToDB(ctx, &merged); err != nil {
		return err
	}

	s.config = &merged
	s.logger.Info("settings updated",
		"storage_user", merged.StorageUser,
		"crab_binary", merged.Submitter.CrabBinary,
		"dry_run_image", merged.DryRun.Image,
	)

	for _, fn := range s.onChange {
		fn(&merged)
	}

	return nil
}

var ErrInvalidSettings = errors.New("invalid settings")

func validate(cfg *domain.AppConfig) error {
	if cfg.StorageUser == "" {
		return fmt.Errorf("%w: storage_user is required", ErrInvalidSettings)
	}
	if cfg.Submitter.MaxConcurrent < 0 {
		return fmt.Errorf("%w: max_concurrent must be positive", ErrInvalidSettings)
	}
	if cfg.Submitter.CommandTimeout < 0 {
		return fmt.Errorf("%w: command_timeout must be positive", ErrInvalidSettings)
	}
	return nil
}

func (s *SettingsStore) loadFromDB(ctx context.Context) (*domain.AppConfig, error) {
	raw, err := s.repo.GetSetting(ctx, settingsKey)
	if err != nil {
		return nil, err
	}

	cfg := domain.DefaultConfig()
	if err := json.Unmarshal([]byte(raw), cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	return cfg, nil
}

func (s *SettingsStore) saveToDB(ctx context.Context, cfg *domain.AppConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	return s.repo.SaveSetting(ctx, settingsKey, string(raw))
}
