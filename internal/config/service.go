package config

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tildaslashalef/congregate/internal/loggy"
)

// SettingsService layers persisted settings over the env configuration
type SettingsService struct {
	repo   SettingsRepository
	config *Config
	logger *loggy.Logger
}

// NewSettingsService creates a new settings service
func NewSettingsService(repo SettingsRepository, config *Config, logger *loggy.Logger) *SettingsService {
	return &SettingsService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// Repository returns the underlying repository
func (s *SettingsService) Repository() SettingsRepository {
	return s.repo
}

// Apply overlays persisted remote and sync settings onto the config.
// Empty stored values never clear an env value.
func (s *SettingsService) Apply(ctx context.Context) error {
	settings, err := s.repo.GetSettings(ctx, "")
	if err != nil {
		return fmt.Errorf("loading settings: %w", err)
	}

	if v := settings[KeyRemoteURL]; v != "" {
		s.config.Remote.URL = v
	}
	if v := settings[KeyRemoteAPIKey]; v != "" {
		s.config.Remote.APIKey = v
	}
	if v := settings[KeyRemoteToken]; v != "" {
		s.config.Remote.Token = v
	}
	if v := settings[KeyRemoteDeviceName]; v != "" {
		s.config.Remote.DeviceName = v
	}
	if v := settings[KeySyncAuto]; v != "" {
		if auto, err := strconv.ParseBool(v); err == nil {
			s.config.Sync.AutoSync = auto
		}
	}

	return s.config.validateRemote()
}

// Set validates and persists one known setting, updating the live config
func (s *SettingsService) Set(ctx context.Context, key, value string) error {
	next := *s.config
	switch key {
	case KeyRemoteURL:
		next.Remote.URL = value
	case KeyRemoteAPIKey:
		next.Remote.APIKey = value
	case KeyRemoteToken:
		next.Remote.Token = value
	case KeyRemoteDeviceName:
		next.Remote.DeviceName = value
	case KeySyncAuto:
		auto, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%s must be true or false", key)
		}
		next.Sync.AutoSync = auto
	default:
		return fmt.Errorf("unknown setting %q", key)
	}

	if err := next.validateRemote(); err != nil {
		return err
	}

	if err := s.repo.SetSetting(ctx, key, value); err != nil {
		return err
	}

	*s.config = next
	s.logger.Info("Setting updated", "key", key)
	return nil
}

// Keys lists the settings Set accepts
func Keys() []string {
	return []string{KeyRemoteURL, KeyRemoteAPIKey, KeyRemoteToken, KeyRemoteDeviceName, KeySyncAuto}
}
