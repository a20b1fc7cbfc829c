package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bastionhq/bastion/internal/audit"
	"github.com/bastionhq/bastion/internal/ipfilter"
	"github.com/bastionhq/bastion/internal/models"
)

// SettingsService manages the IP allow-list configuration. Every change is
// audited with a before/after diff.
type SettingsService struct {
	settings SettingsRepository
	recorder *audit.Recorder
	logger   *slog.Logger
}

// NewSettingsService creates a new SettingsService
func NewSettingsService(settings SettingsRepository, recorder *audit.Recorder, logger *slog.Logger) *SettingsService {
	return &SettingsService{settings: settings, recorder: recorder, logger: logger}
}

// Get returns the current security settings
func (s *SettingsService) Get(ctx context.Context) (*models.SecuritySettings, error) {
	settings, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("failed to load security settings", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return settings, nil
}

// UpdateAllowList replaces the allow-list configuration. Every rule must pass
// syntactic validation; one bad rule rejects the whole update so a typo can
// never silently lock anyone out or let anyone in.
func (s *SettingsService) UpdateAllowList(ctx context.Context, actorID uuid.UUID, enabled bool, rules []string, ipAddress string) (*models.SecuritySettings, error) {
	for _, rule := range rules {
		if !ipfilter.IsValidRule(rule) {
			return nil, fmt.Errorf("%w: invalid allow-list rule %q", models.ErrBadRequest, rule)
		}
	}

	current, err := s.settings.Get(ctx)
	if err != nil {
		s.logger.Error("failed to load security settings", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	updated, err := s.settings.Update(ctx, &models.SecuritySettings{
		AllowListEnabled: enabled,
		AllowListRules:   rules,
	})
	if err != nil {
		s.logger.Error("failed to update security settings", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	entityID := "allow_list"
	s.recorder.Record(ctx, audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUpdate,
		EntityType: models.AuditEntitySettings,
		EntityID:   &entityID,
		Before: models.Snapshot{
			"enabled": current.AllowListEnabled,
			"rules":   current.AllowListRules,
		},
		After: models.Snapshot{
			"enabled": updated.AllowListEnabled,
			"rules":   updated.AllowListRules,
		},
		IPAddress: &ipAddress,
	})

	s.logger.Info("allow list updated",
		slog.Bool("enabled", updated.AllowListEnabled),
		slog.Int("rule_count", len(updated.AllowListRules)))

	return updated, nil
}
