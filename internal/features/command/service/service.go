package service

import (
	"context"
	"strings"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/common/validation"
	channelmodels "streambot-backend/internal/features/channel/models"
	"streambot-backend/internal/features/command/models"
	"streambot-backend/internal/features/command/repository"
)

// ChannelAccess is the ownership check borrowed from the channel service.
type ChannelAccess interface {
	Get(ctx context.Context, ownerID, channelID int64) (*channelmodels.Channel, error)
}

// Reloader receives the cache-invalidation signal after admin edits.
type Reloader interface {
	Reload(ctx context.Context, channelID int64) error
}

// CommandService is the admin-facing CRUD surface for chat commands.
type CommandService interface {
	Create(ctx context.Context, ownerID, channelID int64, req models.CommandCreate) (*models.Command, error)
	Update(ctx context.Context, ownerID, channelID int64, name string, req models.CommandUpdate) (*models.Command, error)
	Delete(ctx context.Context, ownerID, channelID int64, name string) error
	List(ctx context.Context, ownerID, channelID int64) ([]models.Command, error)
}

type commandService struct {
	repo     repository.CommandRepository
	channels ChannelAccess
	reloader Reloader
}

// NewCommandService wires the admin command service. reloader may be nil in
// tests.
func NewCommandService(repo repository.CommandRepository, channels ChannelAccess, reloader Reloader) CommandService {
	return &commandService{repo: repo, channels: channels, reloader: reloader}
}

func (s *commandService) Create(ctx context.Context, ownerID, channelID int64, req models.CommandCreate) (*models.Command, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid command payload")
	}
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	if !req.UserLevel.Valid() {
		return nil, apperrors.Newf(apperrors.ErrCodeValidation, "unknown user level %q", req.UserLevel)
	}

	cmd := &models.Command{
		ChannelID:        channelID,
		Name:             name,
		ResponseTemplate: req.ResponseTemplate,
		CooldownSeconds:  req.CooldownSeconds,
		UserLevel:        req.UserLevel,
		Enabled:          true,
	}
	if err := s.repo.Create(ctx, cmd); err != nil {
		return nil, err
	}
	s.reload(ctx, channelID)
	return cmd, nil
}

func (s *commandService) Update(ctx context.Context, ownerID, channelID int64, name string, req models.CommandUpdate) (*models.Command, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	if err := validation.Struct(req); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid command payload")
	}
	normalized, err := normalizeName(name)
	if err != nil {
		return nil, err
	}

	cmd, err := s.repo.GetByName(ctx, channelID, normalized)
	if err != nil {
		return nil, err
	}
	if req.ResponseTemplate != nil {
		cmd.ResponseTemplate = *req.ResponseTemplate
	}
	if req.CooldownSeconds != nil {
		cmd.CooldownSeconds = *req.CooldownSeconds
	}
	if req.UserLevel != nil {
		if !req.UserLevel.Valid() {
			return nil, apperrors.Newf(apperrors.ErrCodeValidation, "unknown user level %q", *req.UserLevel)
		}
		cmd.UserLevel = *req.UserLevel
	}
	if req.Enabled != nil {
		cmd.Enabled = *req.Enabled
	}
	if err := s.repo.Update(ctx, cmd); err != nil {
		return nil, err
	}
	s.reload(ctx, channelID)
	return cmd, nil
}

func (s *commandService) Delete(ctx context.Context, ownerID, channelID int64, name string) error {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return err
	}
	normalized, err := normalizeName(name)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, channelID, normalized); err != nil {
		return err
	}
	s.reload(ctx, channelID)
	return nil
}

func (s *commandService) List(ctx context.Context, ownerID, channelID int64) ([]models.Command, error) {
	if _, err := s.channels.Get(ctx, ownerID, channelID); err != nil {
		return nil, err
	}
	return s.repo.ListByChannel(ctx, channelID)
}

func (s *commandService) reload(ctx context.Context, channelID int64) {
	if s.reloader != nil {
		_ = s.reloader.Reload(ctx, channelID)
	}
}

// normalizeName lowercases and strips a leading prefix character so admins may
// submit either "hi" or "!hi".
func normalizeName(name string) (string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if len(name) > 0 && (name[0] == '!' || name[0] == '~') {
		name = name[1:]
	}
	if err := validation.ValidateCommandName(name); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid command name")
	}
	return name, nil
}
