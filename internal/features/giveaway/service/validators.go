package service

import (
	"context"
	"fmt"

	apperrors "streambot-backend/internal/common/errors"
	"streambot-backend/internal/features/giveaway/models"
	pointsmodels "streambot-backend/internal/features/points/models"
)

// ViewerRegistry answers follower and subscriber questions about a viewer.
type ViewerRegistry interface {
	IsFollower(ctx context.Context, channelID int64, userID string) (bool, error)
	SubscriberTier(ctx context.Context, channelID int64, userID string) (int, bool, error)
}

// BalanceSource exposes a viewer's points balance and watch time.
type BalanceSource interface {
	Balance(ctx context.Context, channelID int64, userID string) (*pointsmodels.Balance, error)
}

// Validator checks one requirement for an entering viewer. It returns whether
// the requirement holds and, when it does not, a human-readable reason.
type Validator interface {
	Validate(ctx context.Context, channelID int64, userID string, req models.Requirement) (bool, string, error)
}

// ValidatorChain evaluates a giveaway's requirements in declaration order;
// the first failing requirement short-circuits with its reason.
type ValidatorChain struct {
	validators map[models.RequirementType]Validator
}

// NewValidatorChain builds the default chain over the registry and balances.
func NewValidatorChain(registry ViewerRegistry, balances BalanceSource) *ValidatorChain {
	return &ValidatorChain{validators: map[models.RequirementType]Validator{
		models.RequirementFollower:   followerValidator{registry},
		models.RequirementSubscriber: subscriberValidator{registry},
		models.RequirementPoints:     pointsValidator{balances},
		models.RequirementWatchTime:  watchTimeValidator{balances},
		models.RequirementCustom:     customValidator{},
	}}
}

// Check runs every requirement. A nil error with ok=false carries the first
// failure reason.
func (c *ValidatorChain) Check(ctx context.Context, channelID int64, userID string, requirements []models.Requirement) (bool, string, error) {
	for _, req := range requirements {
		v, ok := c.validators[req.Type]
		if !ok {
			return false, fmt.Sprintf("unknown requirement %q", req.Type),
				apperrors.Newf(apperrors.ErrCodeValidation, "unknown requirement type %q", req.Type)
		}
		passed, reason, err := v.Validate(ctx, channelID, userID, req)
		if err != nil {
			return false, "", err
		}
		if !passed {
			return false, reason, nil
		}
	}
	return true, "", nil
}

type followerValidator struct {
	registry ViewerRegistry
}

func (v followerValidator) Validate(ctx context.Context, channelID int64, userID string, _ models.Requirement) (bool, string, error) {
	ok, err := v.registry.IsFollower(ctx, channelID, userID)
	if err != nil {
		return false, "", err
	}
	if !ok {
		return false, "you must follow the channel to enter", nil
	}
	return true, "", nil
}

type subscriberValidator struct {
	registry ViewerRegistry
}

func (v subscriberValidator) Validate(ctx context.Context, channelID int64, userID string, req models.Requirement) (bool, string, error) {
	tier, subscribed, err := v.registry.SubscriberTier(ctx, channelID, userID)
	if err != nil {
		return false, "", err
	}
	if !subscribed {
		return false, "you must be subscribed to enter", nil
	}
	if req.MinTier > 0 && tier < req.MinTier {
		return false, fmt.Sprintf("a tier %d subscription or higher is required", req.MinTier), nil
	}
	return true, "", nil
}

type pointsValidator struct {
	balances BalanceSource
}

func (v pointsValidator) Validate(ctx context.Context, channelID int64, userID string, req models.Requirement) (bool, string, error) {
	b, err := v.balances.Balance(ctx, channelID, userID)
	if err != nil {
		return false, "", err
	}
	if b.Points < req.MinPoints {
		return false, fmt.Sprintf("at least %d points are required to enter", req.MinPoints), nil
	}
	return true, "", nil
}

type watchTimeValidator struct {
	balances BalanceSource
}

func (v watchTimeValidator) Validate(ctx context.Context, channelID int64, userID string, req models.Requirement) (bool, string, error) {
	b, err := v.balances.Balance(ctx, channelID, userID)
	if err != nil {
		return false, "", err
	}
	if b.WatchSeconds < req.MinSeconds {
		return false, "you have not watched the channel long enough to enter", nil
	}
	return true, "", nil
}

// customValidator accepts every entry; custom requirements are enforced by
// moderators outside the runtime and carried on the giveaway for display.
type customValidator struct{}

func (customValidator) Validate(context.Context, int64, string, models.Requirement) (bool, string, error) {
	return true, "", nil
}
