package service

import (
	"context"
	"errors"

	dirmodels "profileclaim/internal/directory/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/sentinel"
	"profileclaim/pkg/requestcontext"
)

// UpdateProfile applies an owner edit to a claimed player's profile. Only a
// premium user whose approved claim covers playerID may edit it.
func (s *Service) UpdateProfile(ctx context.Context, userID id.UserID, playerID id.PlayerID, update dirmodels.ProfileUpdate) (*dirmodels.PlayerProfile, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	var saved *dirmodels.PlayerProfile
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		user, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeForbidden, "not the owner of this profile")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		if user.Role != dirmodels.RolePremium || !user.OwnsPlayer(playerID) {
			return dErrors.New(dErrors.CodeForbidden, "not the owner of this profile")
		}

		profile, err := tx.Players().FindProfile(ctx, playerID)
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			profile = &dirmodels.PlayerProfile{PlayerID: playerID}
		case err != nil:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
		}

		update.Apply(profile)
		profile.UpdatedAt = requestcontext.Now(ctx)
		if err := tx.Players().SaveProfile(ctx, profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
		}
		saved = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ProfileUpdates.Inc()
	s.logger.InfoContext(ctx, "player profile updated",
		"user_id", userID,
		"player_id", playerID,
	)
	return saved, nil
}
