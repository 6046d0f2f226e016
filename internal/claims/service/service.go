// Package service starts player-profile claims and serves the claimant's
// own views: their latest claim and, once approved, their player profile.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"profileclaim/internal/claims/metrics"
	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/sentinel"
	"profileclaim/pkg/requestcontext"
)

type Service struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, opts ...Option) *Service {
	s := &Service{store: st, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// StartClaim opens a claim on playerID for userID.
//
// Preconditions are checked in order and each failure has its own code:
// premium role (forbidden), remaining attempts (attempts_exhausted), no
// active claim (conflict), player exists (not_found), player unclaimed
// (conflict). The checks, the attempt increment and the insert share one
// transaction; the increment and insert are conditional so a concurrent
// start cannot slip past the cap or create a second active claim.
func (s *Service) StartClaim(ctx context.Context, userID id.UserID, playerID id.PlayerID) (*claimmodels.StartResult, error) {
	start := time.Now()
	defer s.metrics.ObserveStart(start)

	claim := &claimmodels.ClaimRequest{
		ID:        id.NewClaimID(),
		UserID:    userID,
		PlayerID:  playerID,
		Status:    claimmodels.StatusPendingIdentity,
		CreatedAt: requestcontext.Now(ctx),
	}

	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		user, err := loadUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := checkEligible(user); err != nil {
			return err
		}
		if err := checkNoActiveClaim(ctx, tx, userID); err != nil {
			return err
		}
		if err := checkNotOwner(user); err != nil {
			return err
		}
		if err := checkPlayerAvailable(ctx, tx, playerID); err != nil {
			return err
		}

		if err := tx.Users().ConsumeClaimAttempt(ctx, userID, dirmodels.MaxClaimAttempts); err != nil {
			if errors.Is(err, sentinel.ErrStateChanged) {
				return reclassify(ctx, tx, userID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record claim attempt")
		}
		if err := tx.Claims().Create(ctx, claim); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "an active claim already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create claim")
		}
		return nil
	})
	if err != nil {
		code := dErrors.CodeOf(err)
		s.metrics.IncrementDenied(string(code))
		if code == dErrors.CodeInternal {
			s.logger.ErrorContext(ctx, "start claim failed",
				"user_id", userID,
				"player_id", playerID,
				"error", err,
			)
		}
		return nil, err
	}

	s.metrics.ClaimsStarted.Inc()
	s.logger.InfoContext(ctx, "claim started",
		"user_id", userID,
		"player_id", playerID,
		"claim_id", claim.ID,
	)
	return &claimmodels.StartResult{
		ClaimID:  claim.ID,
		Status:   claim.Status,
		NextStep: claimmodels.NextStepIdentityVerification,
	}, nil
}

func loadUser(ctx context.Context, tx store.Tx, userID id.UserID) (*dirmodels.User, error) {
	user, err := tx.Users().FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "premium membership required")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}
	return user, nil
}

func checkEligible(user *dirmodels.User) error {
	if user.Role != dirmodels.RolePremium {
		return dErrors.New(dErrors.CodeForbidden, "premium membership required")
	}
	if user.AttemptsExhausted() {
		return dErrors.New(dErrors.CodeAttemptsExhausted, "maximum claim attempts reached")
	}
	return nil
}

// checkNotOwner enforces one claimed player per user.
func checkNotOwner(user *dirmodels.User) error {
	if user.ClaimedPlayerID != nil {
		return dErrors.New(dErrors.CodeConflict, "user already owns a player")
	}
	return nil
}

func checkNoActiveClaim(ctx context.Context, tx store.Tx, userID id.UserID) error {
	_, err := tx.Claims().FindActiveByUser(ctx, userID)
	switch {
	case err == nil:
		return dErrors.New(dErrors.CodeConflict, "an active claim already exists")
	case errors.Is(err, sentinel.ErrNotFound):
		return nil
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load active claim")
	}
}

func checkPlayerAvailable(ctx context.Context, tx store.Tx, playerID id.PlayerID) error {
	player, err := tx.Players().FindByID(ctx, playerID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "player not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load player")
	}
	if player.IsClaimed {
		return dErrors.New(dErrors.CodeConflict, "player already claimed")
	}
	return nil
}

// reclassify maps a failed conditional increment back to the precondition
// that no longer holds.
func reclassify(ctx context.Context, tx store.Tx, userID id.UserID) error {
	user, err := loadUser(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := checkEligible(user); err != nil {
		return err
	}
	return dErrors.New(dErrors.CodeConflict, "claim state changed; retry")
}

// LatestClaim returns the user's most recent claim with its player, or nil
// when the user never started one.
func (s *Service) LatestClaim(ctx context.Context, userID id.UserID) (*claimmodels.ClaimSummary, error) {
	claim, err := s.store.Claims().FindLatestByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	player, err := s.store.Players().FindByID(ctx, claim.PlayerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load player")
	}
	return &claimmodels.ClaimSummary{
		ID:              claim.ID,
		PlayerID:        claim.PlayerID,
		Status:          claim.Status,
		ReviewRationale: claim.ReviewRationale,
		CreatedAt:       claim.CreatedAt,
		ReviewedAt:      claim.ReviewedAt,
		Player:          player.Summary(),
	}, nil
}
