// Package service runs the identity step of a claim: check the declared
// identity with the provider, record the attempt, and on success move the
// claim to admin review.
package service

import (
	"context"
	"errors"
	"log/slog"

	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	identitymodels "profileclaim/internal/identity/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/sentinel"
	"profileclaim/pkg/requestcontext"
)

// Verifier is satisfied by *provider.Adapter. It returns a definitive answer
// or a coded error (service_unavailable in strict mode).
type Verifier interface {
	Verify(ctx context.Context, identity identitymodels.DeclaredIdentity) (bool, error)
}

type Service struct {
	store    store.Store
	verifier Verifier
	hasher   Hasher
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func New(st store.Store, verifier Verifier, hasher Hasher, opts ...Option) *Service {
	s := &Service{
		store:    st,
		verifier: verifier,
		hasher:   hasher,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// VerifyIdentity checks the declared identity for the user's pending claim.
//
// The provider is called with no transaction open. Every attempt that gets
// an answer is recorded before the outcome is acted on, so failed checks
// leave an audit trail. A negative answer returns validation_failed and
// leaves the claim in pending_identity for another try.
func (s *Service) VerifyIdentity(ctx context.Context, userID id.UserID, declared identitymodels.DeclaredIdentity) (*identitymodels.VerifyResult, error) {
	declared = declared.Normalized()
	if err := declared.Validate(requestcontext.Now(ctx)); err != nil {
		return nil, err
	}

	claim, err := s.pendingClaim(ctx, userID)
	if err != nil {
		return nil, err
	}

	verified, err := s.verifier.Verify(ctx, declared)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			return nil, dErrors.Wrap(err, dErrors.CodeServiceUnavailable, "identity verification service is currently unavailable")
		}
		return nil, err
	}

	if err := s.record(ctx, userID, declared, verified); err != nil {
		return nil, err
	}

	if !verified {
		s.logger.InfoContext(ctx, "identity verification failed",
			"user_id", userID,
			"claim_id", claim.ID,
		)
		return nil, dErrors.New(dErrors.CodeValidationFailed,
			"identity could not be verified; check your details and try again")
	}

	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.Claims().ApplyTransition(ctx, claimmodels.Transition{
			ClaimID: claim.ID,
			From:    claimmodels.StatusPendingIdentity,
			To:      claimmodels.StatusPendingAdminReview,
		}); err != nil {
			return err
		}
		return tx.Users().SetVerificationStatus(ctx, userID, dirmodels.VerificationPendingAdminReview)
	})
	if err != nil {
		if errors.Is(err, sentinel.ErrStateChanged) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "claim is no longer awaiting identity verification")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance claim")
	}

	s.logger.InfoContext(ctx, "identity verified, claim queued for review",
		"user_id", userID,
		"claim_id", claim.ID,
	)
	return &identitymodels.VerifyResult{
		Verified: true,
		Status:   string(claimmodels.StatusPendingAdminReview),
	}, nil
}

func (s *Service) pendingClaim(ctx context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error) {
	claim, err := s.store.Claims().FindActiveByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no claim is awaiting identity verification")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	if claim.Status != claimmodels.StatusPendingIdentity {
		return nil, dErrors.New(dErrors.CodeNotFound, "no claim is awaiting identity verification")
	}
	return claim, nil
}

// record appends the attempt as its own durable write. The plaintext
// national ID goes no further than the hasher.
func (s *Service) record(ctx context.Context, userID id.UserID, declared identitymodels.DeclaredIdentity, verified bool) error {
	hash, err := s.hasher.Hash(declared.NationalID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}
	rec := &identitymodels.VerificationRecord{
		ID:             id.NewVerificationID(),
		UserID:         userID,
		NationalIDHash: hash,
		FirstName:      declared.FirstName,
		LastName:       declared.LastName,
		BirthYear:      declared.BirthYear,
		Verified:       verified,
		CreatedAt:      requestcontext.Now(ctx),
	}
	if err := s.store.IdentityRecords().Append(ctx, rec); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record verification")
	}
	return nil
}
