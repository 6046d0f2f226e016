// Package service adjudicates claims waiting for admin review and serves the
// admin views of the queue, the directory counts and user roles.
//
// Every decision commits in one transaction together with its audit ledger
// entry. If the entry cannot be written the decision is rolled back.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"profileclaim/internal/admin/metrics"
	adminmodels "profileclaim/internal/admin/models"
	auditmodels "profileclaim/internal/audit/models"
	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/middleware/metadata"
	"profileclaim/pkg/platform/sentinel"
	"profileclaim/pkg/requestcontext"
)

// Recorder appends ledger entries through the caller's transaction.
// Satisfied by *audit.Ledger.
type Recorder interface {
	Record(ctx context.Context, w store.AuditLog, entry auditmodels.Entry) error
}

type Service struct {
	store   store.Store
	ledger  Recorder
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func New(st store.Store, ledger Recorder, opts ...Option) *Service {
	s := &Service{
		store:  st,
		ledger: ledger,
		logger: slog.Default(),
		tracer: otel.Tracer("profileclaim/admin"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(nil)
	}
	return s
}

// ListPendingReviews returns the review queue oldest first, each claim joined
// with its claimant, the claimant's latest identity check and the player.
func (s *Service) ListPendingReviews(ctx context.Context) ([]*adminmodels.PendingReview, error) {
	claims, err := s.store.Claims().ListByStatus(ctx, claimmodels.StatusPendingAdminReview)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list pending claims")
	}

	out := make([]*adminmodels.PendingReview, 0, len(claims))
	for _, c := range claims {
		review, err := s.pendingReview(ctx, c)
		if err != nil {
			return nil, err
		}
		out = append(out, review)
	}
	return out, nil
}

func (s *Service) pendingReview(ctx context.Context, c *claimmodels.ClaimRequest) (*adminmodels.PendingReview, error) {
	user, err := s.store.Users().FindByID(ctx, c.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claimant")
	}
	player, err := s.store.Players().FindByID(ctx, c.PlayerID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load player")
	}
	review := &adminmodels.PendingReview{
		ClaimID:   c.ID,
		Status:    c.Status,
		CreatedAt: c.CreatedAt,
		User: adminmodels.ReviewUser{
			ID:                 user.ID,
			Email:              user.Email,
			VerificationStatus: user.VerificationStatus,
		},
		Player: player.Summary(),
	}

	rec, err := s.store.IdentityRecords().LatestByUser(ctx, c.UserID)
	switch {
	case err == nil:
		summary := rec.Summary()
		review.Identity = &summary
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load identity verification")
	}
	return review, nil
}

// Approve grants the claimed player to the claimant. The claim transition,
// the player's ownership flag, the user's assignment and the CLAIM_APPROVED
// entry commit together or not at all.
func (s *Service) Approve(ctx context.Context, claimID id.ClaimID, adminID id.UserID) (*adminmodels.Decision, error) {
	start := time.Now()
	defer s.metrics.ObserveDecision(start)
	ctx, span := s.tracer.Start(ctx, "admin.claim.approve",
		trace.WithAttributes(attribute.String("claim.id", claimID.String())))
	defer span.End()

	claim, err := s.reviewable(ctx, claimID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}
	player, err := s.store.Players().FindByID(ctx, claim.PlayerID)
	if err != nil {
		return nil, s.fail(ctx, span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load player"))
	}
	if player.IsClaimed {
		return nil, s.fail(ctx, span, dErrors.New(dErrors.CodeConflict, "player already claimed"))
	}
	claimant, err := s.store.Users().FindByID(ctx, claim.UserID)
	if err != nil {
		return nil, s.fail(ctx, span, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claimant"))
	}
	if claimant.ClaimedPlayerID != nil {
		return nil, s.fail(ctx, span, dErrors.New(dErrors.CodeConflict, "user already owns a player"))
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.Claims().ApplyTransition(ctx, claimmodels.Transition{
			ClaimID:    claim.ID,
			From:       claimmodels.StatusPendingAdminReview,
			To:         claimmodels.StatusApproved,
			ReviewedAt: &now,
		}); err != nil {
			return conflictOr(err, "claim already processed", "failed to approve claim")
		}
		if err := tx.Players().MarkClaimed(ctx, claim.PlayerID, claim.UserID); err != nil {
			if errors.Is(err, sentinel.ErrDuplicate) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "user already owns a player")
			}
			return conflictOr(err, "player claimed concurrently", "failed to mark player claimed")
		}
		if err := tx.Users().AssignClaimedPlayer(ctx, claim.UserID, claim.PlayerID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign player")
		}
		return s.record(ctx, tx, auditmodels.Entry{
			AdminID:    adminID,
			Action:     auditmodels.ActionClaimApproved,
			TargetType: auditmodels.TargetClaimRequest,
			TargetID:   claim.ID.String(),
			Meta: map[string]any{
				"playerId": claim.PlayerID.String(),
				"userId":   claim.UserID.String(),
				"client":   metadata.ClientLabel(requestcontext.UserAgent(ctx)),
			},
		})
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	s.metrics.Decisions.WithLabelValues(string(claimmodels.StatusApproved)).Inc()
	s.logger.InfoContext(ctx, "claim approved",
		"claim_id", claim.ID,
		"admin_id", adminID,
		"user_id", claim.UserID,
		"player_id", claim.PlayerID,
	)
	return &adminmodels.Decision{ClaimID: claim.ID, Status: claimmodels.StatusApproved, ReviewedAt: now}, nil
}

// Reject closes the claim with an optional reason. The claimant's attempt
// stays consumed.
func (s *Service) Reject(ctx context.Context, claimID id.ClaimID, adminID id.UserID, reason string) (*adminmodels.Decision, error) {
	start := time.Now()
	defer s.metrics.ObserveDecision(start)
	ctx, span := s.tracer.Start(ctx, "admin.claim.reject",
		trace.WithAttributes(attribute.String("claim.id", claimID.String())))
	defer span.End()

	reason = strings.TrimSpace(reason)
	if len(reason) > adminmodels.MaxRejectionReasonLength {
		return nil, s.fail(ctx, span, dErrors.New(dErrors.CodeInvalidInput, "rejection reason too long"))
	}
	var rationale *string
	if reason != "" {
		rationale = &reason
	}

	claim, err := s.reviewable(ctx, claimID)
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	meta := map[string]any{
		"userId": claim.UserID.String(),
		"client": metadata.ClientLabel(requestcontext.UserAgent(ctx)),
	}
	if rationale != nil {
		meta["reason"] = reason
	}

	now := requestcontext.Now(ctx)
	err = s.store.RunInTx(ctx, func(tx store.Tx) error {
		if err := tx.Claims().ApplyTransition(ctx, claimmodels.Transition{
			ClaimID:    claim.ID,
			From:       claimmodels.StatusPendingAdminReview,
			To:         claimmodels.StatusRejected,
			ReviewedAt: &now,
			Rationale:  rationale,
		}); err != nil {
			return conflictOr(err, "claim already processed", "failed to reject claim")
		}
		if err := tx.Users().SetVerificationStatus(ctx, claim.UserID, dirmodels.VerificationRejected); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update claimant")
		}
		return s.record(ctx, tx, auditmodels.Entry{
			AdminID:    adminID,
			Action:     auditmodels.ActionClaimRejected,
			TargetType: auditmodels.TargetClaimRequest,
			TargetID:   claim.ID.String(),
			Meta:       meta,
		})
	})
	if err != nil {
		return nil, s.fail(ctx, span, err)
	}

	s.metrics.Decisions.WithLabelValues(string(claimmodels.StatusRejected)).Inc()
	s.logger.InfoContext(ctx, "claim rejected",
		"claim_id", claim.ID,
		"admin_id", adminID,
		"user_id", claim.UserID,
	)
	return &adminmodels.Decision{ClaimID: claim.ID, Status: claimmodels.StatusRejected, ReviewedAt: now}, nil
}

func (s *Service) reviewable(ctx context.Context, claimID id.ClaimID) (*claimmodels.ClaimRequest, error) {
	claim, err := s.store.Claims().FindByID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "claim not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	if claim.Status != claimmodels.StatusPendingAdminReview {
		return nil, dErrors.New(dErrors.CodeConflict, "claim already processed")
	}
	return claim, nil
}

func (s *Service) record(ctx context.Context, tx store.Tx, entry auditmodels.Entry) error {
	if err := s.ledger.Record(ctx, tx.AuditLog(), entry); err != nil {
		if dErrors.CodeOf(err) != dErrors.CodeInternal {
			return err
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record admin action")
	}
	return nil
}

// conflictOr maps a failed conditional write to conflict and anything else
// to internal.
func conflictOr(err error, conflictMsg, internalMsg string) error {
	if errors.Is(err, sentinel.ErrStateChanged) || errors.Is(err, sentinel.ErrDuplicate) {
		return dErrors.Wrap(err, dErrors.CodeConflict, conflictMsg)
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, internalMsg)
}

func (s *Service) fail(ctx context.Context, span trace.Span, err error) error {
	code := dErrors.CodeOf(err)
	span.SetStatus(codes.Error, string(code))
	switch code {
	case dErrors.CodeConflict:
		s.metrics.DecisionConflict.Inc()
	case dErrors.CodeInternal:
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "claim decision failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	}
	return err
}
