package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	claimmodels "profileclaim/internal/claims/models"
	id "profileclaim/pkg/domain"
	"profileclaim/pkg/platform/sentinel"
)

type pgClaims struct{ q querierFunc }

const claimColumns = `id, user_id, player_id, status, review_rationale, created_at, reviewed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*claimmodels.ClaimRequest, error) {
	var (
		c         claimmodels.ClaimRequest
		claimID   uuid.UUID
		userID    uuid.UUID
		playerID  uuid.UUID
		status    string
		rationale sql.NullString
		reviewed  sql.NullTime
	)
	if err := row.Scan(&claimID, &userID, &playerID, &status, &rationale, &c.CreatedAt, &reviewed); err != nil {
		return nil, err
	}
	c.ID = id.ClaimID(claimID)
	c.UserID = id.UserID(userID)
	c.PlayerID = id.PlayerID(playerID)
	c.Status = claimmodels.Status(status)
	if rationale.Valid {
		r := rationale.String
		c.ReviewRationale = &r
	}
	if reviewed.Valid {
		t := reviewed.Time
		c.ReviewedAt = &t
	}
	return &c, nil
}

func (r *pgClaims) Create(ctx context.Context, claim *claimmodels.ClaimRequest) error {
	_, err := r.q(ctx).ExecContext(ctx, `
		INSERT INTO claim_requests (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(claim.ID), uuid.UUID(claim.UserID), uuid.UUID(claim.PlayerID),
		string(claim.Status), claim.ReviewRationale, claim.CreatedAt, claim.ReviewedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create claim: %w", sentinel.ErrDuplicate)
		}
		return fmt.Errorf("create claim: %w", err)
	}
	return nil
}

func (r *pgClaims) FindByID(ctx context.Context, claimID id.ClaimID) (*claimmodels.ClaimRequest, error) {
	c, err := scanClaim(r.q(ctx).QueryRowContext(ctx,
		`SELECT `+claimColumns+` FROM claim_requests WHERE id = $1`, uuid.UUID(claimID)))
	return c, notFound(err, "find claim")
}

func (r *pgClaims) FindActiveByUser(ctx context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error) {
	c, err := scanClaim(r.q(ctx).QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM claim_requests
		WHERE user_id = $1 AND status IN ('pending_identity', 'pending_admin_review')
		ORDER BY created_at DESC
		LIMIT 1`, uuid.UUID(userID)))
	return c, notFound(err, "find active claim")
}

func (r *pgClaims) FindLatestByUser(ctx context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error) {
	c, err := scanClaim(r.q(ctx).QueryRowContext(ctx, `
		SELECT `+claimColumns+` FROM claim_requests
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, uuid.UUID(userID)))
	return c, notFound(err, "find latest claim")
}

func (r *pgClaims) ListByStatus(ctx context.Context, status claimmodels.Status) ([]*claimmodels.ClaimRequest, error) {
	rows, err := r.q(ctx).QueryContext(ctx, `
		SELECT `+claimColumns+` FROM claim_requests
		WHERE status = $1
		ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var out []*claimmodels.ClaimRequest
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return out, nil
}

func (r *pgClaims) CountByStatus(ctx context.Context, status claimmodels.Status) (int, error) {
	var n int
	if err := r.q(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM claim_requests WHERE status = $1`, string(status),
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count claims: %w", err)
	}
	return n, nil
}

func (r *pgClaims) ApplyTransition(ctx context.Context, t claimmodels.Transition) error {
	res, err := r.q(ctx).ExecContext(ctx, `
		UPDATE claim_requests
		SET status = $3,
		    reviewed_at = COALESCE($4, reviewed_at),
		    review_rationale = COALESCE($5, review_rationale)
		WHERE id = $1 AND status = $2`,
		uuid.UUID(t.ClaimID), string(t.From), string(t.To), t.ReviewedAt, t.Rationale,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("transition claim %s: %w", t.ClaimID, sentinel.ErrStateChanged)
		}
		return fmt.Errorf("transition claim %s: %w", t.ClaimID, err)
	}
	return requireOneRow(res, fmt.Errorf("transition claim %s from %s: %w", t.ClaimID, t.From, sentinel.ErrStateChanged))
}

// notFound maps sql.ErrNoRows to sentinel.ErrNotFound and wraps anything else.
func notFound(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, sentinel.ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}
