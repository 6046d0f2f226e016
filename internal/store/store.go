// Package store persists the claim lifecycle: claims, the user/player
// directory fields it depends on, identity verification records and the
// admin audit ledger.
//
// Repositories are pure I/O. Business rules live in the services; the only
// rule a repository enforces is the precondition of a conditional write,
// reported as sentinel.ErrStateChanged when zero rows matched.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	auditmodels "profileclaim/internal/audit/models"
	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	identitymodels "profileclaim/internal/identity/models"
	id "profileclaim/pkg/domain"
)

type Claims interface {
	// Create inserts a claim. sentinel.ErrDuplicate when the user already
	// holds an active claim.
	Create(ctx context.Context, claim *claimmodels.ClaimRequest) error
	FindByID(ctx context.Context, claimID id.ClaimID) (*claimmodels.ClaimRequest, error)
	// FindActiveByUser returns the user's pending_identity or
	// pending_admin_review claim.
	FindActiveByUser(ctx context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error)
	FindLatestByUser(ctx context.Context, userID id.UserID) (*claimmodels.ClaimRequest, error)
	// ListByStatus returns claims oldest first.
	ListByStatus(ctx context.Context, status claimmodels.Status) ([]*claimmodels.ClaimRequest, error)
	CountByStatus(ctx context.Context, status claimmodels.Status) (int, error)
	// ApplyTransition updates status only where the stored status equals
	// t.From. sentinel.ErrStateChanged when no row matched.
	ApplyTransition(ctx context.Context, t claimmodels.Transition) error
}

type Users interface {
	FindByID(ctx context.Context, userID id.UserID) (*dirmodels.User, error)
	// ConsumeClaimAttempt increments claim_attempts and sets the status to
	// pending_identity where role = premium and claim_attempts < max.
	// sentinel.ErrStateChanged when the condition no longer holds.
	ConsumeClaimAttempt(ctx context.Context, userID id.UserID, max int) error
	SetVerificationStatus(ctx context.Context, userID id.UserID, status dirmodels.VerificationStatus) error
	// AssignClaimedPlayer sets claimed_player_id and verification status approved.
	AssignClaimedPlayer(ctx context.Context, userID id.UserID, playerID id.PlayerID) error
	SetRole(ctx context.Context, userID id.UserID, role dirmodels.Role) error
	// List returns users newest first, optionally restricted to one role.
	List(ctx context.Context, offset, limit int, role *dirmodels.Role) ([]*dirmodels.User, error)
	// Count counts users, optionally restricted to one role.
	Count(ctx context.Context, role *dirmodels.Role) (int, error)
}

type Players interface {
	FindByID(ctx context.Context, playerID id.PlayerID) (*dirmodels.Player, error)
	// MarkClaimed sets is_claimed and claimed_by_id where is_claimed is
	// false. sentinel.ErrStateChanged when the player was claimed meanwhile;
	// sentinel.ErrDuplicate when userID already owns another player.
	MarkClaimed(ctx context.Context, playerID id.PlayerID, userID id.UserID) error
	Count(ctx context.Context, claimedOnly bool) (int, error)
	FindProfile(ctx context.Context, playerID id.PlayerID) (*dirmodels.PlayerProfile, error)
	SaveProfile(ctx context.Context, profile *dirmodels.PlayerProfile) error
}

// IdentityRecords is append-only.
type IdentityRecords interface {
	Append(ctx context.Context, record *identitymodels.VerificationRecord) error
	LatestByUser(ctx context.Context, userID id.UserID) (*identitymodels.VerificationRecord, error)
}

// AuditLog is append-only.
type AuditLog interface {
	Append(ctx context.Context, entry *auditmodels.Entry) error
	// List returns entries newest first.
	List(ctx context.Context, offset, limit int) ([]*auditmodels.Entry, error)
	Count(ctx context.Context) (int, error)
}

// Tx exposes every repository. Inside RunInTx all of them share one
// transaction; on Store they run against committed state.
type Tx interface {
	Claims() Claims
	Users() Users
	Players() Players
	IdentityRecords() IdentityRecords
	AuditLog() AuditLog
}

type Store interface {
	Tx
	// RunInTx runs fn in one atomic transaction. Any error returned by fn
	// rolls back every write made through the Tx.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}

// OutboxMessage is an audit entry waiting to be relayed to the event bus.
type OutboxMessage struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// PublishFunc delivers a batch and returns the IDs that were accepted.
type PublishFunc func(ctx context.Context, msgs []OutboxMessage) ([]uuid.UUID, error)

const defaultTxTimeout = 5 * time.Second
