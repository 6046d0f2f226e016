package models

import (
	"time"

	dirmodels "profileclaim/internal/directory/models"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
)

// Status is the claim state machine:
//
//	pending_identity -> pending_admin_review -> approved | rejected
//
// approved and rejected are terminal.
type Status string

const (
	StatusPendingIdentity    Status = "pending_identity"
	StatusPendingAdminReview Status = "pending_admin_review"
	StatusApproved           Status = "approved"
	StatusRejected           Status = "rejected"
)

// ActiveStatuses are the states a user may hold at most one claim in.
var ActiveStatuses = []Status{StatusPendingIdentity, StatusPendingAdminReview}

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPendingIdentity, StatusPendingAdminReview, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown claim status: "+s)
}

func (s Status) IsActive() bool {
	return s == StatusPendingIdentity || s == StatusPendingAdminReview
}

func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPendingIdentity:
		return to == StatusPendingAdminReview
	case StatusPendingAdminReview:
		return to == StatusApproved || to == StatusRejected
	}
	return false
}

type ClaimRequest struct {
	ID              id.ClaimID
	UserID          id.UserID
	PlayerID        id.PlayerID
	Status          Status
	ReviewRationale *string
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

// Transition describes a conditional status change. The store applies it
// only if the stored status still equals From.
type Transition struct {
	ClaimID    id.ClaimID
	From       Status
	To         Status
	ReviewedAt *time.Time
	Rationale  *string
}

// NextStepIdentityVerification is returned after a claim is started.
const NextStepIdentityVerification = "identity_verification"

type StartResult struct {
	ClaimID  id.ClaimID `json:"claim_request_id"`
	Status   Status     `json:"status"`
	NextStep string     `json:"next_step"`
}

// ClaimSummary is the user's view of their latest claim.
type ClaimSummary struct {
	ID              id.ClaimID              `json:"id"`
	PlayerID        id.PlayerID             `json:"player_id"`
	Status          Status                  `json:"status"`
	ReviewRationale *string                 `json:"review_rationale,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	ReviewedAt      *time.Time              `json:"reviewed_at,omitempty"`
	Player          dirmodels.PlayerSummary `json:"player"`
}
