package models

import (
	"time"

	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	identitymodels "profileclaim/internal/identity/models"
	id "profileclaim/pkg/domain"
)

// ReviewUser is the claimant as shown to a reviewer.
type ReviewUser struct {
	ID                 id.UserID                    `json:"id"`
	Email              string                       `json:"email"`
	VerificationStatus dirmodels.VerificationStatus `json:"verification_status"`
}

// PendingReview is one claim in the admin queue with everything a reviewer
// needs to decide. Identity is nil when no verification record exists.
type PendingReview struct {
	ClaimID   id.ClaimID                          `json:"id"`
	Status    claimmodels.Status                  `json:"status"`
	CreatedAt time.Time                           `json:"created_at"`
	User      ReviewUser                          `json:"user"`
	Identity  *identitymodels.VerificationSummary `json:"identity_verification"`
	Player    dirmodels.PlayerSummary             `json:"player"`
}

// Decision is returned after an approve or reject.
type Decision struct {
	ClaimID    id.ClaimID         `json:"claim_request_id"`
	Status     claimmodels.Status `json:"status"`
	ReviewedAt time.Time          `json:"reviewed_at"`
}

type Dashboard struct {
	TotalUsers     int `json:"total_users"`
	PremiumUsers   int `json:"premium_users"`
	TotalPlayers   int `json:"total_players"`
	ClaimedPlayers int `json:"claimed_players"`
	PendingReviews int `json:"pending_reviews"`
}

// UserListItem is one row of the admin user directory.
type UserListItem struct {
	ID                 id.UserID                    `json:"id"`
	Email              string                       `json:"email"`
	Role               dirmodels.Role               `json:"role"`
	VerificationStatus dirmodels.VerificationStatus `json:"verification_status"`
	ClaimAttempts      int                          `json:"claim_attempts"`
	CreatedAt          time.Time                    `json:"created_at"`
}

type PageMeta struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

type UserPage struct {
	Data []UserListItem `json:"data"`
	Meta PageMeta       `json:"meta"`
}

// RoleChange is returned after an admin changes a user's role.
type RoleChange struct {
	UserID       id.UserID      `json:"user_id"`
	Role         dirmodels.Role `json:"role"`
	PreviousRole dirmodels.Role `json:"previous_role"`
}

// MaxRejectionReasonLength bounds the free-text rationale.
const MaxRejectionReasonLength = 1000
