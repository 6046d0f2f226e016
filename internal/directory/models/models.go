// Package models holds the directory view of users and players that the
// claim lifecycle depends on. The directory owns these records; the claim
// modules only mutate the fields listed here, and only through the store's
// conditional writes.
package models

import (
	"time"

	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
)

type Role string

const (
	RoleFree    Role = "free"
	RolePremium Role = "premium"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleFree, RolePremium, RoleAdmin:
		return r, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role: "+s)
}

// VerificationStatus mirrors the user's position in the claim lifecycle.
type VerificationStatus string

const (
	VerificationNone               VerificationStatus = "none"
	VerificationPendingIdentity    VerificationStatus = "pending_identity"
	VerificationPendingAdminReview VerificationStatus = "pending_admin_review"
	VerificationApproved           VerificationStatus = "approved"
	VerificationRejected           VerificationStatus = "rejected"
)

func ParseVerificationStatus(s string) (VerificationStatus, error) {
	switch v := VerificationStatus(s); v {
	case VerificationNone, VerificationPendingIdentity, VerificationPendingAdminReview,
		VerificationApproved, VerificationRejected:
		return v, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown verification status: "+s)
}

// MaxClaimAttempts is the lifetime number of claim cycles a user may start.
const MaxClaimAttempts = 3

type User struct {
	ID                 id.UserID
	Email              string
	Role               Role
	VerificationStatus VerificationStatus
	ClaimAttempts      int
	ClaimedPlayerID    *id.PlayerID
	CreatedAt          time.Time
}

func (u *User) AttemptsExhausted() bool {
	return u.ClaimAttempts >= MaxClaimAttempts
}

// OwnsPlayer reports whether an approved claim gave this user the player.
func (u *User) OwnsPlayer(playerID id.PlayerID) bool {
	return u.ClaimedPlayerID != nil &&
		*u.ClaimedPlayerID == playerID &&
		u.VerificationStatus == VerificationApproved
}

type Player struct {
	ID          id.PlayerID
	FirstName   string
	LastName    string
	BirthYear   int
	Club        string
	Position    string
	League      string
	IsClaimed   bool
	ClaimedByID *id.UserID
}

// PlayerSummary is the public projection joined into claim views.
type PlayerSummary struct {
	ID        id.PlayerID `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	BirthYear int         `json:"birth_year,omitempty"`
	Club      string      `json:"club,omitempty"`
	Position  string      `json:"position,omitempty"`
	League    string      `json:"league,omitempty"`
}

func (p *Player) Summary() PlayerSummary {
	return PlayerSummary{
		ID:        p.ID,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		BirthYear: p.BirthYear,
		Club:      p.Club,
		Position:  p.Position,
		League:    p.League,
	}
}

// MaxProfileVideos caps the videos an owner may attach to a claimed profile.
const MaxProfileVideos = 4

type Video struct {
	URL     string    `json:"url"`
	Title   string    `json:"title,omitempty"`
	AddedAt time.Time `json:"added_at,omitempty"`
}

type CareerEntry struct {
	Club    string `json:"club"`
	League  string `json:"league"`
	Season  string `json:"season"`
	Matches int    `json:"matches,omitempty"`
	Goals   int    `json:"goals,omitempty"`
	Assists int    `json:"assists,omitempty"`
}

// PlayerProfile is the owner-editable data attached to a claimed player.
type PlayerProfile struct {
	PlayerID      id.PlayerID   `json:"player_id"`
	Bio           *string       `json:"bio,omitempty"`
	Height        *int          `json:"height,omitempty"`
	Weight        *int          `json:"weight,omitempty"`
	PreferredFoot *string       `json:"preferred_foot,omitempty"`
	PhotoURL      *string       `json:"photo_url,omitempty"`
	Instagram     *string       `json:"instagram,omitempty"`
	Videos        []Video       `json:"videos,omitempty"`
	CareerHistory []CareerEntry `json:"career_history,omitempty"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ProfileUpdate carries a partial edit; nil fields keep their stored value.
type ProfileUpdate struct {
	Bio           *string        `json:"bio,omitempty"`
	Height        *int           `json:"height,omitempty"`
	Weight        *int           `json:"weight,omitempty"`
	PreferredFoot *string        `json:"preferred_foot,omitempty"`
	PhotoURL      *string        `json:"photo_url,omitempty"`
	Instagram     *string        `json:"instagram,omitempty"`
	Videos        *[]Video       `json:"videos,omitempty"`
	CareerHistory *[]CareerEntry `json:"career_history,omitempty"`
}

func (u ProfileUpdate) Validate() error {
	if u.Videos != nil && len(*u.Videos) > MaxProfileVideos {
		return dErrors.New(dErrors.CodeInvalidInput, "at most 4 videos may be attached")
	}
	if u.Height != nil && (*u.Height < 100 || *u.Height > 250) {
		return dErrors.New(dErrors.CodeInvalidInput, "height must be between 100 and 250 cm")
	}
	if u.Weight != nil && (*u.Weight < 30 || *u.Weight > 200) {
		return dErrors.New(dErrors.CodeInvalidInput, "weight must be between 30 and 200 kg")
	}
	return nil
}

// Apply merges the update into p.
func (u ProfileUpdate) Apply(p *PlayerProfile) {
	if u.Bio != nil {
		p.Bio = u.Bio
	}
	if u.Height != nil {
		p.Height = u.Height
	}
	if u.Weight != nil {
		p.Weight = u.Weight
	}
	if u.PreferredFoot != nil {
		p.PreferredFoot = u.PreferredFoot
	}
	if u.PhotoURL != nil {
		p.PhotoURL = u.PhotoURL
	}
	if u.Instagram != nil {
		p.Instagram = u.Instagram
	}
	if u.Videos != nil {
		p.Videos = *u.Videos
	}
	if u.CareerHistory != nil {
		p.CareerHistory = *u.CareerHistory
	}
}
