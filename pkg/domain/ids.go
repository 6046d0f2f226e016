// Package domain holds the typed identifiers shared by every module.
//
// IDs are distinct named UUID types so a PlayerID can never be passed where a
// UserID is expected. Parse functions are the trust boundary for identifiers
// arriving from HTTP paths, tokens and request bodies.
package domain

import (
	"github.com/google/uuid"

	dErrors "profileclaim/pkg/domain-errors"
)

type (
	UserID         uuid.UUID
	PlayerID       uuid.UUID
	ClaimID        uuid.UUID
	VerificationID uuid.UUID
	AuditEntryID   uuid.UUID
)

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id PlayerID) String() string       { return uuid.UUID(id).String() }
func (id ClaimID) String() string        { return uuid.UUID(id).String() }
func (id VerificationID) String() string { return uuid.UUID(id).String() }
func (id AuditEntryID) String() string   { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id PlayerID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id ClaimID) IsNil() bool        { return uuid.UUID(id) == uuid.Nil }
func (id VerificationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id AuditEntryID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }
func (id PlayerID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ClaimID) MarshalText() ([]byte, error)        { return uuid.UUID(id).MarshalText() }
func (id VerificationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id AuditEntryID) MarshalText() ([]byte, error)   { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *PlayerID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ClaimID) UnmarshalText(b []byte) error        { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *VerificationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *AuditEntryID) UnmarshalText(b []byte) error   { return (*uuid.UUID)(id).UnmarshalText(b) }

func NewClaimID() ClaimID               { return ClaimID(uuid.New()) }
func NewVerificationID() VerificationID { return VerificationID(uuid.New()) }
func NewAuditEntryID() AuditEntryID     { return AuditEntryID(uuid.New()) }

// ParseUserID parses a user identifier. Empty, malformed and nil UUIDs are rejected.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user")
	return UserID(u), err
}

// ParsePlayerID parses a player identifier.
func ParsePlayerID(s string) (PlayerID, error) {
	u, err := parseUUID(s, "player")
	return PlayerID(u), err
}

// ParseClaimID parses a claim request identifier.
func ParseClaimID(s string) (ClaimID, error) {
	u, err := parseUUID(s, "claim")
	return ClaimID(u), err
}

func parseUUID(s, kind string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+kind+" ID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" ID must not be nil")
	}
	return u, nil
}
