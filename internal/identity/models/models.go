package models

import (
	"strings"
	"time"
	"unicode/utf8"

	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
)

const (
	NationalIDLength = 11
	MinNameLength    = 2
	MaxNameLength    = 50
	MinBirthYear     = 1940
	MinAge           = 16
)

// DeclaredIdentity is what the user submits for verification. NationalID is
// plaintext and must never be persisted or logged.
type DeclaredIdentity struct {
	NationalID string `json:"national_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	BirthYear  int    `json:"birth_year"`
}

// Validate checks the declared fields against the submission rules, using
// now to derive the youngest allowed birth year.
func (d DeclaredIdentity) Validate(now time.Time) error {
	if len(d.NationalID) != NationalIDLength || !allDigits(d.NationalID) {
		return dErrors.New(dErrors.CodeInvalidInput, "national ID must be exactly 11 digits")
	}
	if !validName(d.FirstName) {
		return dErrors.New(dErrors.CodeInvalidInput, "first name must be 2 to 50 characters")
	}
	if !validName(d.LastName) {
		return dErrors.New(dErrors.CodeInvalidInput, "last name must be 2 to 50 characters")
	}
	maxYear := now.Year() - MinAge
	if d.BirthYear < MinBirthYear || d.BirthYear > maxYear {
		return dErrors.New(dErrors.CodeInvalidInput, "birth year out of range")
	}
	return nil
}

func (d DeclaredIdentity) Normalized() DeclaredIdentity {
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
	d.NationalID = strings.TrimSpace(d.NationalID)
	return d
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func validName(s string) bool {
	n := utf8.RuneCountInString(s)
	return n >= MinNameLength && n <= MaxNameLength
}

// VerificationRecord is one append-only verification attempt. Only the
// one-way hash of the national ID is kept.
type VerificationRecord struct {
	ID             id.VerificationID
	UserID         id.UserID
	NationalIDHash string
	FirstName      string
	LastName       string
	BirthYear      int
	Verified       bool
	CreatedAt      time.Time
}

// VerificationSummary is the reviewer-facing projection; it omits the hash.
type VerificationSummary struct {
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	BirthYear int       `json:"birth_year"`
	Verified  bool      `json:"verified"`
	CheckedAt time.Time `json:"checked_at"`
}

func (r *VerificationRecord) Summary() VerificationSummary {
	return VerificationSummary{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		BirthYear: r.BirthYear,
		Verified:  r.Verified,
		CheckedAt: r.CreatedAt,
	}
}

// VerifyResult is returned to the caller after a successful verification.
type VerifyResult struct {
	Verified bool   `json:"verified"`
	Status   string `json:"status"`
}
