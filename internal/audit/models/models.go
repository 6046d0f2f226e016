// Package models defines the admin audit ledger entry. Entries are written
// once inside the transaction of the action they record and never change.
package models

import (
	"math"
	"time"

	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
)

type Action string

const (
	ActionClaimApproved   Action = "CLAIM_APPROVED"
	ActionClaimRejected   Action = "CLAIM_REJECTED"
	ActionUserRoleChanged Action = "USER_ROLE_CHANGED"
)

const (
	TargetClaimRequest = "ClaimRequest"
	TargetUser         = "User"
)

type Entry struct {
	ID         id.AuditEntryID `json:"id"`
	AdminID    id.UserID       `json:"admin_id"`
	Action     Action          `json:"action"`
	TargetType string          `json:"target_type"`
	TargetID   string          `json:"target_id"`
	Meta       map[string]any  `json:"meta,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Validate enforces the fields every ledger entry must carry.
func (e *Entry) Validate() error {
	if e.AdminID.IsNil() {
		return dErrors.New(dErrors.CodeInternal, "audit entry requires admin ID")
	}
	if e.Action == "" {
		return dErrors.New(dErrors.CodeInternal, "audit entry requires action")
	}
	if e.TargetType == "" || e.TargetID == "" {
		return dErrors.New(dErrors.CodeInternal, "audit entry requires target")
	}
	return nil
}

// Page is one reverse-chronological slice of the ledger.
type Page struct {
	Entries []*Entry `json:"data"`
	Total   int      `json:"total"`
	Page    int      `json:"page"`
	Limit   int      `json:"limit"`
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	// MaxPage keeps (page-1)*limit within int for any accepted limit.
	MaxPage = math.MaxInt / MaxPageSize
)

// Offset is the number of rows skipped before page.
func Offset(page, limit int) int {
	page, limit = NormalizePaging(page, limit)
	return (page - 1) * limit
}

// NormalizePaging clamps page and limit to sane bounds.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}
