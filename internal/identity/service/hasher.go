package service

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const DefaultHashCost = 12

// Hasher one-way hashes national IDs before they touch storage.
type Hasher interface {
	Hash(nationalID string) (string, error)
}

// BcryptHasher salts every hash, so equal inputs never produce equal rows.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher clamps cost to bcrypt's accepted range.
func NewBcryptHasher(cost int) *BcryptHasher {
	switch {
	case cost == 0:
		cost = DefaultHashCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: cost}
}

func (h *BcryptHasher) Hash(nationalID string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(nationalID), h.cost)
	if err != nil {
		return "", fmt.Errorf("hash national id: %w", err)
	}
	return string(out), nil
}

// Matches reports whether hash was produced from nationalID.
func (h *BcryptHasher) Matches(hash, nationalID string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(nationalID)) == nil
}
