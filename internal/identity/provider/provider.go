// Package provider talks to the national identity authority.
//
// A Provider answers one question: does the declared national ID belong to a
// person with these names and birth year. A false answer is a result; any
// failure to obtain an answer is an *Error.
package provider

import (
	"context"
	"strings"

	identitymodels "profileclaim/internal/identity/models"
	dErrors "profileclaim/pkg/domain-errors"
)

//go:generate mockgen -source=provider.go -destination=mocks/provider_mock.go -package=mocks Provider

type Provider interface {
	ID() string
	Verify(ctx context.Context, identity identitymodels.DeclaredIdentity) (bool, error)
}

// Mode decides what an unavailable provider means for the caller.
type Mode string

const (
	// ModeStrict surfaces unavailability as service_unavailable.
	ModeStrict Mode = "strict"
	// ModePermissive treats unavailability as verified. Non-production only.
	ModePermissive Mode = "permissive"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeStrict, nil
	case ModeStrict, ModePermissive:
		return m, nil
	}
	return "", dErrors.New(dErrors.CodeInvalidInput, "unknown identity provider mode: "+s)
}
