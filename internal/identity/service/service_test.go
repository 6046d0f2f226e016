package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	identitymodels "profileclaim/internal/identity/models"
	"profileclaim/internal/identity/provider"
	"profileclaim/internal/identity/provider/mocks"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/sentinel"
	"profileclaim/pkg/requestcontext"
)

type VerifyIdentitySuite struct {
	suite.Suite
	ctx      context.Context
	store    *store.Memory
	provider *mocks.MockProvider
	hasher   *BcryptHasher
	user     id.UserID
	claim    *claimmodels.ClaimRequest
	declared identitymodels.DeclaredIdentity
}

func TestVerifyIdentitySuite(t *testing.T) {
	suite.Run(t, new(VerifyIdentitySuite))
}

func (s *VerifyIdentitySuite) SetupTest() {
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC))
	s.store = store.NewMemory()
	s.provider = mocks.NewMockProvider(gomock.NewController(s.T()))
	s.provider.EXPECT().ID().Return("mock-nvi").AnyTimes()
	s.hasher = NewBcryptHasher(4)

	s.user = id.UserID(uuid.New())
	player := id.PlayerID(uuid.New())
	s.store.SeedUser(&dirmodels.User{
		ID:                 s.user,
		Role:               dirmodels.RolePremium,
		VerificationStatus: dirmodels.VerificationPendingIdentity,
		ClaimAttempts:      1,
	})
	s.store.SeedPlayer(&dirmodels.Player{ID: player, FirstName: "Ada", LastName: "Demir"})
	s.claim = &claimmodels.ClaimRequest{
		ID:        id.NewClaimID(),
		UserID:    s.user,
		PlayerID:  player,
		Status:    claimmodels.StatusPendingIdentity,
		CreatedAt: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC),
	}
	s.Require().NoError(s.store.Claims().Create(s.ctx, s.claim))

	s.declared = identitymodels.DeclaredIdentity{
		NationalID: "10000000146",
		FirstName:  "Ada",
		LastName:   "Demir",
		BirthYear:  2004,
	}
}

func (s *VerifyIdentitySuite) service(mode provider.Mode) *Service {
	return New(s.store, provider.NewAdapter(s.provider, mode), s.hasher)
}

func (s *VerifyIdentitySuite) claimStatus() claimmodels.Status {
	c, err := s.store.Claims().FindByID(s.ctx, s.claim.ID)
	s.Require().NoError(err)
	return c.Status
}

func (s *VerifyIdentitySuite) TestVerifiedIdentityMovesClaimToReview() {
	s.provider.EXPECT().Verify(gomock.Any(), s.declared).Return(true, nil)

	res, err := s.service(provider.ModeStrict).VerifyIdentity(s.ctx, s.user, s.declared)
	s.Require().NoError(err)
	s.True(res.Verified)
	s.Equal("pending_admin_review", res.Status)

	s.Equal(claimmodels.StatusPendingAdminReview, s.claimStatus())
	u, err := s.store.Users().FindByID(s.ctx, s.user)
	s.Require().NoError(err)
	s.Equal(dirmodels.VerificationPendingAdminReview, u.VerificationStatus)

	rec, err := s.store.IdentityRecords().LatestByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.True(rec.Verified)
}

func (s *VerifyIdentitySuite) TestFailedVerificationIsRecordedAndResumable() {
	s.provider.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, nil)

	_, err := s.service(provider.ModeStrict).VerifyIdentity(s.ctx, s.user, s.declared)
	s.True(dErrors.HasCode(err, dErrors.CodeValidationFailed))
	s.Equal(claimmodels.StatusPendingIdentity, s.claimStatus())

	rec, err := s.store.IdentityRecords().LatestByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.False(rec.Verified)

	s.Run("a later submission can still succeed", func() {
		s.provider.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true, nil)
		_, err := s.service(provider.ModeStrict).VerifyIdentity(s.ctx, s.user, s.declared)
		s.Require().NoError(err)
		s.Equal(claimmodels.StatusPendingAdminReview, s.claimStatus())
	})
}

func (s *VerifyIdentitySuite) TestNationalIDIsNeverStoredInPlaintext() {
	s.provider.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(true, nil)

	_, err := s.service(provider.ModeStrict).VerifyIdentity(s.ctx, s.user, s.declared)
	s.Require().NoError(err)

	rec, err := s.store.IdentityRecords().LatestByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.NotEqual(s.declared.NationalID, rec.NationalIDHash)
	s.False(strings.Contains(rec.NationalIDHash, s.declared.NationalID))
	s.True(s.hasher.Matches(rec.NationalIDHash, s.declared.NationalID))
	s.False(s.hasher.Matches(rec.NationalIDHash, "10000000147"))

	other, err := s.hasher.Hash(s.declared.NationalID)
	s.Require().NoError(err)
	s.NotEqual(rec.NationalIDHash, other, "hashes are salted")
}

func (s *VerifyIdentitySuite) TestStrictUnavailabilityMutatesNothing() {
	s.provider.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, errors.New("dial tcp: refused"))

	_, err := s.service(provider.ModeStrict).VerifyIdentity(s.ctx, s.user, s.declared)
	s.True(dErrors.HasCode(err, dErrors.CodeServiceUnavailable))
	s.Equal(claimmodels.StatusPendingIdentity, s.claimStatus())

	_, err = s.store.IdentityRecords().LatestByUser(s.ctx, s.user)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *VerifyIdentitySuite) TestPermissiveUnavailabilityVerifies() {
	s.provider.EXPECT().Verify(gomock.Any(), gomock.Any()).Return(false, errors.New("dial tcp: refused"))

	res, err := s.service(provider.ModePermissive).VerifyIdentity(s.ctx, s.user, s.declared)
	s.Require().NoError(err)
	s.True(res.Verified)
	s.Equal(claimmodels.StatusPendingAdminReview, s.claimStatus())

	rec, err := s.store.IdentityRecords().LatestByUser(s.ctx, s.user)
	s.Require().NoError(err)
	s.True(rec.Verified)
}

func (s *VerifyIdentitySuite) TestRequiresPendingIdentityClaim() {
	svc := s.service(provider.ModeStrict)

	s.Run("user without claim", func() {
		_, err := svc.VerifyIdentity(s.ctx, id.UserID(uuid.New()), s.declared)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("claim already in review", func() {
		s.Require().NoError(s.store.Claims().ApplyTransition(s.ctx, claimmodels.Transition{
			ClaimID: s.claim.ID,
			From:    claimmodels.StatusPendingIdentity,
			To:      claimmodels.StatusPendingAdminReview,
		}))
		_, err := svc.VerifyIdentity(s.ctx, s.user, s.declared)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *VerifyIdentitySuite) TestRejectsInvalidInputBeforeCallingProvider() {
	tests := []struct {
		name   string
		mutate func(d *identitymodels.DeclaredIdentity)
	}{
		{"short national id", func(d *identitymodels.DeclaredIdentity) { d.NationalID = "1234" }},
		{"non numeric national id", func(d *identitymodels.DeclaredIdentity) { d.NationalID = "1000000014a" }},
		{"one letter first name", func(d *identitymodels.DeclaredIdentity) { d.FirstName = "A" }},
		{"born before 1940", func(d *identitymodels.DeclaredIdentity) { d.BirthYear = 1939 }},
		{"younger than sixteen", func(d *identitymodels.DeclaredIdentity) { d.BirthYear = 2011 }},
	}
	svc := s.service(provider.ModeStrict)
	for _, tc := range tests {
		s.Run(tc.name, func() {
			d := s.declared
			tc.mutate(&d)
			_, err := svc.VerifyIdentity(s.ctx, s.user, d)
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput), "got %v", err)
		})
	}
}
