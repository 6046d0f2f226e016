package service

import (
	"math"
	"time"

	"github.com/google/uuid"

	adminmodels "profileclaim/internal/admin/models"
	auditmodels "profileclaim/internal/audit/models"
	dirmodels "profileclaim/internal/directory/models"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
)

func (s *AdjudicationSuite) TestDashboard() {
	s.seedUser(dirmodels.RoleFree, dirmodels.VerificationNone)
	claim, _ := s.seedReview(s.now)
	s.seedReview(s.now.Add(time.Minute))
	_, err := s.service.Approve(s.ctx, claim.ID, s.adminA)
	s.Require().NoError(err)

	d, err := s.service.Dashboard(s.ctx)
	s.Require().NoError(err)

	s.Equal(5, d.TotalUsers)
	s.Equal(2, d.PremiumUsers)
	s.Equal(2, d.TotalPlayers)
	s.Equal(1, d.ClaimedPlayers)
	s.Equal(1, d.PendingReviews)
}

func (s *AdjudicationSuite) TestSetUserRole() {
	userID := s.seedUser(dirmodels.RoleFree, dirmodels.VerificationNone)

	change, err := s.service.SetUserRole(s.ctx, userID, dirmodels.RolePremium, s.adminA)
	s.Require().NoError(err)
	s.Equal(dirmodels.RoleFree, change.PreviousRole)
	s.Equal(dirmodels.RolePremium, change.Role)

	user, err := s.store.Users().FindByID(s.ctx, userID)
	s.Require().NoError(err)
	s.Equal(dirmodels.RolePremium, user.Role)

	entries := s.auditEntries()
	s.Require().Len(entries, 1)
	s.Equal(auditmodels.ActionUserRoleChanged, entries[0].Action)
	s.Equal(auditmodels.TargetUser, entries[0].TargetType)
	s.Equal("premium", entries[0].Meta["newRole"])
	s.Equal("free", entries[0].Meta["previousRole"])

	s.Run("unchanged role is not recorded", func() {
		_, err := s.service.SetUserRole(s.ctx, userID, dirmodels.RolePremium, s.adminA)
		s.Require().NoError(err)
		s.Len(s.auditEntries(), 1)
	})

	s.Run("unknown user", func() {
		_, err := s.service.SetUserRole(s.ctx, id.UserID(uuid.New()), dirmodels.RolePremium, s.adminA)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("admin cannot demote themselves", func() {
		_, err := s.service.SetUserRole(s.ctx, s.adminA, dirmodels.RoleFree, s.adminA)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *AdjudicationSuite) TestListUsers() {
	base := s.now.Add(-24 * time.Hour)
	var premium []id.UserID
	for i, role := range []dirmodels.Role{dirmodels.RolePremium, dirmodels.RoleFree, dirmodels.RolePremium, dirmodels.RolePremium} {
		userID := id.UserID(uuid.New())
		s.store.SeedUser(&dirmodels.User{
			ID:                 userID,
			Email:              userID.String()[:8] + "@example.com",
			Role:               role,
			VerificationStatus: dirmodels.VerificationNone,
			CreatedAt:          base.Add(time.Duration(i) * time.Hour),
		})
		if role == dirmodels.RolePremium {
			premium = append(premium, userID)
		}
	}

	all, err := s.service.ListUsers(s.ctx, 1, 0, nil)
	s.Require().NoError(err)
	s.Equal(6, all.Meta.Total)
	s.Equal(auditmodels.DefaultPageSize, all.Meta.Limit)
	s.Len(all.Data, 6)

	role := dirmodels.RolePremium
	page, err := s.service.ListUsers(s.ctx, 2, 2, &role)
	s.Require().NoError(err)
	s.Equal(adminmodels.PageMeta{Total: 3, Page: 2, Limit: 2}, page.Meta)
	s.Require().Len(page.Data, 1)
	s.Equal(premium[0], page.Data[0].ID)
	s.Equal(dirmodels.RolePremium, page.Data[0].Role)

	newest, err := s.service.ListUsers(s.ctx, 1, 2, &role)
	s.Require().NoError(err)
	s.Equal([]id.UserID{premium[2], premium[1]}, []id.UserID{newest.Data[0].ID, newest.Data[1].ID})

	s.Run("page past the end is empty", func() {
		far, err := s.service.ListUsers(s.ctx, math.MaxInt, 10, nil)
		s.Require().NoError(err)
		s.Empty(far.Data)
		s.NotNil(far.Data)
		s.Equal(6, far.Meta.Total)
	})
}
