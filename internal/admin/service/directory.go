package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	adminmodels "profileclaim/internal/admin/models"
	auditmodels "profileclaim/internal/audit/models"
	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/sentinel"
)

// Dashboard gathers the directory counts concurrently.
func (s *Service) Dashboard(ctx context.Context) (*adminmodels.Dashboard, error) {
	var d adminmodels.Dashboard
	premium := dirmodels.RolePremium

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		d.TotalUsers, err = s.store.Users().Count(gctx, nil)
		return err
	})
	g.Go(func() (err error) {
		d.PremiumUsers, err = s.store.Users().Count(gctx, &premium)
		return err
	})
	g.Go(func() (err error) {
		d.TotalPlayers, err = s.store.Players().Count(gctx, false)
		return err
	})
	g.Go(func() (err error) {
		d.ClaimedPlayers, err = s.store.Players().Count(gctx, true)
		return err
	})
	g.Go(func() (err error) {
		d.PendingReviews, err = s.store.Claims().CountByStatus(gctx, claimmodels.StatusPendingAdminReview)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load dashboard")
	}
	return &d, nil
}

// ListUsers returns one page of users, newest first, optionally filtered by
// role. The page and the total are read concurrently.
func (s *Service) ListUsers(ctx context.Context, page, limit int, role *dirmodels.Role) (*adminmodels.UserPage, error) {
	page, limit = auditmodels.NormalizePaging(page, limit)

	var (
		users []*dirmodels.User
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		users, err = s.store.Users().List(gctx, auditmodels.Offset(page, limit), limit, role)
		return err
	})
	g.Go(func() (err error) {
		total, err = s.store.Users().Count(gctx, role)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list users")
	}

	out := &adminmodels.UserPage{
		Data: make([]adminmodels.UserListItem, 0, len(users)),
		Meta: adminmodels.PageMeta{Total: total, Page: page, Limit: limit},
	}
	for _, u := range users {
		out.Data = append(out.Data, adminmodels.UserListItem{
			ID:                 u.ID,
			Email:              u.Email,
			Role:               u.Role,
			VerificationStatus: u.VerificationStatus,
			ClaimAttempts:      u.ClaimAttempts,
			CreatedAt:          u.CreatedAt,
		})
	}
	return out, nil
}

// SetUserRole changes a user's role and records USER_ROLE_CHANGED in the
// same transaction. Setting the current role is a no-op and is not recorded.
func (s *Service) SetUserRole(ctx context.Context, userID id.UserID, role dirmodels.Role, adminID id.UserID) (*adminmodels.RoleChange, error) {
	if userID == adminID && role != dirmodels.RoleAdmin {
		return nil, dErrors.New(dErrors.CodeForbidden, "admins cannot revoke their own role")
	}

	var change *adminmodels.RoleChange
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		user, err := tx.Users().FindByID(ctx, userID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "user not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
		}
		change = &adminmodels.RoleChange{UserID: userID, Role: role, PreviousRole: user.Role}
		if user.Role == role {
			return nil
		}
		if err := tx.Users().SetRole(ctx, userID, role); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update role")
		}
		return s.record(ctx, tx, auditmodels.Entry{
			AdminID:    adminID,
			Action:     auditmodels.ActionUserRoleChanged,
			TargetType: auditmodels.TargetUser,
			TargetID:   userID.String(),
			Meta: map[string]any{
				"newRole":      string(role),
				"previousRole": string(user.Role),
			},
		})
	})
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			s.logger.ErrorContext(ctx, "role change failed", "user_id", userID, "error", err)
		}
		return nil, err
	}

	if change.Role != change.PreviousRole {
		s.logger.InfoContext(ctx, "user role changed",
			"user_id", userID,
			"admin_id", adminID,
			"role", role,
			"previous_role", change.PreviousRole,
		)
	}
	return change, nil
}
