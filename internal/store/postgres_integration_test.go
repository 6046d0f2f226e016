//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	auditmodels "profileclaim/internal/audit/models"
	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	identitymodels "profileclaim/internal/identity/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	"profileclaim/pkg/platform/sentinel"
	"profileclaim/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(),
		"outbox", "admin_audit_log", "identity_verifications", "player_profiles",
		"claim_requests", "players", "users")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedUser(role dirmodels.Role) id.UserID {
	userID := id.UserID(uuid.New())
	_, err := s.postgres.DB.Exec(
		`INSERT INTO users (id, email, role) VALUES ($1, $2, $3)`,
		uuid.UUID(userID), uuid.NewString()+"@example.com", string(role))
	s.Require().NoError(err)
	return userID
}

func (s *PostgresStoreSuite) seedPlayer() id.PlayerID {
	playerID := id.PlayerID(uuid.New())
	_, err := s.postgres.DB.Exec(
		`INSERT INTO players (id, first_name, last_name, birth_year) VALUES ($1, 'Arda', 'Kaya', 2004)`,
		uuid.UUID(playerID))
	s.Require().NoError(err)
	return playerID
}

func newClaim(userID id.UserID, playerID id.PlayerID, status claimmodels.Status) *claimmodels.ClaimRequest {
	return &claimmodels.ClaimRequest{
		ID:        id.NewClaimID(),
		UserID:    userID,
		PlayerID:  playerID,
		Status:    status,
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.Require().NoError(store.Migrate(context.Background(), s.postgres.DB))
}

func (s *PostgresStoreSuite) TestPartialUniqueIndexAllowsOneActiveClaim() {
	ctx := context.Background()
	user := s.seedUser(dirmodels.RolePremium)
	player := s.seedPlayer()

	s.Require().NoError(s.store.Claims().Create(ctx, newClaim(user, player, claimmodels.StatusPendingIdentity)))
	err := s.store.Claims().Create(ctx, newClaim(user, player, claimmodels.StatusPendingIdentity))
	s.ErrorIs(err, sentinel.ErrDuplicate)

	// terminal claims do not count against the index
	s.Require().NoError(s.store.Claims().Create(ctx, newClaim(user, player, claimmodels.StatusRejected)))
}

func (s *PostgresStoreSuite) TestConsumeClaimAttemptCapsAtThree() {
	ctx := context.Background()
	user := s.seedUser(dirmodels.RolePremium)

	for i := 0; i < dirmodels.MaxClaimAttempts; i++ {
		s.Require().NoError(s.store.Users().ConsumeClaimAttempt(ctx, user, dirmodels.MaxClaimAttempts))
	}
	s.ErrorIs(s.store.Users().ConsumeClaimAttempt(ctx, user, dirmodels.MaxClaimAttempts), sentinel.ErrStateChanged)

	u, err := s.store.Users().FindByID(ctx, user)
	s.Require().NoError(err)
	s.Equal(3, u.ClaimAttempts)
	s.Equal(dirmodels.VerificationPendingIdentity, u.VerificationStatus)
}

func (s *PostgresStoreSuite) TestMarkClaimedOnePlayerPerUser() {
	ctx := context.Background()
	user := s.seedUser(dirmodels.RolePremium)
	first, second := s.seedPlayer(), s.seedPlayer()

	s.Require().NoError(s.store.Players().MarkClaimed(ctx, first, user))
	s.ErrorIs(s.store.Players().MarkClaimed(ctx, second, user), sentinel.ErrDuplicate)
	s.ErrorIs(s.store.Players().MarkClaimed(ctx, first, s.seedUser(dirmodels.RolePremium)), sentinel.ErrStateChanged)

	p, err := s.store.Players().FindByID(ctx, second)
	s.Require().NoError(err)
	s.False(p.IsClaimed)
}

func (s *PostgresStoreSuite) TestListUsersNewestFirstByRole() {
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var premium []id.UserID
	for i, role := range []dirmodels.Role{dirmodels.RolePremium, dirmodels.RoleFree, dirmodels.RolePremium} {
		userID := id.UserID(uuid.New())
		_, err := s.postgres.DB.Exec(
			`INSERT INTO users (id, email, role, created_at) VALUES ($1, $2, $3, $4)`,
			uuid.UUID(userID), uuid.NewString()+"@example.com", string(role), base.Add(time.Duration(i)*time.Hour))
		s.Require().NoError(err)
		if role == dirmodels.RolePremium {
			premium = append(premium, userID)
		}
	}

	role := dirmodels.RolePremium
	users, err := s.store.Users().List(ctx, 0, 10, &role)
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal(premium[1], users[0].ID)
	s.Equal(premium[0], users[1].ID)

	all, err := s.store.Users().List(ctx, 1, 10, nil)
	s.Require().NoError(err)
	s.Len(all, 2)

	none, err := s.store.Users().List(ctx, -5, 0, nil)
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestRunInTxRollsBack() {
	ctx := context.Background()
	user := s.seedUser(dirmodels.RolePremium)
	player := s.seedPlayer()
	boom := errors.New("boom")

	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		s.Require().NoError(tx.Users().ConsumeClaimAttempt(ctx, user, dirmodels.MaxClaimAttempts))
		s.Require().NoError(tx.Claims().Create(ctx, newClaim(user, player, claimmodels.StatusPendingIdentity)))
		return boom
	})
	s.ErrorIs(err, boom)

	u, err := s.store.Users().FindByID(ctx, user)
	s.Require().NoError(err)
	s.Zero(u.ClaimAttempts)
	_, err = s.store.Claims().FindActiveByUser(ctx, user)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestConcurrentApprovalHasOneWinner races approvals of the same claim; the
// conditional UPDATE lets exactly one commit.
func (s *PostgresStoreSuite) TestConcurrentApprovalHasOneWinner() {
	ctx := context.Background()
	user := s.seedUser(dirmodels.RolePremium)
	player := s.seedPlayer()
	claim := newClaim(user, player, claimmodels.StatusPendingAdminReview)
	s.Require().NoError(s.store.Claims().Create(ctx, claim))

	const goroutines = 10
	var wg sync.WaitGroup
	var wins, conflicts atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			now := time.Now()
			err := s.store.RunInTx(ctx, func(tx store.Tx) error {
				if err := tx.Claims().ApplyTransition(ctx, claimmodels.Transition{
					ClaimID: claim.ID, From: claimmodels.StatusPendingAdminReview,
					To: claimmodels.StatusApproved, ReviewedAt: &now,
				}); err != nil {
					return err
				}
				if err := tx.Players().MarkClaimed(ctx, player, user); err != nil {
					return err
				}
				return tx.Users().AssignClaimedPlayer(ctx, user, player)
			})
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, sentinel.ErrStateChanged):
				conflicts.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(goroutines-1), conflicts.Load())

	p, err := s.store.Players().FindByID(ctx, player)
	s.Require().NoError(err)
	s.True(p.IsClaimed)
	s.Equal(user, *p.ClaimedByID)
}

func (s *PostgresStoreSuite) TestAuditAppendWritesOutboxInSameTx() {
	ctx := context.Background()
	admin := s.seedUser(dirmodels.RoleAdmin)
	entry := &auditmodels.Entry{
		ID:         id.NewAuditEntryID(),
		AdminID:    admin,
		Action:     auditmodels.ActionClaimRejected,
		TargetType: auditmodels.TargetClaimRequest,
		TargetID:   uuid.NewString(),
		Meta:       map[string]any{"reason": "mismatch"},
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}

	boom := errors.New("boom")
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		s.Require().NoError(tx.AuditLog().Append(ctx, entry))
		return boom
	})
	s.ErrorIs(err, boom)
	n, err := s.store.AuditLog().Count(ctx)
	s.Require().NoError(err)
	s.Zero(n)

	s.Require().NoError(s.store.RunInTx(ctx, func(tx store.Tx) error {
		return tx.AuditLog().Append(ctx, entry)
	}))
	list, err := s.store.AuditLog().List(ctx, 0, 10)
	s.Require().NoError(err)
	s.Require().Len(list, 1)
	s.Equal("mismatch", list[0].Meta["reason"])

	delivered, err := s.store.DrainOutbox(ctx, 10, func(_ context.Context, msgs []store.OutboxMessage) ([]uuid.UUID, error) {
		s.Require().Len(msgs, 1)
		s.Equal(string(auditmodels.ActionClaimRejected), msgs[0].EventType)
		return []uuid.UUID{msgs[0].ID}, nil
	})
	s.Require().NoError(err)
	s.Equal(1, delivered)
}

func (s *PostgresStoreSuite) TestLedgersRejectMutation() {
	ctx := context.Background()
	user := s.seedUser(dirmodels.RolePremium)
	s.Require().NoError(s.store.IdentityRecords().Append(ctx, &identitymodels.VerificationRecord{
		ID:             id.NewVerificationID(),
		UserID:         user,
		NationalIDHash: "$2a$12$hash",
		FirstName:      "Arda",
		LastName:       "Kaya",
		BirthYear:      2004,
		Verified:       true,
		CreatedAt:      time.Now(),
	}))

	_, err := s.postgres.DB.ExecContext(ctx, `UPDATE identity_verifications SET verified = FALSE`)
	s.Error(err)
	_, err = s.postgres.DB.ExecContext(ctx, `DELETE FROM identity_verifications`)
	s.Error(err)

	rec, err := s.store.IdentityRecords().LatestByUser(ctx, user)
	s.Require().NoError(err)
	s.True(rec.Verified)
}
