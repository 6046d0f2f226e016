package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	claimmodels "profileclaim/internal/claims/models"
	"profileclaim/internal/claims/service"
	dirmodels "profileclaim/internal/directory/models"
	"profileclaim/internal/store"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/testutil"
)

type fixture struct {
	router  chi.Router
	store   *store.Memory
	premium id.UserID
	free    id.UserID
	player  id.PlayerID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := store.NewMemory()
	f := &fixture{
		store:   st,
		premium: id.UserID(uuid.New()),
		free:    id.UserID(uuid.New()),
		player:  id.PlayerID(uuid.New()),
	}
	st.SeedUser(&dirmodels.User{ID: f.premium, Role: dirmodels.RolePremium, VerificationStatus: dirmodels.VerificationNone})
	st.SeedUser(&dirmodels.User{ID: f.free, Role: dirmodels.RoleFree, VerificationStatus: dirmodels.VerificationNone})
	st.SeedPlayer(&dirmodels.Player{ID: f.player, FirstName: "Berk", LastName: "Şahin", Club: "Bursaspor"})

	r := chi.NewRouter()
	New(service.New(st, service.WithLogger(logger)), logger).Register(r)
	f.router = r
	return f
}

func (f *fixture) start(t *testing.T, userID id.UserID, playerID string) *http.Request {
	req := testutil.NewJSONRequest(t, http.MethodPost, "/claims", map[string]string{"player_id": playerID})
	return testutil.AsUser(req, userID, "premium")
}

func TestStartClaimEndpoint(t *testing.T) {
	testutil.Given(t, "a premium user and an unclaimed player", func(t *testing.T) {
		f := newFixture(t)

		testutil.When(t, "the user starts a claim", func(t *testing.T) {
			rr := testutil.DoRequest(f.router, f.start(t, f.premium, f.player.String()))

			testutil.Then(t, "the claim is created awaiting identity", func(t *testing.T) {
				require.Equal(t, http.StatusCreated, rr.Code)
				res := testutil.UnmarshalResponse[claimmodels.StartResult](t, rr)
				assert.Equal(t, claimmodels.StatusPendingIdentity, res.Status)
				assert.Equal(t, "identity_verification", res.NextStep)
				assert.False(t, uuid.UUID(res.ClaimID) == uuid.Nil)
			})
		})

		testutil.When(t, "the user starts a second claim", func(t *testing.T) {
			rr := testutil.DoRequest(f.router, f.start(t, f.premium, f.player.String()))

			testutil.Then(t, "it conflicts with the active one", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusConflict, string(dErrors.CodeConflict))
			})
		})
	})

	testutil.Given(t, "a free user", func(t *testing.T) {
		f := newFixture(t)
		rr := testutil.DoRequest(f.router, f.start(t, f.free, f.player.String()))

		testutil.Then(t, "the claim is forbidden", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeForbidden))
		})
	})

	testutil.Given(t, "a malformed player ID", func(t *testing.T) {
		f := newFixture(t)
		rr := testutil.DoRequest(f.router, f.start(t, f.premium, "player-7"))

		testutil.Then(t, "the request is rejected before the service", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
			u, err := f.store.Users().FindByID(t.Context(), f.premium)
			require.NoError(t, err)
			assert.Zero(t, u.ClaimAttempts)
		})
	})

	testutil.Given(t, "no authenticated user", func(t *testing.T) {
		f := newFixture(t)
		req := testutil.NewJSONRequest(t, http.MethodPost, "/claims", map[string]string{"player_id": f.player.String()})
		rr := testutil.DoRequest(f.router, req)

		testutil.Then(t, "the request is unauthorized", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, string(dErrors.CodeUnauthorized))
		})
	})
}

func TestMyClaimEndpoint(t *testing.T) {
	f := newFixture(t)
	mine := func() *http.Request {
		return testutil.AsUser(testutil.NewRequest(t, http.MethodGet, "/claims/me"), f.premium, "premium")
	}

	rr := testutil.DoRequest(f.router, mine())
	require.Equal(t, http.StatusOK, rr.Code)
	testutil.AssertJSONContains(t, rr, "claim", nil)

	testutil.DoRequest(f.router, f.start(t, f.premium, f.player.String()))

	rr = testutil.DoRequest(f.router, mine())
	require.Equal(t, http.StatusOK, rr.Code)
	res := testutil.UnmarshalResponse[mineResponse](t, rr)
	require.NotNil(t, res.Claim)
	assert.Equal(t, f.player, res.Claim.PlayerID)
	assert.Equal(t, "Bursaspor", res.Claim.Player.Club)
}

func TestUpdateProfileEndpoint(t *testing.T) {
	f := newFixture(t)
	path := "/claims/players/" + f.player.String() + "/profile"

	t.Run("pending claimant is forbidden", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"bio": "Striker"}), f.premium, "premium")
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusForbidden, string(dErrors.CodeForbidden))
	})

	t.Run("owner updates profile", func(t *testing.T) {
		require.NoError(t, f.store.Users().AssignClaimedPlayer(t.Context(), f.premium, f.player))

		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPut, path, map[string]any{"bio": "Striker", "height": 182}), f.premium, "premium")
		rr := testutil.DoRequest(f.router, req)

		require.Equal(t, http.StatusOK, rr.Code)
		profile := testutil.UnmarshalResponse[dirmodels.PlayerProfile](t, rr)
		assert.Equal(t, "Striker", *profile.Bio)
		assert.Equal(t, 182, *profile.Height)
	})

	t.Run("bad player ID", func(t *testing.T) {
		req := testutil.AsUser(testutil.NewJSONRequest(t, http.MethodPut, "/claims/players/nope/profile", map[string]any{}), f.premium, "premium")
		rr := testutil.DoRequest(f.router, req)
		testutil.AssertStatusAndError(t, rr, http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})
}
