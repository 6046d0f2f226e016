package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	claimmodels "profileclaim/internal/claims/models"
	dirmodels "profileclaim/internal/directory/models"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/httputil"
	"profileclaim/pkg/requestcontext"
)

type Service interface {
	StartClaim(ctx context.Context, userID id.UserID, playerID id.PlayerID) (*claimmodels.StartResult, error)
	LatestClaim(ctx context.Context, userID id.UserID) (*claimmodels.ClaimSummary, error)
	UpdateProfile(ctx context.Context, userID id.UserID, playerID id.PlayerID, update dirmodels.ProfileUpdate) (*dirmodels.PlayerProfile, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts claimant routes on an already authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/claims", h.handleStart)
	r.Get("/claims/me", h.handleMine)
	r.Put("/claims/players/{playerId}/profile", h.handleUpdateProfile)
}

type startRequest struct {
	PlayerID string `json:"player_id"`
}

type mineResponse struct {
	Claim *claimmodels.ClaimSummary `json:"claim"`
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req startRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	playerID, err := id.ParsePlayerID(req.PlayerID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.StartClaim(ctx, userID, playerID)
	if err != nil {
		h.logFailure(ctx, "start claim", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, res)
}

func (h *Handler) handleMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	summary, err := h.service.LatestClaim(ctx, userID)
	if err != nil {
		h.logFailure(ctx, "load claim", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, mineResponse{Claim: summary})
}

func (h *Handler) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	playerID, err := id.ParsePlayerID(chi.URLParam(r, "playerId"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var update dirmodels.ProfileUpdate
	if err := httputil.DecodeJSON(r, &update); err != nil {
		httputil.WriteError(w, err)
		return
	}

	profile, err := h.service.UpdateProfile(ctx, userID, playerID, update)
	if err != nil {
		h.logFailure(ctx, "update profile", userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, profile)
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (id.UserID, bool) {
	userID := requestcontext.UserID(r.Context())
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return id.UserID{}, false
	}
	return userID, true
}

func (h *Handler) logFailure(ctx context.Context, op string, userID id.UserID, err error) {
	if dErrors.CodeOf(err) != dErrors.CodeInternal {
		return
	}
	h.logger.ErrorContext(ctx, op+" failed",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"error", err,
	)
}
