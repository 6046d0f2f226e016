package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	identitymodels "profileclaim/internal/identity/models"
	"profileclaim/internal/identity/throttle"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/httputil"
	"profileclaim/pkg/requestcontext"
)

type Service interface {
	VerifyIdentity(ctx context.Context, userID id.UserID, declared identitymodels.DeclaredIdentity) (*identitymodels.VerifyResult, error)
}

type Handler struct {
	service Service
	limiter throttle.Limiter
	logger  *slog.Logger
}

// New builds the handler. limiter may be nil to disable submission throttling.
func New(service Service, limiter throttle.Limiter, logger *slog.Logger) *Handler {
	return &Handler{service: service, limiter: limiter, logger: logger}
}

// Register mounts routes on an already authenticated router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/identity/verify", h.handleVerify)
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := requestcontext.UserID(ctx)
	if userID.IsNil() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
		return
	}

	if !h.allow(w, r, userID) {
		return
	}

	var declared identitymodels.DeclaredIdentity
	if err := httputil.DecodeJSON(r, &declared); err != nil {
		httputil.WriteError(w, err)
		return
	}

	res, err := h.service.VerifyIdentity(ctx, userID, declared)
	if err != nil {
		h.logOutcome(ctx, userID, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// allow applies the submission throttle. A limiter failure lets the request
// through; the verification flow does not depend on the throttle.
func (h *Handler) allow(w http.ResponseWriter, r *http.Request, userID id.UserID) bool {
	if h.limiter == nil {
		return true
	}
	ctx := r.Context()
	decision, err := h.limiter.Allow(ctx, userID.String())
	if err != nil {
		h.logger.WarnContext(ctx, "identity throttle unavailable, allowing request",
			"user_id", userID,
			"error", err,
		)
		return true
	}
	if decision.Allowed {
		return true
	}
	if secs := int(decision.RetryAfter.Seconds()); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many identity submissions; try again later"))
	return false
}

func (h *Handler) logOutcome(ctx context.Context, userID id.UserID, err error) {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeServiceUnavailable:
		h.logger.ErrorContext(ctx, "identity verification failed",
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
	default:
		h.logger.InfoContext(ctx, "identity verification rejected",
			"user_id", userID,
			"request_id", requestcontext.RequestID(ctx),
			"code", dErrors.CodeOf(err),
		)
	}
}
