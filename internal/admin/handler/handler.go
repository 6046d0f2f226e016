package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	adminmodels "profileclaim/internal/admin/models"
	auditmodels "profileclaim/internal/audit/models"
	dirmodels "profileclaim/internal/directory/models"
	id "profileclaim/pkg/domain"
	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/httputil"
	"profileclaim/pkg/requestcontext"
)

type Service interface {
	ListPendingReviews(ctx context.Context) ([]*adminmodels.PendingReview, error)
	Approve(ctx context.Context, claimID id.ClaimID, adminID id.UserID) (*adminmodels.Decision, error)
	Reject(ctx context.Context, claimID id.ClaimID, adminID id.UserID, reason string) (*adminmodels.Decision, error)
	Dashboard(ctx context.Context) (*adminmodels.Dashboard, error)
	ListUsers(ctx context.Context, page, limit int, role *dirmodels.Role) (*adminmodels.UserPage, error)
	SetUserRole(ctx context.Context, userID id.UserID, role dirmodels.Role, adminID id.UserID) (*adminmodels.RoleChange, error)
}

// AuditReader pages through the admin audit ledger. Satisfied by *audit.Ledger.
type AuditReader interface {
	List(ctx context.Context, page, limit int) (*auditmodels.Page, error)
}

type Handler struct {
	service Service
	audit   AuditReader
	logger  *slog.Logger
}

func New(service Service, audit AuditReader, logger *slog.Logger) *Handler {
	return &Handler{service: service, audit: audit, logger: logger}
}

// Register mounts the admin routes. The router must already enforce the
// admin role.
func (h *Handler) Register(r chi.Router) {
	r.Get("/admin/claims/pending", h.handlePending)
	r.Put("/admin/claims/{id}/approve", h.handleApprove)
	r.Put("/admin/claims/{id}/reject", h.handleReject)
	r.Get("/admin/audit-logs", h.handleAuditLogs)
	r.Get("/admin/dashboard", h.handleDashboard)
	r.Get("/admin/users", h.handleListUsers)
	r.Put("/admin/users/{id}/role", h.handleSetRole)
}

type pendingResponse struct {
	Data  []*adminmodels.PendingReview `json:"data"`
	Count int                          `json:"count"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type roleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) handlePending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	reviews, err := h.service.ListPendingReviews(ctx)
	if err != nil {
		h.fail(w, r, "list pending reviews", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pendingResponse{Data: reviews, Count: len(reviews)})
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	decision, err := h.service.Approve(ctx, claimID, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "approve claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claimID, err := id.ParseClaimID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, &req); err != nil {
			httputil.WriteError(w, err)
			return
		}
	}
	decision, err := h.service.Reject(ctx, claimID, requestcontext.UserID(ctx), req.Reason)
	if err != nil {
		h.fail(w, r, "reject claim", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	res, err := h.audit.List(r.Context(), page, limit)
	if err != nil {
		h.fail(w, r, "list audit logs", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	page, err := intQuery(r, "page")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := intQuery(r, "limit")
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var role *dirmodels.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := dirmodels.ParseRole(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		role = &parsed
	}
	res, err := h.service.ListUsers(r.Context(), page, limit, role)
	if err != nil {
		h.fail(w, r, "list users", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.fail(w, r, "load dashboard", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, d)
}

func (h *Handler) handleSetRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, err := id.ParseUserID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var req roleRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.WriteError(w, err)
		return
	}
	role, err := dirmodels.ParseRole(req.Role)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	change, err := h.service.SetUserRole(ctx, userID, role, requestcontext.UserID(ctx))
	if err != nil {
		h.fail(w, r, "set user role", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, change)
}

// intQuery reads an optional positive integer query parameter; 0 when absent.
func intQuery(r *http.Request, key string) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, key+" must be a positive integer")
	}
	return n, nil
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestcontext.RequestID(ctx),
			"admin_id", requestcontext.UserID(ctx),
			"error", err,
		)
	}
	httputil.WriteError(w, err)
}
