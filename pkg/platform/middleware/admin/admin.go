package admin

import (
	"log/slog"
	"net/http"

	dErrors "profileclaim/pkg/domain-errors"
	"profileclaim/pkg/platform/httputil"
	"profileclaim/pkg/requestcontext"
)

// RoleAdmin is the token role allowed through RequireAdmin.
const RoleAdmin = "admin"

// RequireAdmin rejects requests whose token does not carry the admin role.
// It must run after auth.RequireAuth.
func RequireAdmin(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.Role(ctx) != RoleAdmin {
				logger.WarnContext(ctx, "admin route denied",
					"request_id", requestcontext.RequestID(ctx),
					"user_id", requestcontext.UserID(ctx),
					"role", requestcontext.Role(ctx),
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "admin role required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
