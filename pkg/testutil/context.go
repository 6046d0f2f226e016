package testutil

import (
	"net/http"

	id "profileclaim/pkg/domain"
	"profileclaim/pkg/requestcontext"
)

// AsUser marks the request as authenticated the way RequireAuth would.
func AsUser(req *http.Request, userID id.UserID, role string) *http.Request {
	ctx := requestcontext.WithUserID(req.Context(), userID)
	ctx = requestcontext.WithRole(ctx, role)
	return req.WithContext(ctx)
}

// WithClient attaches the client metadata captured by ClientMetadata.
func WithClient(req *http.Request, ip, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), ip, userAgent))
}
