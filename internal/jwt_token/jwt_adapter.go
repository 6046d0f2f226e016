package jwttoken

import (
	id "profileclaim/pkg/domain"
	authmw "profileclaim/pkg/platform/middleware/auth"
)

func ToMiddlewareClaims(claims *AccessTokenClaims) (*authmw.JWTClaims, error) {
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{
		UserID: userID,
		Role:   claims.Role,
		JTI:    claims.ID,
	}, nil
}

// JWTServiceAdapter lets the auth middleware validate tokens without
// depending on the jwt library.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	return ToMiddlewareClaims(claims)
}
