package middleware

import (
	"context"
	"net/http"

	"identity-service/internal/domain"
)

type contextKey string

const (
	ContextUserID  contextKey = "userID"
	ContextToken   contextKey = "token"
	ContextTokenID contextKey = "tokenID"
	ContextEmail   contextKey = "email"
	ContextRole    contextKey = "role"
	ContextClaims  contextKey = "claims"
)

func GetUserID(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextUserID).(string)
	return val, ok
}

func GetToken(ctx context.Context) (string, bool) {
	val, ok := ctx.Value(ContextToken).(string)
	return val, ok
}

func GetClaims(ctx context.Context) (*domain.SessionClaims, bool) {
	val, ok := ctx.Value(ContextClaims).(*domain.SessionClaims)
	return val, ok
}

func setContextValues(r *http.Request, claims *domain.SessionClaims, token string) *http.Request {
	ctx := context.WithValue(r.Context(), ContextUserID, claims.Subject)
	ctx = context.WithValue(ctx, ContextToken, token)
	ctx = context.WithValue(ctx, ContextTokenID, claims.TokenID)
	ctx = context.WithValue(ctx, ContextEmail, claims.Email)
	ctx = context.WithValue(ctx, ContextRole, string(claims.Role))
	ctx = context.WithValue(ctx, ContextClaims, claims)
	return r.WithContext(ctx)
}
