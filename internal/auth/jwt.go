package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ANADelta/AlphaClassBot-App2/internal/apperr"
	"github.com/ANADelta/AlphaClassBot-App2/internal/model"
)

type Claims struct {
	UserID        string `json:"user_id"`
	Role          string `json:"role"`
	InstitutionID string `json:"institution_id,omitempty"`
	jwt.RegisteredClaims
}

func NewAccessToken(secret, issuer string, ttl time.Duration, claims Claims) (string, error) {
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken verifies a bearer token and returns the principal it encodes.
// Tokens with a missing or unknown role are rejected even when the signature
// checks out: a principal without a role cannot be scoped.
func ParseToken(secret, issuer, tokenString string) (model.Principal, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithIssuer(issuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return model.Principal{}, apperr.Wrap(apperr.KindInvalidCredential, "invalid_token", err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return model.Principal{}, apperr.New(apperr.KindInvalidCredential, "invalid_token")
	}
	if claims.UserID == "" || !model.ValidRole(claims.Role) {
		return model.Principal{}, apperr.New(apperr.KindInvalidCredential, "invalid_token")
	}
	return model.Principal{
		UserID:        claims.UserID,
		Role:          claims.Role,
		InstitutionID: claims.InstitutionID,
	}, nil
}
