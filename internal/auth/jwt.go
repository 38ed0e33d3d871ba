package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/erazemk/makerledger/internal/model"
)

// Claims represents the JWT claims. Role and makerspace assignments in a
// token reflect the account at login; the API refreshes them from the store
// on every request.
type Claims struct {
	UserID        string   `json:"user_id"`
	Username      string   `json:"username"`
	Role          string   `json:"role"`
	MakerspaceIDs []string `json:"makerspace_ids,omitempty"`
	jwt.RegisteredClaims
}

// TokenExpiry is the default token lifetime.
const TokenExpiry = 24 * time.Hour

// GenerateToken creates a new JWT for a user with a unique JTI.
func GenerateToken(secret string, u model.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:        u.ID,
		Username:      u.Username,
		Role:          u.Role,
		MakerspaceIDs: u.MakerspaceIDs,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("token missing subject or id")
	}

	return claims, nil
}

// Actor returns the policy actor the claims describe.
func (c *Claims) Actor() model.Actor {
	return model.Actor{
		UserID:        c.UserID,
		UserName:      c.Username,
		Role:          c.Role,
		MakerspaceIDs: c.MakerspaceIDs,
	}
}
