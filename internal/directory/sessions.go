package directory

import (
	"context"
	"fmt"
	"time"

	"github.com/LazarusTes/auth-portal-express/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload.
type Claims struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
	jwt.RegisteredClaims
}

// RevocationList remembers signed-out token ids until they would have expired.
type RevocationList interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

type Sessions struct {
	secret  []byte
	ttl     time.Duration
	revoked RevocationList
	now     func() time.Time
}

func NewSessions(secret string, ttl time.Duration, revoked RevocationList) *Sessions {
	return &Sessions{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue signs a token for an authenticated identity.
func (s *Sessions) Issue(id *Identity) (string, error) {
	now := s.now()
	claims := Claims{
		AccountID: id.AccountID,
		Email:     id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   id.AccountID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

func (s *Sessions) parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !token.Valid || claims.AccountID == "" {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}

// CurrentIdentity verifies a token and rejects signed-out sessions.
func (s *Sessions) CurrentIdentity(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString)
	if err != nil {
		return nil, err
	}
	revoked, err := s.revoked.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, models.StoreError("check session", err)
	}
	if revoked {
		return nil, models.ErrInvalidToken
	}
	return claims, nil
}

// SignOut revokes the session behind tokenString. Signing out an already
// invalid token is an error; signing out twice is not.
func (s *Sessions) SignOut(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString)
	if err != nil {
		return err
	}
	if err := s.revoked.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return models.StoreError("revoke session", err)
	}
	return nil
}
