package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aryan0dhankhar/farmorders/internal/domain"
)

// clockSkew tolerated between instances when checking exp and iat
const clockSkew = 30 * time.Second

// Claims identify a member session
type Claims struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor returns the identity carried by the token
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{UserID: c.UserID, Username: c.Username, Role: c.Role}
}

// TokenManager signs and verifies HS256 session tokens
type TokenManager struct {
	secret []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

func NewTokenManager(secret, issuer string) *TokenManager {
	if issuer == "" {
		issuer = "farmorders"
	}
	tm := &TokenManager{secret: []byte(secret), issuer: issuer, now: time.Now}
	tm.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(func() time.Time { return tm.now() }),
	)
	return tm
}

// GenerateToken signs a session token for user. Every token carries a
// unique ID so it can be revoked on sign out.
func (tm *TokenManager) GenerateToken(user *domain.User, ttl time.Duration) (string, *Claims, error) {
	if user == nil || user.ID == "" {
		return "", nil, fmt.Errorf("%w: user id required", domain.ErrBadArguments)
	}
	now := tm.now()
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// ValidateToken verifies signature, issuer and expiry. Failures wrap
// domain.ErrUnauthorized.
func (tm *TokenManager) ValidateToken(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, err := tm.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.UserID == "" || !claims.Role.Valid() {
		return nil, fmt.Errorf("%w: incomplete claims", domain.ErrUnauthorized)
	}
	return claims, nil
}

// ExtractToken returns the credentials of a "Bearer <token>" header
func ExtractToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", fmt.Errorf("%w: expected a bearer token", domain.ErrUnauthorized)
	}
	return token, nil
}
