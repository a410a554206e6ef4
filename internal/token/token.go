// Package token issues and verifies the short-lived join credentials
// that scope a user to one role inside one session.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/telemed-live/videocall-service/internal/domain"
)

var (
	ErrNoSecret     = errors.New("join token signing secret is not configured")
	ErrInvalidToken = errors.New("invalid join token")
	ErrExpiredToken = errors.New("join token has expired")
)

// DefaultTTL is the join token lifetime. Expiry is the only
// termination mechanism; there is no revocation list.
const DefaultTTL = time.Hour

// Claims are the signed contents of a join token.
type Claims struct {
	jwt.RegisteredClaims
	SessionID   string   `json:"sessionId"`
	RoomName    string   `json:"roomName"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// Issuer signs and verifies join tokens with a shared HMAC secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. An empty secret is a configuration
// error; the service must fail closed rather than sign with nothing.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}, nil
}

// TTL returns the configured token lifetime.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a join token for the given subject, session, room and
// role. The permission set is fixed by the role.
func (i *Issuer) Issue(subject, sessionID, roomName string, role domain.Role) (string, error) {
	if !role.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidToken, role)
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		SessionID:   sessionID,
		RoomName:    roomName,
		Role:        string(role),
		Permissions: role.Permissions(),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify checks signature and expiry and returns the decoded claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// DecodeUnverified parses a token's claims without checking the
// signature. Clients use it to read their role and room; the relay
// and orchestrator never trust unverified claims.
func DecodeUnverified(tokenString string) (*Claims, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
