package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/h-like/sleeprism-chat/chat"
	"github.com/h-like/sleeprism-chat/databases"
	"github.com/h-like/sleeprism-chat/models"
)

// Claims are the registered claims plus the nickname the platform puts in its tokens
type Claims struct {
	Nickname string `json:"nickname,omitempty"`
	jwt.RegisteredClaims
}

// Verifier checks HS256 bearer tokens issued by the platform. The subject is the numeric
// user id, which must exist in the user directory.
type Verifier struct {
	secret []byte
	issuer string
	users  databases.UserDatabase
}

// NewVerifier creates a token verifier. An empty issuer skips the issuer check.
func NewVerifier(secret, issuer string, users databases.UserDatabase) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, users: users}
}

// Verify implements chat.Verifier
func (v *Verifier) Verify(ctx context.Context, token string) (chat.Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return chat.Identity{}, fmt.Errorf("%w: %v", chat.ErrUnauthenticated, err)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return chat.Identity{}, fmt.Errorf("%w: invalid subject %q", chat.ErrUnauthenticated, claims.Subject)
	}
	user, err := v.users.FindByID(ctx, uint(id))
	if errors.Is(err, databases.ErrNotFound) {
		return chat.Identity{}, fmt.Errorf("%w: unknown user %d", chat.ErrUnauthenticated, id)
	}
	if err != nil {
		return chat.Identity{}, fmt.Errorf("failed to load user %d: %w", id, err)
	}
	out := chat.Identity{UserID: user.ID, Email: user.Email, Nickname: user.Nickname}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Issuer signs tokens the Verifier accepts. The platform's account service owns login;
// this is used by tooling and tests.
type Issuer struct {
	secret []byte
	issuer string
}

// NewIssuer creates a token issuer
func NewIssuer(secret, issuer string) *Issuer {
	return &Issuer{secret: []byte(secret), issuer: issuer}
}

// Issue signs a token for user valid for ttl
func (i *Issuer) Issue(user models.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Nickname: user.Nickname,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
