package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/schoolhub/backend/core"
	"github.com/schoolhub/backend/core/user"
)

// ErrInvalidToken is returned for missing, malformed, expired, mis-signed or wrong-purpose tokens.
var ErrInvalidToken = core.NewUnauthorizedError("invalid or expired token")

// Purpose tells access tokens and refresh tokens apart.
type Purpose string

const (
	PurposeAccess  Purpose = "access"
	PurposeRefresh Purpose = "refresh"
)

// Identity is the authenticated caller as carried by a token.
type Identity struct {
	UserID string    `json:"userId"`
	Email  string    `json:"email"`
	Role   user.Role `json:"role"`
}

func IdentityOf(usr user.User) Identity {
	return Identity{UserID: usr.ID, Email: usr.Email, Role: usr.Role}
}

func (id Identity) LogPerson() core.Person {
	return core.Person{ID: id.UserID, Email: id.Email}
}

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.RegisteredClaims
	Email   string    `json:"email"`
	Role    user.Role `json:"role"`
	Purpose Purpose   `json:"typ"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenIssuer signs and verifies HS256 tokens.
type TokenIssuer struct {
	key        []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewTokenIssuer(conf core.AuthConfig) *TokenIssuer {
	return &TokenIssuer{
		key:        []byte(conf.SecretKey),
		issuer:     conf.Issuer,
		accessTTL:  conf.AccessTokenTTL,
		refreshTTL: conf.RefreshTokenTTL,
		now:        time.Now,
	}
}

// WithTimeFunc sets the clock used to issue and verify tokens.
func (ti *TokenIssuer) WithTimeFunc(now func() time.Time) *TokenIssuer {
	ti.now = now
	return ti
}

func (ti *TokenIssuer) ttl(purpose Purpose) time.Duration {
	if purpose == PurposeRefresh {
		return ti.refreshTTL
	}
	return ti.accessTTL
}

// Issue signs a token of the given purpose for id.
func (ti *TokenIssuer) Issue(id Identity, purpose Purpose) (string, error) {
	now := ti.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    ti.issuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl(purpose))),
		},
		Email:   id.Email,
		Role:    id.Role,
		Purpose: purpose,
	}
	ss, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ti.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func (ti *TokenIssuer) IssuePair(id Identity) (TokenPair, error) {
	access, err := ti.Issue(id, PurposeAccess)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issuing access token")
	}
	refresh, err := ti.Issue(id, PurposeRefresh)
	if err != nil {
		return TokenPair{}, errors.Wrap(err, "issuing refresh token")
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// Verify checks the token's signature, expiry, issuer and purpose and returns the identity it carries.
func (ti *TokenIssuer) Verify(token string, purpose Purpose) (Identity, error) {
	if token == "" {
		return Identity{}, ErrInvalidToken
	}
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(
		token, claims,
		func(*jwt.Token) (interface{}, error) { return ti.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return Identity{}, ErrInvalidToken
	}
	if claims.Purpose != purpose || claims.Subject == "" || !claims.Role.IsValid() {
		return Identity{}, ErrInvalidToken
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, Role: claims.Role}, nil
}

// HashToken returns the hex SHA-256 digest under which a refresh token is stored.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenMatchesHash(token, hash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashToken(token)), []byte(hash)) == 1
}
