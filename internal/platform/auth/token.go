package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenLifetime applies when TokenConfig.Lifetime is zero.
const DefaultTokenLifetime = 7 * 24 * time.Hour

// Claims is the JWT payload issued at login and registration.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
	Role     Role   `json:"role"`
	Email    string `json:"email"`
}

// Identity is the verified content of a bearer token.
type Identity struct {
	AccountID string
	TenantID  string
	Role      Role
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type TokenConfig struct {
	Secret   []byte
	Lifetime time.Duration
	Issuer   string
	// Now defaults to time.Now; tests pin it.
	Now func() time.Time
}

// Verifier signs and verifies HS256 session tokens with an injected secret.
type Verifier struct {
	secret   []byte
	lifetime time.Duration
	issuer   string
	now      func() time.Time
}

func NewVerifier(cfg TokenConfig) (*Verifier, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.Lifetime <= 0 {
		cfg.Lifetime = DefaultTokenLifetime
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Verifier{
		secret:   cfg.Secret,
		lifetime: cfg.Lifetime,
		issuer:   cfg.Issuer,
		now:      cfg.Now,
	}, nil
}

// Issue signs a token for the identity and returns it with its expiry.
// IssuedAt and ExpiresAt on id are ignored; the verifier clock decides both.
func (v *Verifier) Issue(id Identity) (string, time.Time, error) {
	if id.AccountID == "" || id.TenantID == "" {
		return "", time.Time{}, errors.New("account and tenant are required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", string(id.Role))
	}

	now := v.now().UTC()
	expiresAt := now.Add(v.lifetime)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TenantID: id.TenantID,
		Role:     id.Role,
		Email:    id.Email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of token. Any failure yields
// (nil, false); callers treat that as unauthenticated.
func (v *Verifier) Verify(token string) (*Identity, bool) {
	if token == "" {
		return nil, false
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	if claims.Subject == "" || claims.TenantID == "" || !claims.Role.Valid() {
		return nil, false
	}

	id := &Identity{
		AccountID: claims.Subject,
		TenantID:  claims.TenantID,
		Role:      claims.Role,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		id.IssuedAt = claims.IssuedAt.Time
	}
	return id, true
}
