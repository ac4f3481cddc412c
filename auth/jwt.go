package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrJWTInvalid           = errors.New("auth: invalid jwt")
	ErrJWTExpired           = errors.New("auth: jwt expired")
	ErrJWTInvalidSignature  = errors.New("auth: invalid jwt signature")
	ErrJWTInvalidClaims     = errors.New("auth: invalid jwt claims")
	ErrJWTMissingSigningKey = errors.New("auth: missing signing key")
	ErrJWTWeakSigningKey    = errors.New("auth: signing key too short")
)

// MinSecretLength is the minimum secret length accepted for HS256.
const MinSecretLength = 32

// HMACOptions configures an HMACVerifier.
type HMACOptions struct {
	Issuer   string
	Audience string
	Leeway   time.Duration
	// TTL is the lifetime of tokens minted by Issue.
	TTL time.Duration
	Now func() time.Time
}

func (o HMACOptions) withDefaults() HMACOptions {
	if o.Leeway <= 0 {
		o.Leeway = 30 * time.Second
	}
	if o.TTL <= 0 {
		o.TTL = time.Hour
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type tokenClaims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type verifiedToken struct {
	raw    string
	claims Claims
}

func (t verifiedToken) Raw() string    { return t.raw }
func (t verifiedToken) Claims() Claims { return t.claims }

// HMACVerifier validates HS256 tokens shared with the auth provider.
type HMACVerifier struct {
	secret []byte
	opts   HMACOptions
	parser *jwt.Parser
}

// NewHMACVerifier builds a verifier for secret. Secrets shorter than
// MinSecretLength are rejected.
func NewHMACVerifier(secret []byte, opts HMACOptions) (*HMACVerifier, error) {
	if len(secret) == 0 {
		return nil, ErrJWTMissingSigningKey
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w: need at least %d bytes", ErrJWTWeakSigningKey, MinSecretLength)
	}
	opts = opts.withDefaults()

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(opts.Leeway),
		jwt.WithTimeFunc(opts.Now),
		jwt.WithExpirationRequired(),
	}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	if opts.Audience != "" {
		parserOpts = append(parserOpts, jwt.WithAudience(opts.Audience))
	}

	return &HMACVerifier{
		secret: append([]byte(nil), secret...),
		opts:   opts,
		parser: jwt.NewParser(parserOpts...),
	}, nil
}

// ParseToken verifies raw and returns its claims.
func (v *HMACVerifier) ParseToken(ctx context.Context, raw string) (Token, error) {
	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrTokenNotFound
	}

	var tc tokenClaims
	_, err := v.parser.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrJWTExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrJWTInvalidSignature
		case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, fmt.Errorf("%w: %v", ErrJWTInvalidClaims, err)
		default:
			return nil, fmt.Errorf("%w: %v", ErrJWTInvalid, err)
		}
	}
	if tc.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrJWTInvalidClaims)
	}
	return verifiedToken{raw: raw, claims: claimsFromJWT(tc)}, nil
}

// Issue signs claims with the shared secret. Used by tests and local tooling;
// production tokens come from the auth provider.
func (v *HMACVerifier) Issue(claims Claims) (string, error) {
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrJWTInvalidClaims)
	}
	now := v.opts.Now()
	if claims.IssuedAt.IsZero() {
		claims.IssuedAt = now
	}
	if claims.ExpiresAt.IsZero() {
		claims.ExpiresAt = claims.IssuedAt.Add(v.opts.TTL)
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if claims.Issuer == "" {
		claims.Issuer = v.opts.Issuer
	}
	if len(claims.Audience) == 0 && v.opts.Audience != "" {
		claims.Audience = []string{v.opts.Audience}
	}

	tc := tokenClaims{
		Email: claims.Email,
		Roles: claims.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        claims.ID,
			Subject:   claims.Subject,
			Issuer:    claims.Issuer,
			Audience:  claims.Audience,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			NotBefore: jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(v.secret)
}

func claimsFromJWT(tc tokenClaims) Claims {
	c := Claims{
		ID:       tc.ID,
		Subject:  tc.Subject,
		Email:    tc.Email,
		Roles:    append([]string(nil), tc.Roles...),
		Issuer:   tc.Issuer,
		Audience: append([]string(nil), tc.Audience...),
	}
	if tc.IssuedAt != nil {
		c.IssuedAt = tc.IssuedAt.Time
	}
	if tc.ExpiresAt != nil {
		c.ExpiresAt = tc.ExpiresAt.Time
	}
	return c
}
