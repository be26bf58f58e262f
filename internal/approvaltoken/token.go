// Package approvaltoken mints and checks the signed capability tokens that let
// a business owner resume phase 2 of onboarding without a session.
//
// Tokens are HS256 JWTs. They are self-contained and are not tracked server
// side, so a token stays valid until it expires.
package approvaltoken

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	Phase2 = "phase2"

	DefaultIssuer   = "roam-admin"
	DefaultAudience = "roam-provider-onboarding"
	DefaultTTL      = 7 * 24 * time.Hour

	// OnboardingPath is where the onboarding app picks the token up.
	OnboardingPath = "/provider-onboarding/phase2"
)

var (
	ErrMissingSecret         = errors.New("approval token secret is not configured")
	ErrInvalidToken          = errors.New("invalid approval token")
	ErrExpiredToken          = errors.New("approval token has expired")
	ErrWrongAudienceOrIssuer = errors.New("approval token issuer or audience mismatch")
	ErrWrongPhase            = errors.New("approval token is not valid for this phase")
)

// Claims is the payload carried by a capability token. Times are epoch
// milliseconds.
type Claims struct {
	BusinessID    string `json:"business_id"`
	UserID        string `json:"user_id"`
	ApplicationID string `json:"application_id"`
	IssuedAt      int64  `json:"issued_at"`
	ExpiresAt     int64  `json:"expires_at"`
	Phase         string `json:"phase"`
	Step          string `json:"step,omitempty"`
}

func (c Claims) ExpiresTime() time.Time { return time.UnixMilli(c.ExpiresAt).UTC() }

// tokenClaims is the on-the-wire claim set.
type tokenClaims struct {
	jwt.RegisteredClaims
	Claims
}

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
	Now      func() time.Time
}

type Codec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewCodec refuses to build a codec without a secret.
func NewCodec(cfg Config) (*Codec, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	c := &Codec{
		secret:   []byte(secret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		ttl:      cfg.TTL,
		now:      cfg.Now,
	}
	if c.issuer == "" {
		c.issuer = DefaultIssuer
	}
	if c.audience == "" {
		c.audience = DefaultAudience
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c, nil
}

func (c *Codec) TTL() time.Duration { return c.ttl }

// NewClaims stamps a phase 2 claim set issued now.
func (c *Codec) NewClaims(businessID, userID, applicationID string) Claims {
	now := c.now()
	return Claims{
		BusinessID:    businessID,
		UserID:        userID,
		ApplicationID: applicationID,
		IssuedAt:      now.UnixMilli(),
		ExpiresAt:     now.Add(c.ttl).UnixMilli(),
		Phase:         Phase2,
	}
}

// Issue signs claims. The JWT exp is set from claims.ExpiresAt.
func (c *Codec) Issue(claims Claims) (string, error) {
	if claims.BusinessID == "" || claims.UserID == "" {
		return "", fmt.Errorf("issue approval token: business_id and user_id are required")
	}
	if claims.ExpiresAt <= claims.IssuedAt {
		return "", fmt.Errorf("issue approval token: expires_at must be after issued_at")
	}
	if claims.Phase == "" {
		claims.Phase = Phase2
	}
	tc := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   claims.UserID,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(time.UnixMilli(claims.IssuedAt)),
			ExpiresAt: jwt.NewNumericDate(time.UnixMilli(claims.ExpiresAt)),
		},
		Claims: claims,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, tc).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign approval token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry, then re-checks the
// phase and expires_at claims against the codec clock.
func (c *Codec) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, fmt.Errorf("%w: token is empty", ErrInvalidToken)
	}

	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}

	claims := parsed.Claims
	if claims.Phase != Phase2 {
		return Claims{}, fmt.Errorf("%w: got %q", ErrWrongPhase, claims.Phase)
	}
	if claims.ExpiresAt == 0 || c.now().UnixMilli() >= claims.ExpiresAt {
		return Claims{}, ErrExpiredToken
	}
	if claims.BusinessID == "" || claims.UserID == "" {
		return Claims{}, fmt.Errorf("%w: missing subject claims", ErrInvalidToken)
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredToken
	case errors.Is(err, jwt.ErrTokenInvalidIssuer), errors.Is(err, jwt.ErrTokenInvalidAudience):
		return fmt.Errorf("%w: %v", ErrWrongAudienceOrIssuer, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
}

// BuildURL appends token to the phase 2 onboarding path under baseURL.
func BuildURL(baseURL, token string) string {
	base := strings.TrimRight(baseURL, "/")
	return base + OnboardingPath + "?token=" + url.QueryEscape(token)
}
