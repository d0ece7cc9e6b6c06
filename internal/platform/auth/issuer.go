package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// Issuer mints HS256 access tokens that JWTMiddleware accepts.
type Issuer struct {
	key      []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

func NewIssuer(cfg JWTConfig, ttl time.Duration) (*Issuer, error) {
	if len(cfg.SigningKey) == 0 {
		return nil, errors.New("auth: signing key is required to issue tokens")
	}
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	return &Issuer{key: cfg.SigningKey, issuer: cfg.Issuer, audience: cfg.Audience, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for a and its expiry.
func (i *Issuer) Issue(a tenancy.Actor) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   a.UserID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Roles:         []string{a.Role},
		PlatformAdmin: a.PlatformAdmin,
	}
	if i.audience != "" {
		claims.Audience = jwt.ClaimStrings{i.audience}
	}
	if a.HasTenant() {
		claims.TenantID = a.TenantID.String()
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}
