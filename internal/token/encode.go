package token

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kataras/jwt"
)

const DefaultLifetime = time.Hour

var ErrMissingSecret = errors.New("token signing secret is not set")

/* Payload of every bearer token: standard iat/exp/jti plus account identity.
 * name is filled only for donor accounts so the client can greet without an extra request. */
type Claims struct {
	jwt.Claims
	AccountID string `json:"id"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
}

func (c *Claims) IssuedTime() time.Time {
	return time.Unix(c.IssuedAt, 0)
}

func (c *Claims) ExpiresTime() time.Time {
	return time.Unix(c.Expiry, 0)
}

type Issuer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

func NewIssuer(secret []byte, lifetime time.Duration) *Issuer {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Issuer{
		secret:   secret,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// WithClock returns a copy of the issuer that reads the current time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	clone := *i
	clone.now = now
	return &clone
}

func (i *Issuer) Lifetime() time.Duration {
	return i.lifetime
}

// Issue signs a new token for the account. The returned claims carry the
// resolved iat/exp/jti values.
func (i *Issuer) Issue(accountID, accountType, name string) (string, *Claims, error) {
	if len(i.secret) == 0 {
		return "", nil, ErrMissingSecret
	}
	issuedAt := i.now()
	claims := &Claims{
		Claims: jwt.Claims{
			ID:       uuid.NewString(),
			IssuedAt: issuedAt.Unix(),
			Expiry:   issuedAt.Add(i.lifetime).Unix(),
		},
		AccountID: accountID,
		Type:      accountType,
		Name:      name,
	}
	signed, err := jwt.Sign(jwt.HS256, i.secret, claims)
	if err != nil {
		return "", nil, err
	}
	return string(signed), claims, nil
}
