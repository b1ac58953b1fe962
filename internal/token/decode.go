package token

import (
	"errors"
	"strings"
	"time"

	"github.com/kataras/jwt"
)

var (
	ErrMissing = errors.New("no authorization header")
	ErrExpired = errors.New("token is expired")
	ErrInvalid = errors.New("token is invalid")
)

// Verify checks signature and expiry and returns the decoded claims.
// Expired tokens yield ErrExpired, everything else ErrInvalid.
func (i *Issuer) Verify(rawToken string) (*Claims, error) {
	if len(i.secret) == 0 {
		return nil, ErrMissingSecret
	}
	verified, err := jwt.Verify(jwt.HS256, i.secret, []byte(rawToken))
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return nil, ErrExpired
		}
		return nil, errors.Join(ErrInvalid, err)
	}
	claims := &Claims{}
	if err = verified.Claims(claims); err != nil {
		return nil, errors.Join(ErrInvalid, err)
	}
	/* Проверяем срок жизни сами: на случай, если в токене нет exp или часы библиотеки подменены */
	if claims.Expiry == 0 || !i.now().Before(time.Unix(claims.Expiry, 0)) {
		return nil, ErrExpired
	}
	if claims.AccountID == "" || claims.Type == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// FromHeader extracts the token from an Authorization header value. A bare
// token without the Bearer prefix is accepted as well.
func FromHeader(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", ErrMissing
	}
	if scheme, rest, found := strings.Cut(header, " "); found && strings.EqualFold(scheme, "bearer") {
		header = strings.TrimSpace(rest)
	} else if strings.EqualFold(header, "bearer") {
		header = ""
	}
	if header == "" {
		return "", ErrMissing
	}
	return header, nil
}
