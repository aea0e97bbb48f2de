package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultSessionTTL = 24 * time.Hour

// JWT signs anonymous session tokens. The subject is an opaque session id.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) *JWT {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// NewSessionID returns a fresh anonymous session id.
func NewSessionID() string {
	return uuid.NewString()
}

func (j *JWT) Sign(uid string) (string, time.Time, error) {
	if uid == "" {
		return "", time.Time{}, errors.New("empty session id")
	}
	now := j.now()
	exp := now.Add(j.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   uid,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := t.SignedString(j.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, exp, nil
}

func (j *JWT) Verify(tokenStr string) (string, error) {
	var claims jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tokenStr, &claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return j.secret, nil
	}, jwt.WithTimeFunc(j.now), jwt.WithExpirationRequired())
	if err != nil || !t.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Subject == "" {
		return "", errors.New("missing sub")
	}
	return claims.Subject, nil
}
