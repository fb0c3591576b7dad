package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims carried by admin session tokens.
type Claims struct {
	Role  string `json:"role"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// KeySource resolves RS256 verification keys by key id.
type KeySource interface {
	Get(keyID string) (*rsa.PublicKey, error)
}

// Verifier checks HS256 tokens against a shared secret and, when Keys is
// set, RS256 tokens against a key source.
type Verifier struct {
	Secret   []byte
	Keys     KeySource
	Issuer   string
	Audience string
	Leeway   time.Duration
}

func SignHS256(claims Claims, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret is empty")
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// NewSessionClaims fills the registered claims for a token valid for ttl.
func NewSessionClaims(subject, email, role, issuer string, ttl time.Duration, now time.Time) Claims {
	return Claims{
		Role:  role,
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}

func (v Verifier) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods(v.methods()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.Leeway),
	}
	if v.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.Issuer))
	}
	if v.Audience != "" {
		opts = append(opts, jwt.WithAudience(v.Audience))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, v.keyFunc, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return &claims, nil
}

func (v Verifier) methods() []string {
	methods := []string{jwt.SigningMethodHS256.Alg()}
	if v.Keys != nil {
		methods = append(methods, jwt.SigningMethodRS256.Alg())
	}
	return methods
}

func (v Verifier) keyFunc(t *jwt.Token) (any, error) {
	switch t.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(v.Secret) == 0 {
			return nil, errors.New("hs256 not configured")
		}
		return v.Secret, nil
	case *jwt.SigningMethodRSA:
		if v.Keys == nil {
			return nil, errors.New("rs256 not configured")
		}
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return v.Keys.Get(kid)
	default:
		return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
	}
}
