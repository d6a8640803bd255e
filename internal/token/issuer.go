package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL applies when no expiry is configured.
const DefaultTTL = 12 * time.Hour

var (
	ErrExpired = errors.New("token expired")
	ErrInvalid = errors.New("token invalid")
)

// Config carries the signer settings.
type Config struct {
	Secret string        `env:"JWT_SECRET"`
	TTL    time.Duration `env:"JWT_EXPIRATION" envDefault:"12h"`
	Issuer string        `env:"JWT_ISSUER"`
}

// Claims is the session token payload. Only UserID is required.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	UserType string `json:"user_type,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Issuer signs and validates HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewIssuer(cfg Config) (*Issuer, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{secret: []byte(cfg.Secret), ttl: ttl, issuer: cfg.Issuer, now: time.Now}, nil
}

// Issue signs the claims with the configured expiry. Registered claims other
// than sub/iat/exp/iss are left as provided.
func (i *Issuer) Issue(c Claims) (string, error) {
	if c.UserID == "" {
		return "", errors.New("user_id claim is required")
	}
	now := i.now()
	c.Subject = c.UserID
	c.IssuedAt = jwt.NewNumericDate(now)
	c.ExpiresAt = jwt.NewNumericDate(now.Add(i.ttl))
	if i.issuer != "" {
		c.Issuer = i.issuer
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := tok.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token. It returns ErrExpired or ErrInvalid
// (wrapping the parser error) on failure.
func (i *Issuer) Validate(raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithTimeFunc(i.now),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}
	var c Claims
	_, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if c.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id", ErrInvalid)
	}
	return &c, nil
}
