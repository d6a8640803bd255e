package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
)

const (
	GoogleIssuer  = "https://accounts.google.com"
	GoogleJWKSURL = "https://www.googleapis.com/oauth2/v3/certs"
)

// ErrInvalidAssertion wraps every verification failure.
var ErrInvalidAssertion = errors.New("invalid identity assertion")

// Claims is the normalized claim set of a verified assertion.
// It contains facts only, no account decisions.
type Claims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       *string
	Gender        *string
}

// GoogleVerifier validates Google ID tokens: signature against Google's current
// keys, issuer, audience == client id, and expiry.
type GoogleVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewGoogleVerifier builds a verifier over Google's remote key set. Keys are
// fetched lazily and cached, so no network call happens here. ctx must outlive
// the verifier since it scopes key refreshes.
func NewGoogleVerifier(ctx context.Context, clientID string) (*GoogleVerifier, error) {
	if clientID == "" {
		return nil, errors.New("google client id is required")
	}
	keys := oidc.NewRemoteKeySet(ctx, GoogleJWKSURL)
	return NewVerifier(oidc.NewVerifier(GoogleIssuer, keys, &oidc.Config{ClientID: clientID})), nil
}

// NewVerifier wraps an already configured oidc verifier.
func NewVerifier(v *oidc.IDTokenVerifier) *GoogleVerifier {
	return &GoogleVerifier{verifier: v}
}

// flexBool accepts both JSON booleans and the "true"/"false" strings some
// providers emit for email_verified.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	switch strings.ToLower(s) {
	case "true":
		*b = true
	case "false", "null", "":
		*b = false
	default:
		return fmt.Errorf("invalid boolean %q", s)
	}
	return nil
}

// Verify checks the assertion and returns its normalized claims.
func (g *GoogleVerifier) Verify(ctx context.Context, assertion string) (*Claims, error) {
	if strings.TrimSpace(assertion) == "" {
		return nil, fmt.Errorf("%w: empty assertion", ErrInvalidAssertion)
	}
	idToken, err := g.verifier.Verify(ctx, assertion)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAssertion, err)
	}

	var raw struct {
		Subject       string   `json:"sub"`
		Email         string   `json:"email"`
		EmailVerified flexBool `json:"email_verified"`
		Name          string   `json:"name"`
		Picture       string   `json:"picture"`
		Gender        string   `json:"gender"`
	}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: claims parse failed: %v", ErrInvalidAssertion, err)
	}
	if raw.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidAssertion)
	}

	c := &Claims{
		Subject:       raw.Subject,
		Email:         raw.Email,
		EmailVerified: bool(raw.EmailVerified),
		Name:          raw.Name,
	}
	if raw.Picture != "" {
		c.Picture = &raw.Picture
	}
	if raw.Gender != "" {
		c.Gender = &raw.Gender
	}
	return c, nil
}
