package identity

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/studyshare/studyshare-api/internal/domain"
)

var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("identity: access token required")
	// ErrInvalidToken indicates the bearer token was rejected.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrInvalidCredentials indicates a failed email/password sign-in.
	ErrInvalidCredentials = errors.New("identity: invalid credentials")
	// ErrSignUpRejected indicates the identity store refused to create the account.
	ErrSignUpRejected = errors.New("identity: sign up rejected")
)

// RejectedError carries the identity store's reason for refusing a sign-up,
// such as an already registered email or a weak password.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	return "identity: sign up rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error { return ErrSignUpRejected }

// Authenticator resolves a bearer token to the identity that owns it.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// SignUpParams carries the credentials and profile metadata for a new account.
type SignUpParams struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Session is an issued token pair.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Account is the result of a sign-up or sign-in. Session is nil when the
// identity store requires email confirmation first.
type Account struct {
	User    domain.Identity
	Session *Session
}

// Provider is the account surface of the identity store.
type Provider interface {
	Authenticator
	SignUp(ctx context.Context, params SignUpParams) (Account, error)
	SignIn(ctx context.Context, email, password string) (Account, error)
	SignOut(ctx context.Context, token string) error
}

// BearerToken extracts the token from an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

type ctxKey struct{}

// WithIdentity stores the authenticated identity on the context.
func WithIdentity(ctx context.Context, id domain.Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity.
func FromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(domain.Identity)
	return id, ok
}
