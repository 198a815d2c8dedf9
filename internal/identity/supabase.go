package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"github.com/supabase-community/supabase-go"
	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/domain"
)

// SupabaseProvider talks to Supabase Auth (GoTrue) for accounts and tokens.
type SupabaseProvider struct {
	auth    gotrue.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewSupabaseProvider builds a provider using the project URL and service role key.
func NewSupabaseProvider(url, serviceKey string, timeout time.Duration, logger *zap.Logger) (*SupabaseProvider, error) {
	client, err := supabase.NewClient(url, serviceKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SupabaseProvider{auth: client.Auth, timeout: timeout, logger: logger.Named("identity")}, nil
}

// Authenticate asks the identity store who owns token.
func (p *SupabaseProvider) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}
	// The GoTrue client takes no context, so deadlines are enforced around the call.
	user, err := callWithTimeout(ctx, p.timeout, func() (*types.UserResponse, error) {
		return p.auth.WithToken(token).GetUser()
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return domain.Identity{}, fmt.Errorf("get user: %w", err)
		}
		p.logger.Debug("token rejected", zap.Error(err))
		return domain.Identity{}, ErrInvalidToken
	}
	if user.ID == uuid.Nil {
		return domain.Identity{}, ErrInvalidToken
	}
	return domain.Identity{UserID: user.ID.String(), Email: user.Email}, nil
}

// SignUp creates an account. The returned session is nil when email
// confirmation is pending.
func (p *SupabaseProvider) SignUp(ctx context.Context, params SignUpParams) (Account, error) {
	resp, err := callWithTimeout(ctx, p.timeout, func() (*types.SignupResponse, error) {
		return p.auth.Signup(types.SignupRequest{
			Email:    params.Email,
			Password: params.Password,
			Data: map[string]interface{}{
				"first_name": params.FirstName,
				"last_name":  params.LastName,
			},
		})
	})
	if err != nil {
		if rejected, ok := rejectionFrom(err); ok {
			p.logger.Debug("sign up rejected", zap.Int("status", rejected.Status), zap.String("reason", rejected.Reason))
			return Account{}, rejected
		}
		return Account{}, fmt.Errorf("sign up: %w", err)
	}

	userID := resp.User.ID
	email := resp.User.Email
	if userID == uuid.Nil {
		userID = resp.Session.User.ID
		email = resp.Session.User.Email
	}
	if userID == uuid.Nil {
		return Account{}, errors.New("sign up: identity store returned no user")
	}

	account := Account{User: domain.Identity{UserID: userID.String(), Email: email}}
	if resp.Session.AccessToken != "" {
		account.Session = sessionFrom(resp.Session)
	}
	return account, nil
}

// SignIn exchanges an email and password for a session.
func (p *SupabaseProvider) SignIn(ctx context.Context, email, password string) (Account, error) {
	resp, err := callWithTimeout(ctx, p.timeout, func() (*types.TokenResponse, error) {
		return p.auth.SignInWithEmailPassword(email, password)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return Account{}, fmt.Errorf("sign in: %w", err)
		}
		p.logger.Debug("sign in rejected", zap.String("email", email), zap.Error(err))
		return Account{}, ErrInvalidCredentials
	}
	return Account{
		User:    domain.Identity{UserID: resp.User.ID.String(), Email: resp.User.Email},
		Session: sessionFrom(resp.Session),
	}, nil
}

// SignOut revokes the session that token belongs to.
func (p *SupabaseProvider) SignOut(ctx context.Context, token string) error {
	_, err := callWithTimeout(ctx, p.timeout, func() (struct{}, error) {
		return struct{}{}, p.auth.WithToken(token).Logout()
	})
	if err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// gotrue-go reports non-2xx replies only as formatted text.
var statusReply = regexp.MustCompile(`(?s)^response status code (\d{3})(?::\s*(.*))?$`)

// rejectionFrom classifies a client-error reply from GoTrue. Throttling and
// server errors are not rejections.
func rejectionFrom(err error) (*RejectedError, bool) {
	m := statusReply.FindStringSubmatch(err.Error())
	if m == nil {
		return nil, false
	}
	status, _ := strconv.Atoi(m[1])
	if status < 400 || status >= 500 || status == http.StatusTooManyRequests {
		return nil, false
	}
	return &RejectedError{Status: status, Reason: rejectionReason(m[2])}, true
}

func rejectionReason(body string) string {
	var payload struct {
		Msg              string `json:"msg"`
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
		Error            string `json:"error"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err == nil {
		for _, reason := range []string{payload.Msg, payload.Message, payload.ErrorDescription, payload.Error} {
			if reason = strings.TrimSpace(reason); reason != "" {
				return reason
			}
		}
	}
	return "Registration was rejected"
}

func sessionFrom(s types.Session) *Session {
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresIn:    s.ExpiresIn,
		TokenType:    s.TokenType,
	}
}

// callWithTimeout runs fn and stops waiting once ctx is done or timeout elapses.
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{val: v, err: err}
	}()

	select {
	case res := <-done:
		return res.val, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
