package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/identity"
)

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	ProfileInput
}

// LoginInput is the sign-in form.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AccountResult is returned by Register and Login.
type AccountResult struct {
	User    domain.Identity
	Profile *domain.UserProfile
	Session *identity.Session
}

// Register creates the identity and its profile row.
func (s *Service) Register(ctx context.Context, in RegisterInput) (AccountResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.ProfileInput.normalize()
	if err := validateStruct(in); err != nil {
		return AccountResult{}, err
	}

	account, err := s.accounts.SignUp(ctx, identity.SignUpParams{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		var rejected *identity.RejectedError
		if errors.As(err, &rejected) {
			return AccountResult{}, invalid("email", rejected.Reason)
		}
		return AccountResult{}, err
	}

	profile, err := s.profiles.Create(ctx, domain.UserProfile{
		ID:         account.User.UserID,
		Email:      account.User.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		University: in.University,
		Course:     in.Course,
		Semester:   in.Semester,
	})
	if err != nil {
		s.logger.Error("profile creation failed after sign up",
			zap.String("user_id", account.User.UserID),
			zap.Error(err),
		)
		return AccountResult{}, fmt.Errorf("create profile: %w", err)
	}

	s.logger.Info("account registered", zap.String("user_id", account.User.UserID))
	return AccountResult{User: account.User, Profile: &profile, Session: account.Session}, nil
}

// Login signs the user in.
func (s *Service) Login(ctx context.Context, in LoginInput) (AccountResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validateStruct(in); err != nil {
		return AccountResult{}, err
	}
	account, err := s.accounts.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		return AccountResult{}, err
	}
	return AccountResult{User: account.User, Session: account.Session}, nil
}

// Logout revokes the session the token belongs to.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.accounts.SignOut(ctx, token)
}

// Me returns the caller and their profile when one exists.
func (s *Service) Me(ctx context.Context, id domain.Identity) (AccountResult, error) {
	profile, err := s.profiles.Get(ctx, id.UserID)
	if err != nil {
		if IsNotFound(err) {
			return AccountResult{User: id}, nil
		}
		return AccountResult{}, err
	}
	return AccountResult{User: id, Profile: &profile}, nil
}
