package catalog

import (
	"context"
	"strings"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/repository"
)

// ProfileInput holds the owner-editable profile fields.
type ProfileInput struct {
	FirstName  string `json:"firstName" validate:"required,max=100"`
	LastName   string `json:"lastName" validate:"required,max=100"`
	University string `json:"university" validate:"max=200"`
	Course     string `json:"course" validate:"max=200"`
	Semester   *int   `json:"semester" validate:"omitempty,min=1,max=12"`
}

func (in *ProfileInput) normalize() {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.University = strings.TrimSpace(in.University)
	in.Course = strings.TrimSpace(in.Course)
}

// Profile returns the caller's profile.
func (s *Service) Profile(ctx context.Context, userID string) (domain.UserProfile, error) {
	return s.profiles.Get(ctx, userID)
}

// UpdateProfile validates and stores the caller's profile fields.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (domain.UserProfile, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return domain.UserProfile{}, err
	}
	return s.profiles.Update(ctx, userID, repository.ProfileUpdateParams{
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		University: in.University,
		Course:     in.Course,
		Semester:   in.Semester,
	})
}

// Dashboard summarizes the caller's activity.
func (s *Service) Dashboard(ctx context.Context, userID string) (domain.Dashboard, error) {
	return s.profiles.Dashboard(ctx, userID)
}
