package httpserver

import (
	"net/http"
	"time"

	"github.com/studyshare/studyshare-api/internal/catalog"
	"github.com/studyshare/studyshare-api/internal/domain"
)

type profileResponse struct {
	ID         string    `json:"id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	University string    `json:"university"`
	Course     string    `json:"course"`
	Semester   *int      `json:"semester"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type profileEnvelope struct {
	Message string          `json:"message,omitempty"`
	Profile profileResponse `json:"profile"`
}

type profileUpdateRequest struct {
	FirstName  string      `json:"firstName"`
	LastName   string      `json:"lastName"`
	University string      `json:"university"`
	Course     string      `json:"course"`
	Semester   optionalInt `json:"semester"`
}

func (req profileUpdateRequest) toInput() catalog.ProfileInput {
	return catalog.ProfileInput{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		University: req.University,
		Course:     req.Course,
		Semester:   req.Semester.Value,
	}
}

type dashboardStats struct {
	UploadedNotes  int64 `json:"uploadedNotes"`
	TotalDownloads int64 `json:"totalDownloads"`
	RatingsGiven   int64 `json:"ratingsGiven"`
}

type dashboardResponse struct {
	Stats         dashboardStats        `json:"stats"`
	RecentUploads []noteSummaryResponse `json:"recentUploads"`
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	profile, err := s.catalog.Profile(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Profile not found", "Failed to fetch profile")
		return
	}
	s.respondJSON(w, http.StatusOK, profileEnvelope{Profile: toProfileResponse(profile)})
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	var req profileUpdateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	profile, err := s.catalog.UpdateProfile(r.Context(), userID, req.toInput())
	if err != nil {
		s.respondServiceError(w, r, err, "Profile not found", "Failed to update profile")
		return
	}
	s.respondJSON(w, http.StatusOK, profileEnvelope{Message: "Profile updated successfully", Profile: toProfileResponse(profile)})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	dash, err := s.catalog.Dashboard(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Profile not found", "Failed to fetch dashboard")
		return
	}
	s.respondJSON(w, http.StatusOK, dashboardResponse{
		Stats: dashboardStats{
			UploadedNotes:  dash.UploadedNotes,
			TotalDownloads: dash.TotalDownloads,
			RatingsGiven:   dash.RatingsGiven,
		},
		RecentUploads: toSummaryResponses(dash.RecentUploads),
	})
}

func toProfileResponse(p domain.UserProfile) profileResponse {
	return profileResponse{
		ID:         p.ID,
		Email:      p.Email,
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		University: p.University,
		Course:     p.Course,
		Semester:   p.Semester,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}
