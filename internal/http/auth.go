package httpserver

import (
	"net/http"

	"github.com/studyshare/studyshare-api/internal/catalog"
	"github.com/studyshare/studyshare-api/internal/identity"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	profileUpdateRequest
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type accountResponse struct {
	Message string            `json:"message,omitempty"`
	User    userResponse      `json:"user"`
	Profile *profileResponse  `json:"profile,omitempty"`
	Session *identity.Session `json:"session,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	res, err := s.catalog.Register(r.Context(), catalog.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		ProfileInput: req.profileUpdateRequest.toInput(),
	})
	if err != nil {
		s.respondServiceError(w, r, err, "Profile not found", "Registration failed")
		return
	}
	resp := toAccountResponse(res)
	resp.Message = "User registered successfully"
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}

	res, err := s.catalog.Login(r.Context(), catalog.LoginInput{Email: req.Email, Password: req.Password})
	if err != nil {
		s.respondServiceError(w, r, err, "Profile not found", "Login failed")
		return
	}
	resp := toAccountResponse(res)
	resp.Message = "Login successful"
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.Logout(r.Context(), tokenFrom(r)); err != nil {
		s.respondServiceError(w, r, err, "Session not found", "Logout failed")
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.FromContext(r.Context())
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	res, err := s.catalog.Me(r.Context(), id)
	if err != nil {
		s.respondServiceError(w, r, err, "Profile not found", "Failed to fetch user")
		return
	}
	s.respondJSON(w, http.StatusOK, toAccountResponse(res))
}

func toAccountResponse(res catalog.AccountResult) accountResponse {
	resp := accountResponse{
		User:    userResponse{ID: res.User.UserID, Email: res.User.Email},
		Session: res.Session,
	}
	if res.Profile != nil {
		p := toProfileResponse(*res.Profile)
		resp.Profile = &p
	}
	return resp
}
