package httpserver

import (
	"net/http"
	"time"

	"github.com/studyshare/studyshare-api/internal/catalog"
	"github.com/studyshare/studyshare-api/internal/domain"
)

type searchResponse struct {
	Query      string             `json:"query"`
	Notes      []noteResponse     `json:"notes"`
	Pagination paginationResponse `json:"pagination"`
}

type suggestionsResponse struct {
	Suggestions []catalog.Suggestion `json:"suggestions"`
}

type subjectCountResponse struct {
	Subject string `json:"subject"`
	Count   int64  `json:"count"`
}

type noteSummaryResponse struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Subject    string    `json:"subject"`
	UploadDate time.Time `json:"upload_date"`
	Downloads  int64     `json:"downloads"`
	Rating     float64   `json:"rating"`
}

type popularResponse struct {
	PopularSubjects []subjectCountResponse `json:"popularSubjects"`
	PopularContent  []noteSummaryResponse  `json:"popularContent"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	filters, err := buildNoteFilters(r.URL.Query(), "q", "downloads")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.catalog.Search(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Search failed")
		return
	}

	list := toNoteListResponse(result)
	s.respondJSON(w, http.StatusOK, searchResponse{
		Query:      *filters.Search,
		Notes:      list.Notes,
		Pagination: list.Pagination,
	})
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	suggestions, err := s.catalog.Suggestions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to fetch suggestions")
		return
	}
	s.respondJSON(w, http.StatusOK, suggestionsResponse{Suggestions: suggestions})
}

func (s *Server) handlePopular(w http.ResponseWriter, r *http.Request) {
	popular, err := s.catalog.Popular(r.Context())
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to fetch popular content")
		return
	}

	resp := popularResponse{
		PopularSubjects: make([]subjectCountResponse, 0, len(popular.Subjects)),
		PopularContent:  toSummaryResponses(popular.Notes),
	}
	for _, sc := range popular.Subjects {
		resp.PopularSubjects = append(resp.PopularSubjects, subjectCountResponse{Subject: sc.Subject, Count: sc.Count})
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func toSummaryResponses(notes []domain.NoteSummary) []noteSummaryResponse {
	out := make([]noteSummaryResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteSummaryResponse{
			ID:         n.ID,
			Title:      n.Title,
			Subject:    n.Subject,
			UploadDate: n.UploadDate,
			Downloads:  n.Downloads,
			Rating:     n.Rating,
		})
	}
	return out
}
