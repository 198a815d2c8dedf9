package httpserver

import (
	"errors"
	"fmt"
	"math"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/studyshare/studyshare-api/internal/catalog"
	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/repository"
)

const multipartMemory = 32 << 20

type uploaderResponse struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	University string `json:"university"`
	Course     string `json:"course"`
}

type noteResponse struct {
	ID               string            `json:"id"`
	Title            string            `json:"title"`
	Description      string            `json:"description"`
	Subject          string            `json:"subject"`
	Semester         *int              `json:"semester"`
	University       string            `json:"university"`
	Tags             []string          `json:"tags"`
	FileURL          string            `json:"file_url"`
	FileType         string            `json:"file_type"`
	FileSize         int64             `json:"file_size"`
	OriginalFilename string            `json:"original_filename"`
	UploaderID       string            `json:"uploader_id"`
	UploadDate       time.Time         `json:"upload_date"`
	Downloads        int64             `json:"downloads"`
	Rating           float64           `json:"rating"`
	RatingCount      int64             `json:"rating_count"`
	UserProfiles     *uploaderResponse `json:"user_profiles"`
}

type paginationResponse struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type noteListResponse struct {
	Notes      []noteResponse     `json:"notes"`
	Pagination paginationResponse `json:"pagination"`
}

type noteEnvelope struct {
	Message string       `json:"message,omitempty"`
	Note    noteResponse `json:"note"`
}

type notesEnvelope struct {
	Notes []noteResponse `json:"notes"`
}

type downloadResponse struct {
	Message   string `json:"message"`
	Downloads int64  `json:"downloads"`
}

type ratingRequest struct {
	Rating *float64 `json:"rating"`
}

type ratingResponse struct {
	Message     string  `json:"message"`
	Rating      int     `json:"rating,omitempty"`
	Average     float64 `json:"average"`
	RatingCount int64   `json:"rating_count"`
}

func (s *Server) handleListNotes(w http.ResponseWriter, r *http.Request) {
	filters, err := buildNoteFilters(r.URL.Query(), "search", "upload_date")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.catalog.List(r.Context(), filters)
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to fetch notes")
		return
	}
	s.respondJSON(w, http.StatusOK, toNoteListResponse(result))
}

// buildNoteFilters parses list/search query parameters. searchParam names the
// free-text parameter and defaultSort applies when sortBy is absent.
func buildNoteFilters(query url.Values, searchParam, defaultSort string) (repository.NoteListFilters, error) {
	filters := repository.NoteListFilters{SortBy: defaultSort}

	if val := strings.TrimSpace(query.Get(searchParam)); val != "" {
		filters.Search = &val
	}
	if val := filterValue(query, "subject"); val != "" {
		filters.Subject = &val
	}
	if val := filterValue(query, "university"); val != "" {
		filters.University = &val
	}
	if val := filterValue(query, "fileType"); val != "" {
		filters.FileType = &val
	}
	semester, err := parseOptionalInt(query.Get("semester"))
	if err != nil {
		return filters, fmt.Errorf("invalid semester value")
	}
	filters.Semester = semester

	if val := strings.TrimSpace(query.Get("page")); val != "" {
		page, err := strconv.Atoi(val)
		if err != nil || page < 1 {
			return filters, fmt.Errorf("invalid page value")
		}
		filters.Page = page
	}
	if val := strings.TrimSpace(query.Get("limit")); val != "" {
		limit, err := strconv.Atoi(val)
		if err != nil || limit < 1 {
			return filters, fmt.Errorf("invalid limit value")
		}
		filters.Limit = limit
	}
	if val := strings.TrimSpace(query.Get("sortBy")); val != "" {
		if _, ok := repository.SortFields[val]; !ok {
			return filters, fmt.Errorf("invalid sortBy value")
		}
		filters.SortBy = val
	}
	switch strings.ToLower(strings.TrimSpace(query.Get("sortOrder"))) {
	case "", "desc":
	case "asc":
		filters.Ascending = true
	default:
		return filters, fmt.Errorf("invalid sortOrder value")
	}
	return filters, nil
}

func filterValue(query url.Values, key string) string {
	val := strings.TrimSpace(query.Get(key))
	if strings.EqualFold(val, "all") {
		return ""
	}
	return val
}

func (s *Server) handleGetNote(w http.ResponseWriter, r *http.Request) {
	note, err := s.catalog.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to fetch note")
		return
	}
	s.respondJSON(w, http.StatusOK, noteEnvelope{Note: toNoteResponse(note)})
}

func (s *Server) handleUploadNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	limit := s.catalog.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+maxRequestBody)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytesError *http.MaxBytesError
		if errors.As(err, &maxBytesError) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("File exceeds the %d byte upload limit", limit))
			return
		}
		s.respondError(w, http.StatusBadRequest, "Expected a multipart form upload")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	semester, err := parseOptionalInt(r.FormValue("semester"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid semester value")
		return
	}
	input := catalog.UploadInput{
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Subject:     r.FormValue("subject"),
		Semester:    semester,
		University:  r.FormValue("university"),
		Tags:        catalog.ParseTags(r.FormValue("tags")),
	}

	var fileInput *catalog.FileInput
	file, header, err := r.FormFile("file")
	switch {
	case err == nil:
		defer file.Close()
		fileInput = toFileInput(file, header)
	case errors.Is(err, http.ErrMissingFile):
	default:
		s.respondError(w, http.StatusBadRequest, "Unable to read uploaded file")
		return
	}

	note, err := s.catalog.Upload(r.Context(), userID, input, fileInput)
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Upload failed")
		return
	}
	w.Header().Set("Location", "/notes/"+note.ID)
	s.respondJSON(w, http.StatusCreated, noteEnvelope{Message: "Note uploaded successfully", Note: toNoteResponse(note)})
}

func toFileInput(file multipart.File, header *multipart.FileHeader) *catalog.FileInput {
	return &catalog.FileInput{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func (s *Server) handleDeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	if err := s.catalog.DeleteNote(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to delete note")
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Note deleted successfully"})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	downloads, err := s.catalog.RecordDownload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Download failed")
		return
	}
	s.respondJSON(w, http.StatusOK, downloadResponse{Message: "Download recorded", Downloads: downloads})
}

func (s *Server) handleRateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}

	var req ratingRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if req.Rating == nil || *req.Rating != math.Trunc(*req.Rating) {
		s.respondError(w, http.StatusBadRequest, "Rating must be between 1 and 5")
		return
	}

	res, err := s.catalog.Rate(r.Context(), chi.URLParam(r, "id"), userID, int(*req.Rating))
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to submit rating")
		return
	}
	status := http.StatusOK
	if res.Inserted {
		status = http.StatusCreated
	}
	s.respondJSON(w, status, ratingResponse{
		Message:     "Rating submitted successfully",
		Rating:      res.Rating.Value,
		Average:     res.Aggregate.Average,
		RatingCount: res.Aggregate.Count,
	})
}

func (s *Server) handleDeleteRating(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	agg, err := s.catalog.DeleteRating(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Rating not found", "Failed to remove rating")
		return
	}
	s.respondJSON(w, http.StatusOK, ratingResponse{
		Message:     "Rating removed",
		Average:     agg.Average,
		RatingCount: agg.Count,
	})
}

func (s *Server) handleUserUploads(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerFrom(r)
	if !ok {
		s.respondError(w, http.StatusUnauthorized, "Access token required")
		return
	}
	notes, err := s.catalog.UserUploads(r.Context(), userID)
	if err != nil {
		s.respondServiceError(w, r, err, "Note not found", "Failed to fetch user notes")
		return
	}
	s.respondJSON(w, http.StatusOK, notesEnvelope{Notes: toNoteResponses(notes)})
}

func toNoteListResponse(result repository.NoteListResult) noteListResponse {
	return noteListResponse{
		Notes: toNoteResponses(result.Items),
		Pagination: paginationResponse{
			Page:  result.Page,
			Limit: result.Limit,
			Total: result.Total,
			Pages: result.Pages,
		},
	}
}

func toNoteResponses(notes []domain.Note) []noteResponse {
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResponse(n))
	}
	return out
}

func toNoteResponse(n domain.Note) noteResponse {
	tags := n.Tags
	if tags == nil {
		tags = []string{}
	}
	resp := noteResponse{
		ID:               n.ID,
		Title:            n.Title,
		Description:      n.Description,
		Subject:          n.Subject,
		Semester:         n.Semester,
		University:       n.University,
		Tags:             tags,
		FileURL:          n.File.URL,
		FileType:         n.File.MimeType,
		FileSize:         n.File.Size,
		OriginalFilename: n.File.OriginalFilename,
		UploaderID:       n.UploaderID,
		UploadDate:       n.UploadDate,
		Downloads:        n.Downloads,
		Rating:           n.Rating,
		RatingCount:      n.RatingCount,
	}
	if n.Uploader != nil {
		resp.UserProfiles = &uploaderResponse{
			FirstName:  n.Uploader.FirstName,
			LastName:   n.Uploader.LastName,
			University: n.Uploader.University,
			Course:     n.Uploader.Course,
		}
	}
	return resp
}
