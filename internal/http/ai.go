package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/studyshare/studyshare-api/internal/insight"
	"github.com/studyshare/studyshare-api/internal/metrics"
)

type processRequest struct {
	NoteID string `json:"noteId"`
}

func (s *Server) handleProcessAI(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	noteID := strings.TrimSpace(req.NoteID)
	if noteID == "" {
		s.respondError(w, http.StatusBadRequest, "Missing noteId.")
		return
	}
	if s.insight == nil {
		s.metrics.AIRequests.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.respondError(w, http.StatusInternalServerError, "AI processing failed.")
		return
	}

	res, err := s.insight.Process(r.Context(), noteID)
	if err != nil {
		if errors.Is(err, insight.ErrNoteNotFound) {
			s.metrics.AIRequests.WithLabelValues(metrics.OutcomeNotFound).Inc()
			s.respondError(w, http.StatusNotFound, "Note not found.")
			return
		}
		s.metrics.AIRequests.WithLabelValues(metrics.OutcomeFailed).Inc()
		s.logger.Error("ai processing failed", zap.String("note_id", noteID), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "AI processing failed.")
		return
	}

	s.metrics.AIRequests.WithLabelValues(metrics.OutcomeSuccess).Inc()
	if res.RelatedTopics == nil {
		res.RelatedTopics = []string{}
	}
	s.respondJSON(w, http.StatusOK, res)
}
