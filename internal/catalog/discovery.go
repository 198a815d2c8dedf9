package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/studyshare/studyshare-api/internal/domain"
)

const (
	suggestionMinQuery  = 2
	suggestionPerSource = 5
	suggestionMax       = 8
	popularSubjectLimit = 10
	popularContentLimit = 5
)

// Suggestion is one autocomplete entry.
type Suggestion struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Popular lists the busiest subjects and most downloaded notes.
type Popular struct {
	Subjects []domain.SubjectCount
	Notes    []domain.NoteSummary
}

// Suggestions returns subject and title completions for q. Queries shorter
// than two characters yield nothing.
func (s *Service) Suggestions(ctx context.Context, q string) ([]Suggestion, error) {
	q = strings.TrimSpace(q)
	out := make([]Suggestion, 0)
	if len([]rune(q)) < suggestionMinQuery {
		return out, nil
	}

	subjects, err := s.notes.SuggestSubjects(ctx, q, suggestionPerSource)
	if err != nil {
		return nil, fmt.Errorf("suggest subjects: %w", err)
	}
	titles, err := s.notes.SuggestTitles(ctx, q, suggestionPerSource)
	if err != nil {
		return nil, fmt.Errorf("suggest titles: %w", err)
	}

	for _, v := range subjects {
		out = append(out, Suggestion{Type: "subject", Value: v})
	}
	for _, v := range titles {
		out = append(out, Suggestion{Type: "title", Value: v})
	}
	if len(out) > suggestionMax {
		out = out[:suggestionMax]
	}
	return out, nil
}

// Popular returns the top subjects by note count and the most downloaded notes.
func (s *Service) Popular(ctx context.Context) (Popular, error) {
	subjects, err := s.notes.PopularSubjects(ctx, popularSubjectLimit)
	if err != nil {
		return Popular{}, fmt.Errorf("popular subjects: %w", err)
	}
	notes, err := s.notes.MostDownloaded(ctx, popularContentLimit)
	if err != nil {
		return Popular{}, fmt.Errorf("popular notes: %w", err)
	}
	return Popular{Subjects: subjects, Notes: notes}, nil
}
