package insight

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/genai"
	"github.com/studyshare/studyshare-api/internal/repository"
)

// ErrNoteNotFound is returned when the requested note does not exist.
var ErrNoteNotFound = errors.New("insight: note not found")

// Categories are the labels the categorize prompt offers.
var Categories = []string{
	"Mathematics",
	"Physics",
	"Chemistry",
	"Biology",
	"Computer Science",
	"Engineering",
}

// Result is the combined output of the three generation tasks.
type Result struct {
	Summary       string   `json:"summary"`
	RelatedTopics []string `json:"relatedTopics"`
	Category      string   `json:"category"`
}

// NoteReader loads a note by id.
type NoteReader interface {
	GetByID(ctx context.Context, id string) (domain.Note, error)
}

// Relay forwards note text to the generator and combines the answers.
type Relay struct {
	notes     NoteReader
	generator genai.Generator
	logger    *zap.Logger
}

// NewRelay constructs a Relay.
func NewRelay(notes NoteReader, generator genai.Generator, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{notes: notes, generator: generator, logger: logger.Named("insight")}
}

// Process runs summarize, related topics and categorize concurrently. The
// first failure cancels the remaining calls and no partial result is returned.
func (r *Relay) Process(ctx context.Context, noteID string) (Result, error) {
	note, err := r.notes.GetByID(ctx, noteID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Result{}, ErrNoteNotFound
		}
		return Result{}, fmt.Errorf("load note: %w", err)
	}

	text := NoteText(note)
	var res Result

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := r.generator.GenerateText(gctx, SummaryPrompt(text))
		if err != nil {
			return fmt.Errorf("summarize: %w", err)
		}
		res.Summary = out
		return nil
	})
	g.Go(func() error {
		out, err := r.generator.GenerateText(gctx, TopicsPrompt(text))
		if err != nil {
			return fmt.Errorf("related topics: %w", err)
		}
		res.RelatedTopics = SplitTopics(out)
		return nil
	})
	g.Go(func() error {
		out, err := r.generator.GenerateText(gctx, CategoryPrompt(text))
		if err != nil {
			return fmt.Errorf("categorize: %w", err)
		}
		res.Category = strings.TrimSpace(out)
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	if !KnownCategory(res.Category) {
		r.logger.Warn("category outside the offered labels",
			zap.String("note_id", note.ID),
			zap.String("category", res.Category),
		)
	}
	return res, nil
}

// NoteText renders the note fields sent to the generator.
func NoteText(n domain.Note) string {
	return fmt.Sprintf("\nTitle: %s\nSubject: %s\nTags: %s\nDescription: %s\n",
		n.Title, n.Subject, strings.Join(n.Tags, ", "), n.Description)
}

// SummaryPrompt asks for a short summary.
func SummaryPrompt(text string) string {
	return "Summarize the following study notes in under 100 words:\n\n" + text
}

// TopicsPrompt asks for related topics, one per line.
func TopicsPrompt(text string) string {
	return "Given the content below, suggest 5 related topics students might be interested in:\n\n" + text
}

// CategoryPrompt asks for one label out of Categories.
func CategoryPrompt(text string) string {
	return "Categorize this note under one of the following: " + strings.Join(Categories, ", ") + ".\n\nContent:\n" + text
}

// SplitTopics splits generator output into lines, dropping blank ones.
func SplitTopics(out string) []string {
	lines := strings.Split(out, "\n")
	topics := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		topics = append(topics, strings.TrimRight(line, "\r"))
	}
	return topics
}

// KnownCategory reports whether label is one of Categories.
func KnownCategory(label string) bool {
	for _, c := range Categories {
		if c == label {
			return true
		}
	}
	return false
}
