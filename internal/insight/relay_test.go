package insight

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/repository"
)

type fakeNotes struct {
	notes map[string]domain.Note
	err   error
}

func (f *fakeNotes) GetByID(_ context.Context, id string) (domain.Note, error) {
	if f.err != nil {
		return domain.Note{}, f.err
	}
	n, ok := f.notes[id]
	if !ok {
		return domain.Note{}, repository.ErrNotFound
	}
	return n, nil
}

// scriptedGenerator answers by prompt prefix.
type scriptedGenerator struct {
	mu      sync.Mutex
	prompts []string
	answer  func(ctx context.Context, prompt string) (string, error)
}

func (g *scriptedGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.answer(ctx, prompt)
}

func sampleNote() domain.Note {
	return domain.Note{
		ID:          "note-1",
		Title:       "Limits",
		Subject:     "Mathematics",
		Tags:        []string{"calculus", "limits"},
		Description: "Epsilon delta definitions",
	}
}

func standardAnswers(_ context.Context, prompt string) (string, error) {
	switch {
	case strings.HasPrefix(prompt, "Summarize"):
		return "A short summary.", nil
	case strings.HasPrefix(prompt, "Given the content"):
		return "1. Continuity\n\n2. Derivatives\n \n3. Series\n", nil
	default:
		return "  Mathematics\n", nil
	}
}

func TestRelayProcess(t *testing.T) {
	gen := &scriptedGenerator{answer: standardAnswers}
	relay := NewRelay(&fakeNotes{notes: map[string]domain.Note{"note-1": sampleNote()}}, gen, nil)

	res, err := relay.Process(context.Background(), "note-1")
	require.NoError(t, err)
	assert.Equal(t, "A short summary.", res.Summary)
	assert.Equal(t, []string{"1. Continuity", "2. Derivatives", "3. Series"}, res.RelatedTopics)
	assert.Equal(t, "Mathematics", res.Category)

	require.Len(t, gen.prompts, 3)
	for _, p := range gen.prompts {
		assert.Contains(t, p, "Title: Limits\nSubject: Mathematics\nTags: calculus, limits\nDescription: Epsilon delta definitions")
	}
}

func TestRelayUnknownCategoryPassesThrough(t *testing.T) {
	gen := &scriptedGenerator{answer: func(ctx context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Categorize") {
			return "Philosophy", nil
		}
		return standardAnswers(ctx, prompt)
	}}
	relay := NewRelay(&fakeNotes{notes: map[string]domain.Note{"note-1": sampleNote()}}, gen, nil)

	res, err := relay.Process(context.Background(), "note-1")
	require.NoError(t, err)
	assert.Equal(t, "Philosophy", res.Category)
}

func TestRelayNoteNotFound(t *testing.T) {
	gen := &scriptedGenerator{answer: standardAnswers}
	relay := NewRelay(&fakeNotes{notes: map[string]domain.Note{}}, gen, nil)

	_, err := relay.Process(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNoteNotFound)
	assert.Empty(t, gen.prompts)
}

func TestRelayStoreFailure(t *testing.T) {
	relay := NewRelay(&fakeNotes{err: errors.New("db down")}, &scriptedGenerator{answer: standardAnswers}, nil)
	_, err := relay.Process(context.Background(), "note-1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoteNotFound)
}

func TestRelayFailsFastWithoutPartialResult(t *testing.T) {
	upstream := errors.New("quota exceeded")
	gen := &scriptedGenerator{answer: func(ctx context.Context, prompt string) (string, error) {
		if strings.HasPrefix(prompt, "Given the content") {
			return "", upstream
		}
		// The other calls block until the failing one cancels them.
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(5 * time.Second):
			return "late", nil
		}
	}}
	relay := NewRelay(&fakeNotes{notes: map[string]domain.Note{"note-1": sampleNote()}}, gen, nil)

	start := time.Now()
	res, err := relay.Process(context.Background(), "note-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, upstream)
	assert.Equal(t, Result{}, res)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSplitTopics(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, SplitTopics("a\r\n\r\nb\n"))
	assert.Empty(t, SplitTopics("\n \n"))
}

func TestKnownCategory(t *testing.T) {
	assert.True(t, KnownCategory("Computer Science"))
	assert.False(t, KnownCategory("computer science"))
}

func TestNoteTextWithoutTags(t *testing.T) {
	text := NoteText(domain.Note{Title: "T", Subject: "S"})
	assert.Contains(t, text, "Tags: \n")
}
