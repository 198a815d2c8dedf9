package catalog

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/studyshare/studyshare-api/internal/domain"
	"github.com/studyshare/studyshare-api/internal/identity"
	"github.com/studyshare/studyshare-api/internal/objectstore"
	"github.com/studyshare/studyshare-api/internal/repository"
)

type fakeNotes struct {
	mu         sync.Mutex
	notes      map[string]domain.Note
	createErr  error
	commitErr  error
	listCalls  int
	suggestErr error
	subjects   []string
	titles     []string
	lastFilter repository.NoteListFilters
}

func newFakeNotes() *fakeNotes {
	return &fakeNotes{notes: map[string]domain.Note{}}
}

func (f *fakeNotes) Create(_ context.Context, p repository.NoteCreateParams) (domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return domain.Note{}, f.createErr
	}
	n := domain.Note{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Subject:     p.Subject,
		Semester:    p.Semester,
		University:  p.University,
		Tags:        p.Tags,
		File:        p.File,
		UploaderID:  p.UploaderID,
		UploadDate:  time.Now().UTC(),
	}
	f.notes[n.ID] = n
	return n, nil
}

func (f *fakeNotes) GetByID(_ context.Context, id string) (domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok {
		return domain.Note{}, repository.ErrNotFound
	}
	return n, nil
}

func (f *fakeNotes) List(_ context.Context, filters repository.NoteListFilters) (repository.NoteListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	f.lastFilter = filters
	items := make([]domain.Note, 0, len(f.notes))
	for _, n := range f.notes {
		items = append(items, n)
	}
	return repository.NoteListResult{Items: items, Page: 1, Limit: 12, Total: int64(len(items)), Pages: repository.PageCount(int64(len(items)), 12)}, nil
}

func (f *fakeNotes) ListByUploader(_ context.Context, uploaderID string) ([]domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Note, 0)
	for _, n := range f.notes {
		if n.UploaderID == uploaderID {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadDate.After(out[j].UploadDate) })
	return out, nil
}

func (f *fakeNotes) IncrementDownloads(_ context.Context, id string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	n.Downloads++
	f.notes[id] = n
	return n.Downloads, nil
}

// DeleteOwned keeps the note when release fails, matching the rollback of the
// real repository.
func (f *fakeNotes) DeleteOwned(_ context.Context, id, ownerID string, release func(domain.Note) error) (domain.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[id]
	if !ok {
		return domain.Note{}, repository.ErrNotFound
	}
	if n.UploaderID != ownerID {
		return domain.Note{}, repository.ErrForbidden
	}
	if release != nil {
		if err := release(n); err != nil {
			return domain.Note{}, err
		}
	}
	if f.commitErr != nil {
		return domain.Note{}, f.commitErr
	}
	delete(f.notes, id)
	return n, nil
}

func (f *fakeNotes) SuggestSubjects(context.Context, string, int) ([]string, error) {
	return f.subjects, f.suggestErr
}

func (f *fakeNotes) SuggestTitles(context.Context, string, int) ([]string, error) {
	return f.titles, f.suggestErr
}

func (f *fakeNotes) PopularSubjects(context.Context, int) ([]domain.SubjectCount, error) {
	return []domain.SubjectCount{{Subject: "Mathematics", Count: 3}}, nil
}

func (f *fakeNotes) MostDownloaded(context.Context, int) ([]domain.NoteSummary, error) {
	return []domain.NoteSummary{{ID: "n1", Title: "Calc", Subject: "Mathematics", Downloads: 9}}, nil
}

type fakeRatings struct {
	calls int
	res   repository.RatingResult
	err   error
}

func (f *fakeRatings) Submit(_ context.Context, p repository.RatingSubmitParams) (repository.RatingResult, error) {
	f.calls++
	if f.err != nil {
		return repository.RatingResult{}, f.err
	}
	res := f.res
	res.Rating.NoteID = p.NoteID
	res.Rating.UserID = p.UserID
	res.Rating.Value = p.Value
	return res, nil
}

func (f *fakeRatings) Delete(context.Context, string, string) (domain.RatingAggregate, error) {
	f.calls++
	return domain.RatingAggregate{}, f.err
}

type fakeProfiles struct {
	profiles  map[string]domain.UserProfile
	createErr error
	updates   int
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{profiles: map[string]domain.UserProfile{}}
}

func (f *fakeProfiles) Create(_ context.Context, p domain.UserProfile) (domain.UserProfile, error) {
	if f.createErr != nil {
		return domain.UserProfile{}, f.createErr
	}
	f.profiles[p.ID] = p
	return p, nil
}

func (f *fakeProfiles) Get(_ context.Context, id string) (domain.UserProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return domain.UserProfile{}, repository.ErrNotFound
	}
	return p, nil
}

func (f *fakeProfiles) Update(_ context.Context, id string, params repository.ProfileUpdateParams) (domain.UserProfile, error) {
	f.updates++
	p, ok := f.profiles[id]
	if !ok {
		return domain.UserProfile{}, repository.ErrNotFound
	}
	p.FirstName = params.FirstName
	p.LastName = params.LastName
	p.University = params.University
	p.Course = params.Course
	p.Semester = params.Semester
	f.profiles[id] = p
	return p, nil
}

func (f *fakeProfiles) Dashboard(context.Context, string) (domain.Dashboard, error) {
	return domain.Dashboard{RecentUploads: []domain.NoteSummary{}}, nil
}

type fakeObjects struct {
	mu        sync.Mutex
	objects   map[string][]byte
	puts      int
	deletes   []string
	putErr    error
	deleteErr error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: map[string][]byte{}}
}

func (f *fakeObjects) Put(ctx context.Context, filename string, r io.Reader, _ int64, _ string) (objectstore.StoredObject, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.putErr != nil {
		return objectstore.StoredObject{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return objectstore.StoredObject{}, err
	}
	key := objectstore.NewKey(filename)
	f.objects[key] = data
	return objectstore.StoredObject{Key: key, URL: objectstore.ObjectURL("https://cdn.test", key)}, nil
}

func (f *fakeObjects) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	if f.deleteErr != nil {
		return f.deleteErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	delete(f.objects, key)
	return nil
}

type fakeAccounts struct {
	signUps int
	account identity.Account
	err     error
}

func (f *fakeAccounts) Authenticate(context.Context, string) (domain.Identity, error) {
	return domain.Identity{}, errors.New("not used")
}

func (f *fakeAccounts) SignUp(_ context.Context, p identity.SignUpParams) (identity.Account, error) {
	f.signUps++
	if f.err != nil {
		return identity.Account{}, f.err
	}
	acc := f.account
	acc.User.Email = p.Email
	return acc, nil
}

func (f *fakeAccounts) SignIn(_ context.Context, email, password string) (identity.Account, error) {
	if f.err != nil {
		return identity.Account{}, f.err
	}
	if password != "correct-horse" {
		return identity.Account{}, identity.ErrInvalidCredentials
	}
	acc := f.account
	acc.User.Email = email
	return acc, nil
}

func (f *fakeAccounts) SignOut(context.Context, string) error {
	return f.err
}
