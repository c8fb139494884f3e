package poll

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/board"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"github.com/MarcoPoloResearchLab/coursewatch/internal/snapshot"
)

type fakePlatform struct {
	mu            sync.Mutex
	courses       []course.Course
	hang          map[course.CourseID]chan struct{}
	listing       chan struct{}
	coursesErrors []error
	filesErrors   []error
	loginErrors   []error
	logins        int
	listings      int
}

func newFakePlatform(courses ...course.Course) *fakePlatform {
	return &fakePlatform{courses: courses, hang: map[course.CourseID]chan struct{}{}}
}

func (f *fakePlatform) Login(ctx context.Context, username, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if len(f.loginErrors) > 0 {
		err := f.loginErrors[0]
		f.loginErrors = f.loginErrors[1:]
		return err
	}
	return nil
}

func (f *fakePlatform) ListCourses(ctx context.Context, semester string) ([]course.CourseRef, error) {
	f.mu.Lock()
	f.listings++
	release := f.listing
	var err error
	if len(f.coursesErrors) > 0 {
		err = f.coursesErrors[0]
		f.coursesErrors = f.coursesErrors[1:]
	}
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	refs := make([]course.CourseRef, 0, len(f.courses))
	for _, current := range f.courses {
		refs = append(refs, current.Ref())
	}
	return refs, nil
}

func (f *fakePlatform) ListFiles(ctx context.Context, courseID course.CourseID) ([]course.FileItem, error) {
	f.mu.Lock()
	release := f.hang[courseID]
	var err error
	if len(f.filesErrors) > 0 {
		err = f.filesErrors[0]
		f.filesErrors = f.filesErrors[1:]
	}
	f.mu.Unlock()
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return f.find(courseID).Files, nil
}

func (f *fakePlatform) ListAssignments(ctx context.Context, courseID course.CourseID) ([]course.Assignment, error) {
	return f.find(courseID).Assignments, nil
}

func (f *fakePlatform) ListAnnouncements(ctx context.Context, courseID course.CourseID) ([]course.Announcement, error) {
	return f.find(courseID).Announcements, nil
}

func (f *fakePlatform) find(courseID course.CourseID) course.Course {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, current := range f.courses {
		if current.ID == courseID {
			return current
		}
	}
	return course.Course{}
}

func (f *fakePlatform) hangCourse(t *testing.T, courseID course.CourseID) {
	t.Helper()
	release := make(chan struct{})
	f.mu.Lock()
	f.hang[courseID] = release
	f.mu.Unlock()
	t.Cleanup(func() { close(release) })
}

func (f *fakePlatform) hangListing(t *testing.T) {
	t.Helper()
	release := make(chan struct{})
	f.mu.Lock()
	f.listing = release
	f.mu.Unlock()
	t.Cleanup(func() { close(release) })
}

func (f *fakePlatform) listingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings
}

func (f *fakePlatform) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

type fakeStore struct {
	mu       sync.Mutex
	snapshot course.Snapshot
	loadErr  error
	saves    []course.Snapshot
}

func (s *fakeStore) Load() (course.Snapshot, error) {
	if s.loadErr != nil {
		return course.Snapshot{}, s.loadErr
	}
	return s.snapshot, nil
}

func (s *fakeStore) Save(current course.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = append(s.saves, current)
	return nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saves)
}

var _ SnapshotStore = (*snapshot.Store)(nil)

type recordingDispatcher struct {
	mu     sync.Mutex
	events []course.ChangeEvent
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, events []course.ChangeEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, events...)
}

func (d *recordingDispatcher) all() []course.ChangeEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]course.ChangeEvent(nil), d.events...)
}

type fakeBoard struct {
	lists []board.List
}

func (b *fakeBoard) ListsOnBoard(ctx context.Context, boardID, filter string) ([]board.List, error) {
	return b.lists, nil
}

type recordingReconciler struct {
	mu      sync.Mutex
	courses []string
}

func (r *recordingReconciler) Reconcile(ctx context.Context, courseName string, assignments []course.Assignment, lists []board.List) (board.ReconcileReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.courses = append(r.courses, courseName)
	for _, list := range lists {
		if list.Name == courseName {
			return board.ReconcileReport{ListID: list.ID}, nil
		}
	}
	return board.ReconcileReport{}, board.ErrListNotFound
}

type sequenceIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequenceIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("cycle-%d", s.next), nil
}

func mustCourse(t *testing.T, id, name string) course.Course {
	t.Helper()
	courseID, err := course.NewCourseID(id)
	if err != nil {
		t.Fatalf("invalid course id %q: %v", id, err)
	}
	return course.Course{ID: courseID, Name: name}
}

func newTestFetcher(t *testing.T, source Source, timeout time.Duration) *Fetcher {
	t.Helper()
	fetcher, err := NewFetcher(FetcherConfig{Source: source, Timeout: timeout})
	if err != nil {
		t.Fatalf("unexpected fetcher error: %v", err)
	}
	return fetcher
}
