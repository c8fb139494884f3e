// Package poll fetches course snapshots under a deadline and drives the polling state machine.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultCycleTimeout = 60 * time.Second
	defaultFetchWorkers = 8
)

// Entity groups named in a FetchError.
const (
	GroupCourses       = "courses"
	GroupFiles         = "files"
	GroupAssignments   = "assignments"
	GroupAnnouncements = "announcements"
)

var (
	// ErrCycleTimeout indicates that the fetch phase lost its deadline race.
	ErrCycleTimeout = errors.New("poll: cycle deadline exceeded")

	errMissingSource = errors.New("source is required")
)

// Source lists the entities of a course.
type Source interface {
	ListCourses(ctx context.Context, semester string) ([]course.CourseRef, error)
	ListFiles(ctx context.Context, courseID course.CourseID) ([]course.FileItem, error)
	ListAssignments(ctx context.Context, courseID course.CourseID) ([]course.Assignment, error)
	ListAnnouncements(ctx context.Context, courseID course.CourseID) ([]course.Announcement, error)
}

// FetchError names the course and entity group whose retrieval failed.
type FetchError struct {
	CourseID   course.CourseID
	CourseName string
	Group      string
	Err        error
}

func (e *FetchError) Error() string {
	if e.CourseID == "" {
		return fmt.Sprintf("poll: fetch %s: %v", e.Group, e.Err)
	}
	return fmt.Sprintf("poll: fetch %s of course %s (%s): %v", e.Group, e.CourseID, e.CourseName, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FetcherConfig configures a Fetcher.
type FetcherConfig struct {
	Source  Source
	Timeout time.Duration
	Workers int
	Clock   func() time.Time
	Logger  *zap.Logger
}

// Fetcher retrieves every course concurrently and assembles a complete snapshot or nothing.
type Fetcher struct {
	source  Source
	timeout time.Duration
	workers int
	clock   func() time.Time
	logger  *zap.Logger
}

// NewFetcher validates cfg and returns a Fetcher.
func NewFetcher(cfg FetcherConfig) (*Fetcher, error) {
	if cfg.Source == nil {
		return nil, errMissingSource
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultCycleTimeout
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultFetchWorkers
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		source:  cfg.Source,
		timeout: timeout,
		workers: workers,
		clock:   clock,
		logger:  logger,
	}, nil
}

// Capture lists the semester's courses and fetches them, all under one deadline. A zero
// timeout uses the configured one. On timeout the fetch keeps running detached and its
// result is dropped; no partial snapshot is ever returned.
func (f *Fetcher) Capture(ctx context.Context, semester string, timeout time.Duration) (course.Snapshot, error) {
	if timeout <= 0 {
		timeout = f.timeout
	}
	return race(ctx, timeout, func(ctx context.Context) (course.Snapshot, error) {
		refs, err := f.source.ListCourses(ctx, semester)
		if err != nil {
			return course.Snapshot{}, &FetchError{Group: GroupCourses, Err: err}
		}
		return f.collect(ctx, refs)
	})
}

type raceResult[T any] struct {
	value T
	err   error
}

// race runs operation against a timer. When the timer wins the operation keeps running
// on ctx and its eventual result is dropped.
func race[T any](ctx context.Context, timeout time.Duration, operation func(context.Context) (T, error)) (T, error) {
	results := make(chan raceResult[T], 1)
	go func() {
		value, err := operation(ctx)
		results <- raceResult[T]{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case result := <-results:
		return result.value, result.err
	case <-timer.C:
		return zero, ErrCycleTimeout
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (f *Fetcher) collect(ctx context.Context, refs []course.CourseRef) (course.Snapshot, error) {
	fetched := make(chan course.Course, len(refs))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(f.workers)
	for _, ref := range refs {
		group.Go(func() error {
			current, err := f.fetchCourse(groupCtx, ref)
			if err != nil {
				return err
			}
			fetched <- current
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return course.Snapshot{}, err
	}
	close(fetched)

	courses := make([]course.Course, 0, len(refs))
	for current := range fetched {
		courses = append(courses, current)
	}
	f.logger.Debug("fetched courses", zap.Int("courses", len(courses)))
	return course.NewSnapshot(f.clock(), courses), nil
}

func (f *Fetcher) fetchCourse(ctx context.Context, ref course.CourseRef) (course.Course, error) {
	var (
		files         []course.FileItem
		assignments   []course.Assignment
		announcements []course.Announcement
	)
	wrap := func(group string, err error) error {
		return &FetchError{CourseID: ref.ID, CourseName: ref.Name, Group: group, Err: err}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		items, err := f.source.ListFiles(groupCtx, ref.ID)
		if err != nil {
			return wrap(GroupFiles, err)
		}
		files = items
		return nil
	})
	group.Go(func() error {
		items, err := f.source.ListAssignments(groupCtx, ref.ID)
		if err != nil {
			return wrap(GroupAssignments, err)
		}
		assignments = items
		return nil
	})
	group.Go(func() error {
		items, err := f.source.ListAnnouncements(groupCtx, ref.ID)
		if err != nil {
			return wrap(GroupAnnouncements, err)
		}
		announcements = items
		return nil
	})
	if err := group.Wait(); err != nil {
		return course.Course{}, err
	}

	return course.Course{
		ID:            ref.ID,
		Name:          ref.Name,
		Files:         files,
		Assignments:   assignments,
		Announcements: announcements,
	}, nil
}
