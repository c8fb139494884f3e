package course

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const maxIdentifierLength = 190

// ErrInvalidCourseID indicates that a course identifier is empty or exceeds storage bounds.
var ErrInvalidCourseID = errors.New("course: invalid course id")

// CourseID represents a validated platform-assigned course identifier.
type CourseID string

// NewCourseID validates raw input and returns a CourseID.
func NewCourseID(rawInput string) (CourseID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidCourseID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidCourseID, maxIdentifierLength)
	}
	return CourseID(trimmed), nil
}

// String returns the underlying string identifier.
func (id CourseID) String() string {
	return string(id)
}

// CourseRef identifies a course before its collections are fetched.
type CourseRef struct {
	ID   CourseID `json:"id"`
	Name string   `json:"name"`
}

// FileItem is a course file. Files are immutable once published.
type FileItem struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	DownloadURL string `json:"downloadUrl"`
}

// Assignment is a homework item. Deadline, submission and grade fields change across cycles.
type Assignment struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	URL           string    `json:"url"`
	Deadline      Timestamp `json:"deadline"`
	Submitted     bool      `json:"submitted"`
	GradeTime     Timestamp `json:"gradeTime,omitzero"`
	Grade         Grade     `json:"grade,omitzero"`
	GradeFeedback string    `json:"gradeFeedback,omitempty"`
}

// Announcement is a course notice with an HTML body.
type Announcement struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
	Body  string `json:"body"`
}

// Course is the state of one course observed during a single cycle.
type Course struct {
	ID            CourseID       `json:"id"`
	Name          string         `json:"name"`
	Files         []FileItem     `json:"files"`
	Assignments   []Assignment   `json:"assignments"`
	Announcements []Announcement `json:"announcements"`
}

// Ref returns the identifying part of the course.
func (c Course) Ref() CourseRef {
	return CourseRef{ID: c.ID, Name: c.Name}
}

// Snapshot is the full observation of every course captured in one cycle.
type Snapshot struct {
	CapturedAt time.Time           `json:"capturedAt"`
	Courses    map[CourseID]Course `json:"courses"`
}

// NewSnapshot keys the given courses by identifier. Later duplicates replace earlier ones.
func NewSnapshot(capturedAt time.Time, courses []Course) Snapshot {
	byID := make(map[CourseID]Course, len(courses))
	for _, c := range courses {
		byID[c.ID] = c
	}
	return Snapshot{CapturedAt: capturedAt.UTC(), Courses: byID}
}

// Lookup returns the course recorded under id, or nil when the snapshot has never seen it.
func (s Snapshot) Lookup(id CourseID) *Course {
	c, ok := s.Courses[id]
	if !ok {
		return nil
	}
	return &c
}
