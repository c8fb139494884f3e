package course

// EventKind tags the variant of a ChangeEvent.
type EventKind string

const (
	EventNewCourse       EventKind = "new_course"
	EventNewFile         EventKind = "new_file"
	EventNewAssignment   EventKind = "new_assignment"
	EventDeadlineChanged EventKind = "deadline_changed"
	EventSubmitted       EventKind = "submitted"
	EventGradePosted     EventKind = "grade_posted"
	EventNewAnnouncement EventKind = "new_announcement"
)

// ChangeEvent is one detected difference between two observations of the same course.
// Exactly one of File, Assignment and Announcement is set, according to Kind; none is set for
// EventNewCourse.
type ChangeEvent struct {
	Kind         EventKind
	CourseID     CourseID
	CourseName   string
	File         *FileItem
	Assignment   *Assignment
	Announcement *Announcement
}

// Title returns the title of the entity the event refers to, or the course name.
func (e ChangeEvent) Title() string {
	switch {
	case e.File != nil:
		return e.File.Title
	case e.Assignment != nil:
		return e.Assignment.Title
	case e.Announcement != nil:
		return e.Announcement.Title
	default:
		return e.CourseName
	}
}
