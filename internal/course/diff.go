package course

// Diff compares two observations of one course and returns the change events in emission order:
// files, then announcements, then assignments, each following the order of current.
// A nil previous means the course has never been seen and yields a single EventNewCourse.
// Neither input is modified; events carry copies of the current entities.
func Diff(courseName string, previous *Course, current Course) []ChangeEvent {
	if previous == nil {
		return []ChangeEvent{{Kind: EventNewCourse, CourseID: current.ID, CourseName: courseName}}
	}

	base := ChangeEvent{CourseID: current.ID, CourseName: courseName}
	var events []ChangeEvent
	events = append(events, diffFiles(base, previous.Files, current.Files)...)
	events = append(events, diffAnnouncements(base, previous.Announcements, current.Announcements)...)
	events = append(events, diffAssignments(base, previous.Assignments, current.Assignments)...)
	return events
}

func diffFiles(base ChangeEvent, previous, current []FileItem) []ChangeEvent {
	seen := make(map[string]struct{}, len(previous))
	for _, file := range previous {
		seen[file.ID] = struct{}{}
	}

	var events []ChangeEvent
	for _, file := range current {
		if _, ok := seen[file.ID]; ok {
			continue
		}
		event := base
		event.Kind = EventNewFile
		event.File = &file
		events = append(events, event)
	}
	return events
}

func diffAnnouncements(base ChangeEvent, previous, current []Announcement) []ChangeEvent {
	seen := make(map[string]struct{}, len(previous))
	for _, announcement := range previous {
		seen[announcement.ID] = struct{}{}
	}

	var events []ChangeEvent
	for _, announcement := range current {
		if _, ok := seen[announcement.ID]; ok {
			continue
		}
		event := base
		event.Kind = EventNewAnnouncement
		event.Announcement = &announcement
		events = append(events, event)
	}
	return events
}

func diffAssignments(base ChangeEvent, previous, current []Assignment) []ChangeEvent {
	byID := make(map[string]Assignment, len(previous))
	for _, assignment := range previous {
		byID[assignment.ID] = assignment
	}

	var events []ChangeEvent
	for _, assignment := range current {
		emit := func(kind EventKind) {
			event := base
			event.Kind = kind
			copied := assignment
			event.Assignment = &copied
			events = append(events, event)
		}

		before, ok := byID[assignment.ID]
		if !ok {
			emit(EventNewAssignment)
			continue
		}
		if deadlineMoved(before.Deadline, assignment.Deadline) {
			emit(EventDeadlineChanged)
		}
		if assignment.Submitted && !before.Submitted {
			emit(EventSubmitted)
		}
		if gradePosted(before.GradeTime, assignment.GradeTime) {
			emit(EventGradePosted)
		}
	}
	return events
}

// deadlineMoved ignores observations where either side lacks a deadline.
func deadlineMoved(before, now Timestamp) bool {
	if before.IsZero() || now.IsZero() {
		return false
	}
	return !before.SameInstant(now)
}

func gradePosted(before, now Timestamp) bool {
	if now.IsZero() {
		return false
	}
	return before.IsZero() || !before.SameInstant(now)
}
