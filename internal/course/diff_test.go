package course

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDiffEmitsSingleNewCourseWithoutPreviousRecord(t *testing.T) {
	current := Course{
		ID:          mustCourseID(t, "course-1"),
		Name:        "Operating Systems",
		Files:       []FileItem{{ID: "f1", Title: "Syllabus"}},
		Assignments: []Assignment{{ID: "a1", Title: "Lab 1", Deadline: mustTimestamp(t, "2024-03-01T15:59:00Z")}},
	}

	events := Diff("Operating Systems", nil, current)

	if len(events) != 1 {
		t.Fatalf("expected exactly one event, got %d", len(events))
	}
	if events[0].Kind != EventNewCourse {
		t.Fatalf("expected new course event, got %s", events[0].Kind)
	}
	if events[0].CourseName != "Operating Systems" || events[0].CourseID != "course-1" {
		t.Fatalf("unexpected course identity on event: %#v", events[0])
	}
}

func TestDiffNeverEmitsNewCourseWithPreviousRecord(t *testing.T) {
	previous := Course{ID: "course-1", Name: "Operating Systems"}
	current := Course{
		ID:            "course-1",
		Name:          "Operating Systems",
		Files:         []FileItem{{ID: "f1", Title: "Syllabus"}},
		Announcements: []Announcement{{ID: "n1", Title: "Welcome"}},
	}

	for _, event := range Diff("Operating Systems", &previous, current) {
		if event.Kind == EventNewCourse {
			t.Fatalf("unexpected new course event for known course")
		}
	}
}

func TestDiffReportsOnlyUnseenFilesAndAnnouncementsInCurrentOrder(t *testing.T) {
	previous := Course{
		ID:            "course-1",
		Files:         []FileItem{{ID: "f1", Title: "Old slides"}},
		Announcements: []Announcement{{ID: "n1", Title: "Welcome"}},
	}
	current := Course{
		ID: "course-1",
		Files: []FileItem{
			{ID: "f3", Title: "Week 3"},
			{ID: "f1", Title: "Old slides (renamed)"},
			{ID: "f2", Title: "Week 2"},
		},
		Announcements: []Announcement{
			{ID: "n1", Title: "Welcome"},
			{ID: "n2", Title: "Room change"},
		},
	}

	events := Diff("Compilers", &previous, current)

	wantKinds := []EventKind{EventNewFile, EventNewFile, EventNewAnnouncement}
	wantTitles := []string{"Week 3", "Week 2", "Room change"}
	if len(events) != len(wantKinds) {
		t.Fatalf("expected %d events, got %d: %#v", len(wantKinds), len(events), events)
	}
	for index, event := range events {
		if event.Kind != wantKinds[index] {
			t.Fatalf("event %d: expected kind %s, got %s", index, wantKinds[index], event.Kind)
		}
		if event.Title() != wantTitles[index] {
			t.Fatalf("event %d: expected title %q, got %q", index, wantTitles[index], event.Title())
		}
	}
}

func TestDiffNewAssignmentShortCircuitsOtherChecks(t *testing.T) {
	previous := Course{ID: "course-1"}
	current := Course{
		ID: "course-1",
		Assignments: []Assignment{{
			ID:        "a2",
			Title:     "Project proposal",
			Deadline:  mustTimestamp(t, "2024-04-01T15:59:00Z"),
			Submitted: true,
			GradeTime: mustTimestamp(t, "2024-04-02T00:00:00Z"),
			Grade:     Grade{Kind: GradeKindNumeric, Value: 95},
		}},
	}

	events := Diff("Compilers", &previous, current)

	if len(events) != 1 || events[0].Kind != EventNewAssignment {
		t.Fatalf("expected a single new assignment event, got %#v", events)
	}
	if !events[0].Assignment.Submitted || !events[0].Assignment.Deadline.SameInstant(mustTimestamp(t, "2024-04-01T15:59:00Z")) {
		t.Fatalf("expected event to carry current deadline and submission state")
	}
}

func TestDiffDeadlineChangeWithoutSubmission(t *testing.T) {
	previous := Course{ID: "course-1", Assignments: []Assignment{{
		ID: "1", Title: "Lab 1", Deadline: mustTimestamp(t, "2024-03-01T15:59:00Z"),
	}}}
	current := Course{ID: "course-1", Assignments: []Assignment{{
		ID: "1", Title: "Lab 1", Deadline: mustTimestamp(t, "2024-03-08T15:59:00Z"),
	}}}

	events := Diff("Compilers", &previous, current)

	if countKind(events, EventDeadlineChanged) != 1 {
		t.Fatalf("expected exactly one deadline change, got %#v", events)
	}
	if countKind(events, EventSubmitted) != 0 {
		t.Fatalf("expected no submitted events, got %#v", events)
	}
	if len(events) != 1 {
		t.Fatalf("expected a single event, got %d", len(events))
	}
}

func TestDiffSubmittedTransitionRegardlessOfOtherChanges(t *testing.T) {
	deadline := mustTimestamp(t, "2024-03-01T15:59:00Z")
	cases := []struct {
		name    string
		current Assignment
	}{
		{
			name:    "only submission",
			current: Assignment{ID: "1", Deadline: deadline, Submitted: true},
		},
		{
			name:    "submission with deadline move",
			current: Assignment{ID: "1", Deadline: mustTimestamp(t, "2024-03-02T15:59:00Z"), Submitted: true},
		},
		{
			name: "submission with grade",
			current: Assignment{
				ID: "1", Deadline: deadline, Submitted: true,
				GradeTime: mustTimestamp(t, "2024-03-03T10:00:00Z"),
				Grade:     Grade{Kind: GradeKindLevel, Level: "A"},
			},
		},
	}

	for _, testCase := range cases {
		t.Run(testCase.name, func(t *testing.T) {
			previous := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Deadline: deadline}}}
			current := Course{ID: "course-1", Assignments: []Assignment{testCase.current}}

			events := Diff("Compilers", &previous, current)
			if countKind(events, EventSubmitted) != 1 {
				t.Fatalf("expected exactly one submitted event, got %#v", events)
			}
		})
	}
}

func TestDiffIgnoresUnsubmission(t *testing.T) {
	deadline := mustTimestamp(t, "2024-03-01T15:59:00Z")
	previous := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Deadline: deadline, Submitted: true}}}
	current := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Deadline: deadline, Submitted: false}}}

	if events := Diff("Compilers", &previous, current); len(events) != 0 {
		t.Fatalf("expected no events, got %#v", events)
	}
}

func TestDiffTreatsSerializedAndLiveDeadlinesAsSameInstant(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*60*60)
	live := At(time.Date(2024, 3, 1, 23, 59, 0, 0, shanghai))

	var persisted Course
	document := `{"id":"course-1","assignments":[{"id":"1","deadline":"2024-03-01T15:59:00.000Z","gradeTime":"2024-03-02T04:00:00Z"}]}`
	if err := json.Unmarshal([]byte(document), &persisted); err != nil {
		t.Fatalf("unexpected decode error: %v", err)
	}

	current := Course{ID: "course-1", Assignments: []Assignment{{
		ID:        "1",
		Deadline:  live,
		GradeTime: At(time.Date(2024, 3, 2, 12, 0, 0, 0, shanghai)),
	}}}

	if events := Diff("Compilers", &persisted, current); len(events) != 0 {
		t.Fatalf("expected normalization to suppress events, got %#v", events)
	}
}

func TestDiffGradePostedOnFirstGradeAndRegrade(t *testing.T) {
	deadline := mustTimestamp(t, "2024-03-01T15:59:00Z")
	firstGradeTime := mustTimestamp(t, "2024-03-05T08:00:00Z")
	score := 87.5

	ungraded := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Deadline: deadline, Submitted: true}}}
	graded := Course{ID: "course-1", Assignments: []Assignment{{
		ID: "1", Deadline: deadline, Submitted: true,
		GradeTime:     firstGradeTime,
		Grade:         NewGrade("", &score),
		GradeFeedback: "Good work",
	}}}

	events := Diff("Compilers", &ungraded, graded)
	if len(events) != 1 || events[0].Kind != EventGradePosted {
		t.Fatalf("expected a single grade posted event, got %#v", events)
	}
	if events[0].Assignment.Grade.Display() != "87.5" || events[0].Assignment.GradeFeedback != "Good work" {
		t.Fatalf("expected grade details on event, got %#v", events[0].Assignment)
	}

	regraded := Course{ID: "course-1", Assignments: []Assignment{{
		ID: "1", Deadline: deadline, Submitted: true,
		GradeTime: mustTimestamp(t, "2024-03-06T08:00:00Z"),
		Grade:     NewGrade("A-", &score),
	}}}
	events = Diff("Compilers", &graded, regraded)
	if countKind(events, EventGradePosted) != 1 {
		t.Fatalf("expected regrade to post again, got %#v", events)
	}
	if events[0].Assignment.Grade.Display() != "A-" {
		t.Fatalf("expected level to take precedence, got %q", events[0].Assignment.Grade.Display())
	}

	if events := Diff("Compilers", &regraded, regraded); len(events) != 0 {
		t.Fatalf("expected unchanged grade to stay quiet, got %#v", events)
	}
}

func TestDiffMissingDeadlineResolvesToNoEvent(t *testing.T) {
	previous := Course{ID: "course-1", Assignments: []Assignment{{ID: "1"}}}
	current := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Deadline: mustTimestamp(t, "2024-03-01T15:59:00Z")}}}

	if events := Diff("Compilers", &previous, current); len(events) != 0 {
		t.Fatalf("expected no events, got %#v", events)
	}
}

func TestDiffDoesNotMutateInputs(t *testing.T) {
	previous := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Title: "Lab", Deadline: mustTimestamp(t, "2024-03-01T15:59:00Z")}}}
	current := Course{ID: "course-1", Assignments: []Assignment{{ID: "1", Title: "Lab", Deadline: mustTimestamp(t, "2024-03-02T15:59:00Z")}}}

	events := Diff("Compilers", &previous, current)
	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	events[0].Assignment.Title = "mutated"

	if current.Assignments[0].Title != "Lab" || previous.Assignments[0].Title != "Lab" {
		t.Fatalf("expected inputs to be untouched")
	}
}

func countKind(events []ChangeEvent, kind EventKind) int {
	count := 0
	for _, event := range events {
		if event.Kind == kind {
			count++
		}
	}
	return count
}
