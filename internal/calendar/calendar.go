// Package calendar renders assignment deadlines as an iCalendar feed.
package calendar

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	ics "github.com/arran4/golang-ical"
)

const (
	productID        = "-//coursewatch//deadlines//EN"
	defaultName      = "Course deadlines"
	deadlineDuration = 15 * time.Minute
)

// Options tune the rendered feed.
type Options struct {
	Name string
	// IncludeSubmitted keeps deadlines of already submitted assignments.
	IncludeSubmitted bool
}

// Render builds an iCalendar document with one event per assignment deadline in the snapshot.
// Courses and assignments are emitted in identifier order so the output is stable.
func Render(snapshot course.Snapshot, stamp time.Time, options Options) string {
	name := options.Name
	if name == "" {
		name = defaultName
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(name)

	courseIDs := make([]course.CourseID, 0, len(snapshot.Courses))
	for id := range snapshot.Courses {
		courseIDs = append(courseIDs, id)
	}
	slices.Sort(courseIDs)

	for _, id := range courseIDs {
		observed := snapshot.Courses[id]
		assignments := slices.Clone(observed.Assignments)
		slices.SortFunc(assignments, func(a, b course.Assignment) int {
			return strings.Compare(a.ID, b.ID)
		})
		for _, assignment := range assignments {
			if assignment.Deadline.IsZero() {
				continue
			}
			if assignment.Submitted && !options.IncludeSubmitted {
				continue
			}
			event := cal.AddEvent(eventUID(id, assignment.ID))
			event.SetDtStampTime(stamp.UTC())
			event.SetStartAt(assignment.Deadline.Add(-deadlineDuration))
			event.SetEndAt(assignment.Deadline.Time)
			event.SetSummary(fmt.Sprintf("[%s] %s", observed.Name, assignment.Title))
			if assignment.URL != "" {
				event.SetURL(assignment.URL)
			}
			event.SetDescription(describe(assignment))
		}
	}
	return cal.Serialize()
}

func eventUID(courseID course.CourseID, assignmentID string) string {
	return fmt.Sprintf("%s-%s@coursewatch", courseID, assignmentID)
}

func describe(assignment course.Assignment) string {
	var parts []string
	if assignment.Submitted {
		parts = append(parts, "Submitted")
	} else {
		parts = append(parts, "Not submitted")
	}
	if !assignment.Grade.IsZero() {
		parts = append(parts, "Grade: "+assignment.Grade.Display())
	}
	return strings.Join(parts, "\n")
}
