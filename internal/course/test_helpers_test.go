package course

import "testing"

func mustCourseID(t *testing.T, value string) CourseID {
	t.Helper()
	id, err := NewCourseID(value)
	if err != nil {
		t.Fatalf("unexpected course id error: %v", err)
	}
	return id
}

func mustTimestamp(t *testing.T, value string) Timestamp {
	t.Helper()
	ts, err := ParseTimestamp(value)
	if err != nil {
		t.Fatalf("unexpected timestamp error: %v", err)
	}
	return ts
}
