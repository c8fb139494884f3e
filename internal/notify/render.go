package notify

import (
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	deadlineLayout = "2006-01-02 15:04:05"
	separator      = "===================="
)

var (
	markdownSpecials = regexp.MustCompile("([*_`\\[])")
	blankLines       = regexp.MustCompile(`\n\s*\n`)
)

// EscapeMarkdown escapes the characters that legacy Telegram Markdown treats as markup.
func EscapeMarkdown(text string) string {
	return markdownSpecials.ReplaceAllString(text, `\$1`)
}

// RewriteLink points platform links at the public host.
func RewriteLink(link string) string {
	return strings.Replace(link, "learn2018", "learn", 1)
}

// FormatDeadline renders a deadline in loc, or an empty string when the deadline is absent.
func FormatDeadline(deadline course.Timestamp, loc *time.Location) string {
	if deadline.IsZero() {
		return ""
	}
	if loc == nil {
		loc = time.Local
	}
	return deadline.In(loc).Format(deadlineLayout)
}

// Render turns a change event into a chat message. The body of an announcement is converted
// from HTML; a conversion failure is returned alongside a message without the body.
func Render(event course.ChangeEvent, loc *time.Location) (Message, error) {
	message := Message{
		Kind:       event.Kind,
		CourseID:   event.CourseID.String(),
		CourseName: event.CourseName,
		Title:      event.Title(),
	}
	courseName := EscapeMarkdown(event.CourseName)

	var text strings.Builder
	var renderErr error
	switch event.Kind {
	case course.EventNewCourse:
		fmt.Fprintf(&text, "New course: %s", courseName)
	case course.EventNewFile:
		message.URL = RewriteLink(event.File.DownloadURL)
		fmt.Fprintf(&text, "%s published a new file: %s", courseName, link(event.File.Title, message.URL))
	case course.EventNewAssignment:
		message.URL = RewriteLink(event.Assignment.URL)
		fmt.Fprintf(&text, "%s assigned new homework: %s", courseName, link(event.Assignment.Title, message.URL))
		writeDeadline(&text, event.Assignment.Deadline, loc)
	case course.EventDeadlineChanged:
		message.URL = RewriteLink(event.Assignment.URL)
		fmt.Fprintf(&text, "Deadline changed: %s %s", courseName, link(event.Assignment.Title, message.URL))
		writeDeadline(&text, event.Assignment.Deadline, loc)
	case course.EventSubmitted:
		message.URL = RewriteLink(event.Assignment.URL)
		fmt.Fprintf(&text, "Homework submitted: %s %s", courseName, link(event.Assignment.Title, message.URL))
	case course.EventGradePosted:
		message.URL = RewriteLink(event.Assignment.URL)
		fmt.Fprintf(&text, "Homework graded: %s %s", courseName, link(event.Assignment.Title, message.URL))
		writeGrade(&text, *event.Assignment)
	case course.EventNewAnnouncement:
		message.URL = RewriteLink(event.Announcement.URL)
		fmt.Fprintf(&text, "%s posted a new announcement: %s", courseName, link(event.Announcement.Title, message.URL))
		body, err := HTMLToText(strings.NewReader(event.Announcement.Body))
		if err != nil {
			renderErr = fmt.Errorf("notify: announcement %s body: %w", event.Announcement.ID, err)
		} else if body != "" {
			text.WriteString("\n" + separator + "\n")
			text.WriteString(EscapeMarkdown(body))
		}
	default:
		return message, fmt.Errorf("notify: unknown event kind %q", event.Kind)
	}
	message.Text = text.String()
	return message, renderErr
}

func link(title, target string) string {
	return fmt.Sprintf("[%s](%s)", EscapeMarkdown(title), target)
}

func writeDeadline(text *strings.Builder, deadline course.Timestamp, loc *time.Location) {
	if formatted := FormatDeadline(deadline, loc); formatted != "" {
		text.WriteString("\nDeadline: " + formatted)
	}
}

func writeGrade(text *strings.Builder, assignment course.Assignment) {
	switch assignment.Grade.Kind {
	case course.GradeKindLevel:
		text.WriteString("\nGrade level: " + EscapeMarkdown(assignment.Grade.Display()))
	case course.GradeKindNumeric:
		text.WriteString("\nScore: " + EscapeMarkdown(assignment.Grade.Display()))
	}
	if assignment.GradeFeedback != "" {
		text.WriteString("\n" + separator + "\n")
		text.WriteString(EscapeMarkdown(assignment.GradeFeedback))
	}
}

// HTMLToText extracts readable text from an HTML fragment, one line per block element,
// with runs of blank lines collapsed.
func HTMLToText(r io.Reader) (string, error) {
	root, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var out strings.Builder
	walkText(&out, root)
	lines := strings.Split(out.String(), "\n")
	for index, line := range lines {
		lines[index] = strings.TrimSpace(line)
	}
	squeezed := blankLines.ReplaceAllString(strings.Join(lines, "\n"), "\n")
	return strings.TrimSpace(squeezed), nil
}

func walkText(out *strings.Builder, node *html.Node) {
	switch node.Type {
	case html.TextNode:
		words := strings.Fields(node.Data)
		if len(words) == 0 {
			if node.Data != "" {
				out.WriteString(" ")
			}
			return
		}
		if strings.TrimLeftFunc(node.Data, unicode.IsSpace) != node.Data {
			out.WriteString(" ")
		}
		out.WriteString(strings.Join(words, " "))
		if strings.TrimRightFunc(node.Data, unicode.IsSpace) != node.Data {
			out.WriteString(" ")
		}
		return
	case html.ElementNode:
		switch node.DataAtom {
		case atom.Script, atom.Style, atom.Head:
			return
		case atom.Br:
			out.WriteString("\n")
			return
		}
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		walkText(out, child)
	}
	if node.Type == html.ElementNode && isBlock(node.DataAtom) {
		out.WriteString("\n")
	}
}

func isBlock(a atom.Atom) bool {
	switch a {
	case atom.P, atom.Div, atom.Li, atom.Tr, atom.H1, atom.H2, atom.H3, atom.H4, atom.H5, atom.H6,
		atom.Blockquote, atom.Pre, atom.Table, atom.Ul, atom.Ol, atom.Section, atom.Article:
		return true
	}
	return false
}
