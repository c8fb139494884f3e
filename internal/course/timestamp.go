package course

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z0700",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// PlatformLocation interprets timestamps the platform reports without a zone. Set it once at startup.
var PlatformLocation = time.FixedZone("CST", 8*60*60)

// Timestamp is an instant normalized at the decoding boundary. The platform reports times either as
// RFC 3339 text or as epoch milliseconds; snapshots store RFC 3339 text. A zero Timestamp means absent.
type Timestamp struct {
	time.Time
}

// At wraps t as a Timestamp in UTC.
func At(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC()}
}

// SameInstant reports whether both timestamps denote the same instant. Two absent timestamps are the same.
func (ts Timestamp) SameInstant(other Timestamp) bool {
	if ts.IsZero() || other.IsZero() {
		return ts.IsZero() == other.IsZero()
	}
	return ts.Time.Equal(other.Time)
}

// MarshalJSON encodes the instant as RFC 3339 text at full precision, or null when absent.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts RFC 3339 text, epoch milliseconds (number or numeric text), and null.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*ts = Timestamp{}
		return nil
	}

	if trimmed[0] != '"' {
		millis, err := strconv.ParseInt(string(trimmed), 10, 64)
		if err != nil {
			return fmt.Errorf("course: invalid timestamp %s: %w", trimmed, err)
		}
		*ts = fromMillis(millis)
		return nil
	}

	var text string
	if err := json.Unmarshal(trimmed, &text); err != nil {
		return fmt.Errorf("course: invalid timestamp %s: %w", trimmed, err)
	}
	parsed, err := ParseTimestamp(text)
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}

// ParseTimestamp parses the textual forms accepted by UnmarshalJSON.
func ParseTimestamp(text string) (Timestamp, error) {
	if text == "" {
		return Timestamp{}, nil
	}
	if millis, err := strconv.ParseInt(text, 10, 64); err == nil {
		return fromMillis(millis), nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, text, PlatformLocation); err == nil {
			return At(parsed), nil
		}
	}
	return Timestamp{}, fmt.Errorf("course: unrecognized timestamp %q", text)
}

func fromMillis(millis int64) Timestamp {
	if millis <= 0 {
		return Timestamp{}
	}
	return At(time.UnixMilli(millis))
}
