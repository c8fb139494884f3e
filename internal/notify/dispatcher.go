// Package notify renders change events into chat messages and delivers them.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"go.uber.org/zap"
)

var errMissingTransport = errors.New("transport is required")

// Message is a rendered change event.
type Message struct {
	Kind       course.EventKind `json:"kind"`
	CourseID   string           `json:"courseId"`
	CourseName string           `json:"courseName"`
	Title      string           `json:"title"`
	URL        string           `json:"url,omitempty"`
	Text       string           `json:"text"`
	SentAt     time.Time        `json:"sentAt"`
}

// Transport delivers a message to the chat channel.
type Transport interface {
	Send(ctx context.Context, message Message) error
}

// Publisher receives every rendered message, delivered or not.
type Publisher interface {
	Publish(message Message)
}

// DispatcherConfig configures a Dispatcher. Publisher is optional.
type DispatcherConfig struct {
	Transport Transport
	Publisher Publisher
	Location  *time.Location
	Clock     func() time.Time
	Logger    *zap.Logger
}

// Dispatcher sends the change events of a course in order. Send failures are logged and never retried.
type Dispatcher struct {
	transport Transport
	publisher Publisher
	location  *time.Location
	clock     func() time.Time
	logger    *zap.Logger
}

// NewDispatcher validates cfg and returns a Dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Transport == nil {
		return nil, errMissingTransport
	}
	location := cfg.Location
	if location == nil {
		location = time.Local
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		transport: cfg.Transport,
		publisher: cfg.Publisher,
		location:  location,
		clock:     clock,
		logger:    logger,
	}, nil
}

// Dispatch renders and sends each event.
func (d *Dispatcher) Dispatch(ctx context.Context, events []course.ChangeEvent) {
	for _, event := range events {
		logger := d.logger.With(
			zap.String("kind", string(event.Kind)),
			zap.String("course", event.CourseName),
			zap.String("title", event.Title()),
		)
		message, err := Render(event, d.location)
		if err != nil {
			logger.Error("failed to render change event", zap.Error(err))
			if message.Text == "" {
				continue
			}
		}
		message.SentAt = d.clock().UTC()

		logger.Info("change detected")
		if d.publisher != nil {
			d.publisher.Publish(message)
		}
		if err := d.transport.Send(ctx, message); err != nil {
			logger.Error("failed to send message", zap.Error(err))
		}
	}
}
