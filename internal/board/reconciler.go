package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/course"
	"go.uber.org/zap"
)

// DefaultTrackingLabel is the label name that marks cards owned by the reconciler.
const DefaultTrackingLabel = "Homework"

var (
	// ErrListNotFound indicates that no open list carries the course name.
	ErrListNotFound = errors.New("board: list not found")

	errMissingClient  = errors.New("board client is required")
	errMissingLabelID = errors.New("label id is required")
)

// ReconcilerConfig configures a Reconciler.
type ReconcilerConfig struct {
	Client        Client
	LabelID       string
	TrackingLabel string
	Clock         func() time.Time
	Logger        *zap.Logger
}

// Reconciler mirrors a course's assignments onto the cards of the list named after the course.
type Reconciler struct {
	client        Client
	labelID       string
	trackingLabel string
	clock         func() time.Time
	logger        *zap.Logger
}

// ReconcileReport counts the card operations issued for one course.
type ReconcileReport struct {
	ListID     string
	Created    int
	DueUpdated int
	Completed  int
	Failed     int
}

// NewReconciler validates cfg and returns a Reconciler.
func NewReconciler(cfg ReconcilerConfig) (*Reconciler, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	if cfg.LabelID == "" {
		return nil, errMissingLabelID
	}
	trackingLabel := cfg.TrackingLabel
	if trackingLabel == "" {
		trackingLabel = DefaultTrackingLabel
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		client:        cfg.Client,
		labelID:       cfg.LabelID,
		trackingLabel: trackingLabel,
		clock:         clock,
		logger:        logger,
	}, nil
}

// Reconcile creates, re-dates and completes cards so the course list reflects the assignments.
// A failed card operation is logged and counted; the remaining assignments are still processed.
func (r *Reconciler) Reconcile(ctx context.Context, courseName string, assignments []course.Assignment, lists []List) (ReconcileReport, error) {
	list, ok := findList(lists, courseName)
	if !ok {
		return ReconcileReport{}, fmt.Errorf("%w: %q", ErrListNotFound, courseName)
	}
	report := ReconcileReport{ListID: list.ID}

	cards, err := r.client.CardsOnList(ctx, list.ID)
	if err != nil {
		return report, err
	}
	tracked := make([]Card, 0, len(cards))
	for _, card := range cards {
		if card.HasLabel(r.trackingLabel) {
			tracked = append(tracked, card)
		}
	}

	now := r.clock()
	logger := r.logger.With(zap.String("course", courseName), zap.String("list_id", list.ID))
	for _, assignment := range assignments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		card, found := findCard(tracked, assignment.Title)
		if !found {
			if assignment.Submitted || assignment.Deadline.IsZero() || !assignment.Deadline.After(now) {
				continue
			}
			logger.Info("creating card", zap.String("title", assignment.Title))
			if err := r.createCard(ctx, list.ID, assignment); err != nil {
				report.Failed++
				logger.Error("failed to create card", zap.String("title", assignment.Title), zap.Error(err))
				continue
			}
			report.Created++
			continue
		}

		if !assignment.Deadline.IsZero() && (card.Due == nil || !card.Due.Equal(assignment.Deadline.Time)) {
			logger.Info("updating card due date", zap.String("title", assignment.Title), zap.String("card_id", card.ID))
			if err := r.client.AddDueDateToCard(ctx, card.ID, assignment.Deadline.Time); err != nil {
				report.Failed++
				logger.Error("failed to update card due date", zap.String("card_id", card.ID), zap.Error(err))
			} else {
				report.DueUpdated++
			}
		}

		if assignment.Submitted && !(card.DueComplete && card.Closed) {
			logger.Info("completing card", zap.String("title", assignment.Title), zap.String("card_id", card.ID))
			if err := r.completeCard(ctx, card.ID); err != nil {
				report.Failed++
				logger.Error("failed to complete card", zap.String("card_id", card.ID), zap.Error(err))
				continue
			}
			report.Completed++
		}
	}
	return report, nil
}

func (r *Reconciler) createCard(ctx context.Context, listID string, assignment course.Assignment) error {
	card, err := r.client.AddCard(ctx, assignment.Title, "", listID)
	if err != nil {
		return err
	}
	if err := r.client.AddLabelToCard(ctx, card.ID, r.labelID); err != nil {
		return err
	}
	return r.client.AddDueDateToCard(ctx, card.ID, assignment.Deadline.Time)
}

func (r *Reconciler) completeCard(ctx context.Context, cardID string) error {
	if err := r.client.UpdateCard(ctx, cardID, FieldDueComplete, strconv.FormatBool(true)); err != nil {
		return err
	}
	return r.client.UpdateCard(ctx, cardID, FieldClosed, strconv.FormatBool(true))
}

func findList(lists []List, name string) (List, bool) {
	for _, list := range lists {
		if !list.Closed && list.Name == name {
			return list, true
		}
	}
	return List{}, false
}

// findCard returns the first card with the title; duplicate titles are not disambiguated.
func findCard(cards []Card, title string) (Card, bool) {
	for _, card := range cards {
		if card.Name == title {
			return card, true
		}
	}
	return Card{}, false
}
