package board

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSortInterval = 60 * time.Second
	defaultSortWorkers  = 4
	listFilterOpen      = "open"
)

var errMissingBoardID = errors.New("board id is required")

// SorterConfig configures a Sorter.
type SorterConfig struct {
	Client   Client
	BoardID  string
	Interval time.Duration
	Workers  int
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Sorter periodically reorders the cards of every open list and then the lists of the board.
type Sorter struct {
	client   Client
	boardID  string
	interval time.Duration
	workers  int
	clock    func() time.Time
	logger   *zap.Logger
}

// SortReport summarizes one ordering pass.
type SortReport struct {
	Lists        int
	CardsMoved   int
	ListsMoved   int
	FailedWrites int
}

// NewSorter validates cfg and returns a Sorter.
func NewSorter(cfg SorterConfig) (*Sorter, error) {
	if cfg.Client == nil {
		return nil, errMissingClient
	}
	if cfg.BoardID == "" {
		return nil, errMissingBoardID
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultSortInterval
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = defaultSortWorkers
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sorter{
		client:   cfg.Client,
		boardID:  cfg.BoardID,
		interval: interval,
		workers:  workers,
		clock:    clock,
		logger:   logger,
	}, nil
}

// Run repeats Pass until ctx is cancelled, resting for the configured interval between passes.
func (s *Sorter) Run(ctx context.Context) error {
	s.logger.Info("board sorter started", zap.String("board_id", s.boardID), zap.Duration("interval", s.interval))
	for {
		report, err := s.Pass(ctx)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("board sorter stopped")
			return nil
		case err != nil:
			s.logger.Error("board sort pass failed", zap.Error(err))
		default:
			s.logger.Debug("board sort pass finished",
				zap.Int("lists", report.Lists),
				zap.Int("cards_moved", report.CardsMoved),
				zap.Int("lists_moved", report.ListsMoved),
				zap.Int("failed_writes", report.FailedWrites),
			)
		}

		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("board sorter stopped")
			return nil
		case <-timer.C:
		}
	}
}

// Pass sorts the cards of every open list, then the lists by their derived due dates.
// Listing failures abort the pass; individual position writes are logged and counted.
func (s *Sorter) Pass(ctx context.Context) (SortReport, error) {
	lists, err := s.client.ListsOnBoard(ctx, s.boardID, listFilterOpen)
	if err != nil {
		return SortReport{}, err
	}

	now := s.clock()
	var failed atomic.Int64
	var cardsMoved atomic.Int64
	dated := make([]DatedList, len(lists))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.workers)
	for index, list := range lists {
		group.Go(func() error {
			cards, err := s.client.CardsOnList(groupCtx, list.ID)
			if err != nil {
				return err
			}
			ordered := SortCards(cards, now)
			for _, update := range Redistribute(CardPositions(ordered)) {
				if err := s.client.SetCardPosition(groupCtx, update.ID, update.Pos); err != nil {
					failed.Add(1)
					s.logger.Warn("failed to move card", zap.String("list_id", list.ID), zap.String("card_id", update.ID), zap.Error(err))
					continue
				}
				cardsMoved.Add(1)
			}
			dated[index] = DatedList{List: list, Due: ListDue(ordered)}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return SortReport{}, err
	}

	report := SortReport{Lists: len(lists), CardsMoved: int(cardsMoved.Load())}
	for _, update := range Redistribute(ListPositions(SortLists(dated))) {
		if err := s.client.SetListPosition(ctx, update.ID, update.Pos); err != nil {
			failed.Add(1)
			s.logger.Warn("failed to move list", zap.String("list_id", update.ID), zap.Error(err))
			continue
		}
		report.ListsMoved++
	}
	report.FailedWrites = int(failed.Load())
	return report, nil
}
