package board

import (
	"cmp"
	"slices"
	"time"
)

// Rank is the coarse ordering tier of a card.
type Rank int

const (
	RankNoDue Rank = iota
	RankComplete
	RankOverdue
	RankUpcoming
)

// RankCard places a card in its tier relative to now. A due date equal to now counts as overdue.
func RankCard(card Card, now time.Time) Rank {
	switch {
	case card.Due == nil:
		return RankNoDue
	case card.DueComplete:
		return RankComplete
	case !card.Due.After(now):
		return RankOverdue
	default:
		return RankUpcoming
	}
}

// SortCards returns the cards in board order without modifying the input.
// Upcoming cards run from the latest due date to the soonest; every other tier keeps position order.
func SortCards(cards []Card, now time.Time) []Card {
	ordered := slices.Clone(cards)
	slices.SortStableFunc(ordered, func(a, b Card) int {
		rankA, rankB := RankCard(a, now), RankCard(b, now)
		if rankA != rankB {
			return cmp.Compare(rankA, rankB)
		}
		if rankA == RankUpcoming {
			if byDue := b.Due.Compare(*a.Due); byDue != 0 {
				return byDue
			}
		}
		return cmp.Compare(a.Pos, b.Pos)
	})
	return ordered
}

// ListDue is the due date of the last card of an already sorted list, nil when the list is empty
// or its last card has none.
func ListDue(sorted []Card) *time.Time {
	if len(sorted) == 0 {
		return nil
	}
	return sorted[len(sorted)-1].Due
}

// DatedList pairs a list with the due date derived from its cards.
type DatedList struct {
	List List
	Due  *time.Time
}

// SortLists orders dated lists first by ascending due date, then undated lists, with position as the tie-break.
func SortLists(lists []DatedList) []DatedList {
	ordered := slices.Clone(lists)
	slices.SortStableFunc(ordered, func(a, b DatedList) int {
		switch {
		case a.Due == nil && b.Due == nil:
			return cmp.Compare(a.List.Pos, b.List.Pos)
		case a.Due == nil:
			return 1
		case b.Due == nil:
			return -1
		}
		if byDue := a.Due.Compare(*b.Due); byDue != 0 {
			return byDue
		}
		return cmp.Compare(a.List.Pos, b.List.Pos)
	})
	return ordered
}

// Redistribute hands the existing position values, sorted ascending, to the items in their new order.
// Only items whose assigned slot differs from their current position produce an update.
func Redistribute(ordered []PositionUpdate) []PositionUpdate {
	slots := make([]float64, 0, len(ordered))
	for _, item := range ordered {
		slots = append(slots, item.Pos)
	}
	slices.Sort(slots)

	var updates []PositionUpdate
	for index, item := range ordered {
		if item.Pos != slots[index] {
			updates = append(updates, PositionUpdate{ID: item.ID, Pos: slots[index]})
		}
	}
	return updates
}

// CardPositions lists card identifiers with their current positions in the given order.
func CardPositions(cards []Card) []PositionUpdate {
	positions := make([]PositionUpdate, 0, len(cards))
	for _, card := range cards {
		positions = append(positions, PositionUpdate{ID: card.ID, Pos: card.Pos})
	}
	return positions
}

// ListPositions lists list identifiers with their current positions in the given order.
func ListPositions(lists []DatedList) []PositionUpdate {
	positions := make([]PositionUpdate, 0, len(lists))
	for _, dated := range lists {
		positions = append(positions, PositionUpdate{ID: dated.List.ID, Pos: dated.List.Pos})
	}
	return positions
}
