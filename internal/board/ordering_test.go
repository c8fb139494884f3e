package board

import (
	"slices"
	"testing"
	"time"
)

func TestRankCardTiers(t *testing.T) {
	now := mustTime(t, "2024-03-10T12:00:00Z")
	testCases := []struct {
		name string
		card Card
		want Rank
	}{
		{name: "no due", card: Card{}, want: RankNoDue},
		{name: "complete overdue", card: Card{Due: timePtr(now.Add(-time.Hour)), DueComplete: true}, want: RankComplete},
		{name: "overdue", card: Card{Due: timePtr(now.Add(-time.Hour))}, want: RankOverdue},
		{name: "due exactly now", card: Card{Due: timePtr(now)}, want: RankOverdue},
		{name: "upcoming", card: Card{Due: timePtr(now.Add(time.Hour))}, want: RankUpcoming},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := RankCard(testCase.card, now); got != testCase.want {
				t.Fatalf("expected rank %d, got %d", testCase.want, got)
			}
		})
	}
}

func TestSortCardsOrdersTiersAndRedistributesSlots(t *testing.T) {
	now := mustTime(t, "2024-03-10T12:00:00Z")
	cards := []Card{
		{ID: "overdue", Due: timePtr(now.Add(-24 * time.Hour)), Pos: 1024},
		{ID: "upcoming", Due: timePtr(now.Add(24 * time.Hour)), Pos: 2048},
		{ID: "no-due", Pos: 4096},
		{ID: "complete", Due: timePtr(now.Add(48 * time.Hour)), DueComplete: true, Pos: 8192},
	}

	ordered := SortCards(cards, now)
	gotOrder := cardIDs(ordered)
	wantOrder := []string{"no-due", "complete", "overdue", "upcoming"}
	if !slices.Equal(gotOrder, wantOrder) {
		t.Fatalf("expected order %v, got %v", wantOrder, gotOrder)
	}
	if cards[0].ID != "overdue" {
		t.Fatalf("expected input slice to stay untouched")
	}

	updates := Redistribute(CardPositions(ordered))
	assigned := map[string]float64{}
	for _, card := range cards {
		assigned[card.ID] = card.Pos
	}
	for _, update := range updates {
		assigned[update.ID] = update.Pos
	}
	want := map[string]float64{"no-due": 1024, "complete": 2048, "overdue": 4096, "upcoming": 8192}
	for id, pos := range want {
		if assigned[id] != pos {
			t.Fatalf("expected %s at %v, got %v", id, pos, assigned[id])
		}
	}

	var before, after []float64
	for _, card := range cards {
		before = append(before, card.Pos)
		after = append(after, assigned[card.ID])
	}
	slices.Sort(before)
	slices.Sort(after)
	if !slices.Equal(before, after) {
		t.Fatalf("expected position multiset to be preserved, got %v from %v", after, before)
	}
	if len(updates) != 4 {
		t.Fatalf("expected every card to move, got %d updates", len(updates))
	}
}

func TestSortCardsUpcomingLatestFirst(t *testing.T) {
	now := mustTime(t, "2024-03-10T12:00:00Z")
	soon := now.Add(time.Hour)
	late := now.Add(72 * time.Hour)
	cards := []Card{
		{ID: "soon", Due: timePtr(soon), Pos: 1},
		{ID: "late", Due: timePtr(late), Pos: 2},
		{ID: "late-tie", Due: timePtr(late), Pos: 3},
	}

	got := cardIDs(SortCards(cards, now))
	want := []string{"late", "late-tie", "soon"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestRedistributeSkipsCardsAlreadyInPlace(t *testing.T) {
	ordered := []PositionUpdate{{ID: "a", Pos: 10}, {ID: "c", Pos: 30}, {ID: "b", Pos: 20}, {ID: "d", Pos: 40}}

	updates := Redistribute(ordered)
	want := []PositionUpdate{{ID: "c", Pos: 20}, {ID: "b", Pos: 30}}
	if !slices.Equal(updates, want) {
		t.Fatalf("expected %v, got %v", want, updates)
	}
}

func TestListDueUsesLastSortedCard(t *testing.T) {
	if ListDue(nil) != nil {
		t.Fatalf("expected empty list to have no due date")
	}
	due := mustTime(t, "2024-04-01T00:00:00Z")
	sorted := []Card{{ID: "a"}, {ID: "b", Due: timePtr(due)}}
	if got := ListDue(sorted); got == nil || !got.Equal(due) {
		t.Fatalf("expected %s, got %v", due, got)
	}
}

func TestSortListsDatedBeforeUndated(t *testing.T) {
	early := mustTime(t, "2024-03-01T00:00:00Z")
	late := mustTime(t, "2024-05-01T00:00:00Z")
	lists := []DatedList{
		{List: List{ID: "undated-high", Pos: 5}},
		{List: List{ID: "late", Pos: 1}, Due: timePtr(late)},
		{List: List{ID: "undated-low", Pos: 2}},
		{List: List{ID: "early-b", Pos: 4}, Due: timePtr(early)},
		{List: List{ID: "early-a", Pos: 3}, Due: timePtr(early)},
	}

	var got []string
	for _, dated := range SortLists(lists) {
		got = append(got, dated.List.ID)
	}
	want := []string{"early-a", "early-b", "late", "undated-low", "undated-high"}
	if !slices.Equal(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func cardIDs(cards []Card) []string {
	ids := make([]string, 0, len(cards))
	for _, card := range cards {
		ids = append(ids, card.ID)
	}
	return ids
}
