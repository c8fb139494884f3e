package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordedCall struct {
	Method string
	ID     string
	Field  string
	Value  string
}

type fakeClient struct {
	mu       sync.Mutex
	lists    []List
	cards    map[string][]Card
	calls    []recordedCall
	failIDs  map[string]bool
	listErr  error
	nextCard int
}

func newFakeClient(lists []List, cards map[string][]Card) *fakeClient {
	if cards == nil {
		cards = map[string][]Card{}
	}
	return &fakeClient{lists: lists, cards: cards, failIDs: map[string]bool{}}
}

var errFakeWrite = errors.New("fake write failure")

func (f *fakeClient) record(call recordedCall) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	if f.failIDs[call.ID] {
		return errFakeWrite
	}
	return nil
}

func (f *fakeClient) ListsOnBoard(ctx context.Context, boardID, filter string) ([]List, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lists, nil
}

func (f *fakeClient) CardsOnList(ctx context.Context, listID string) ([]Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Card(nil), f.cards[listID]...), nil
}

func (f *fakeClient) AddCard(ctx context.Context, name, description, listID string) (Card, error) {
	f.mu.Lock()
	f.nextCard++
	id := fmt.Sprintf("new-%d", f.nextCard)
	f.mu.Unlock()
	if err := f.record(recordedCall{Method: "AddCard", ID: listID, Value: name}); err != nil {
		return Card{}, err
	}
	return Card{ID: id, Name: name, ListID: listID}, nil
}

func (f *fakeClient) UpdateCard(ctx context.Context, cardID, field, value string) error {
	return f.record(recordedCall{Method: "UpdateCard", ID: cardID, Field: field, Value: value})
}

func (f *fakeClient) AddLabelToCard(ctx context.Context, cardID, labelID string) error {
	return f.record(recordedCall{Method: "AddLabelToCard", ID: cardID, Value: labelID})
}

func (f *fakeClient) AddDueDateToCard(ctx context.Context, cardID string, due time.Time) error {
	return f.record(recordedCall{Method: "AddDueDateToCard", ID: cardID, Value: FormatDue(due)})
}

func (f *fakeClient) SetCardPosition(ctx context.Context, cardID string, pos float64) error {
	return f.record(recordedCall{Method: "SetCardPosition", ID: cardID, Value: FormatPos(pos)})
}

func (f *fakeClient) SetListPosition(ctx context.Context, listID string, pos float64) error {
	return f.record(recordedCall{Method: "SetListPosition", ID: listID, Value: FormatPos(pos)})
}

func (f *fakeClient) callsFor(method string) []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []recordedCall
	for _, call := range f.calls {
		if call.Method == method {
			matched = append(matched, call)
		}
	}
	return matched
}

func timePtr(value time.Time) *time.Time {
	return &value
}

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("invalid time %q: %v", value, err)
	}
	return parsed
}

func homeworkCard(id, name string, due *time.Time, pos float64) Card {
	return Card{ID: id, Name: name, Due: due, Pos: pos, Labels: []Label{{ID: "label-1", Name: DefaultTrackingLabel}}}
}
