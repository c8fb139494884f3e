package board

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/adlio/trello"
	"go.uber.org/zap"
)

const defaultBoardTimeout = 15 * time.Second

// ErrInvalidTrelloConfig indicates missing credentials.
var ErrInvalidTrelloConfig = errors.New("board: invalid trello config")

// Client is the task-board service. Both the reconciler and the sorter share one handle.
type Client interface {
	ListsOnBoard(ctx context.Context, boardID, filter string) ([]List, error)
	CardsOnList(ctx context.Context, listID string) ([]Card, error)
	AddCard(ctx context.Context, name, description, listID string) (Card, error)
	UpdateCard(ctx context.Context, cardID, field, value string) error
	AddLabelToCard(ctx context.Context, cardID, labelID string) error
	AddDueDateToCard(ctx context.Context, cardID string, due time.Time) error
	SetCardPosition(ctx context.Context, cardID string, pos float64) error
	SetListPosition(ctx context.Context, listID string, pos float64) error
}

// TrelloConfig configures a TrelloClient. BaseURL includes the API version, e.g. https://api.trello.com/1.
type TrelloConfig struct {
	BaseURL    string
	Key        string
	Token      string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// TrelloClient implements Client on top of the Trello SDK.
type TrelloClient struct {
	api    *trello.Client
	logger *zap.Logger
}

// NewTrelloClient validates cfg and returns a TrelloClient.
func NewTrelloClient(cfg TrelloConfig) (*TrelloClient, error) {
	key := strings.TrimSpace(cfg.Key)
	token := strings.TrimSpace(cfg.Token)
	if key == "" || token == "" {
		return nil, fmt.Errorf("%w: key and token are required", ErrInvalidTrelloConfig)
	}

	api := trello.NewClient(key, token)
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		api.BaseURL = baseURL
	}
	api.Client = cfg.HTTPClient
	if api.Client == nil {
		api.Client = &http.Client{Timeout: defaultBoardTimeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TrelloClient{api: api, logger: logger}, nil
}

// ListsOnBoard returns the board's lists matching filter ("open", "closed", "all").
func (c *TrelloClient) ListsOnBoard(ctx context.Context, boardID string, filter string) ([]List, error) {
	args := trello.Defaults()
	if filter != "" {
		args["filter"] = filter
	}
	var lists []List
	if err := c.api.WithContext(ctx).Get("boards/"+boardID+"/lists", args, &lists); err != nil {
		return nil, fmt.Errorf("board: lists on board %s: %w", boardID, err)
	}
	return lists, nil
}

// CardsOnList returns the open cards of a list.
func (c *TrelloClient) CardsOnList(ctx context.Context, listID string) ([]Card, error) {
	var cards []Card
	if err := c.api.WithContext(ctx).Get("lists/"+listID+"/cards", trello.Defaults(), &cards); err != nil {
		return nil, fmt.Errorf("board: cards on list %s: %w", listID, err)
	}
	return cards, nil
}

// AddCard creates a card at the bottom of a list.
func (c *TrelloClient) AddCard(ctx context.Context, name, description, listID string) (Card, error) {
	args := trello.Arguments{
		"name":   name,
		"desc":   description,
		"idList": listID,
		"pos":    "bottom",
	}
	var created trello.Card
	if err := c.api.WithContext(ctx).Post("cards", args, &created); err != nil {
		return Card{}, fmt.Errorf("board: add card %q: %w", name, err)
	}
	c.logger.Debug("card created", zap.String("card_id", created.ID), zap.String("list_id", listID))
	return cardFromTrello(created), nil
}

// UpdateCard sets a single card field.
func (c *TrelloClient) UpdateCard(ctx context.Context, cardID, field, value string) error {
	var updated trello.Card
	if err := c.api.WithContext(ctx).Put("cards/"+cardID, trello.Arguments{field: value}, &updated); err != nil {
		return fmt.Errorf("board: update card %s %s: %w", cardID, field, err)
	}
	return nil
}

// AddLabelToCard attaches an existing board label.
func (c *TrelloClient) AddLabelToCard(ctx context.Context, cardID, labelID string) error {
	var labelIDs []string
	if err := c.api.WithContext(ctx).Post("cards/"+cardID+"/idLabels", trello.Arguments{"value": labelID}, &labelIDs); err != nil {
		return fmt.Errorf("board: add label to card %s: %w", cardID, err)
	}
	return nil
}

// AddDueDateToCard sets the card's due date.
func (c *TrelloClient) AddDueDateToCard(ctx context.Context, cardID string, due time.Time) error {
	return c.UpdateCard(ctx, cardID, FieldDue, FormatDue(due))
}

// SetCardPosition moves a card within its list.
func (c *TrelloClient) SetCardPosition(ctx context.Context, cardID string, pos float64) error {
	return c.UpdateCard(ctx, cardID, FieldPos, FormatPos(pos))
}

// SetListPosition moves a list on its board.
func (c *TrelloClient) SetListPosition(ctx context.Context, listID string, pos float64) error {
	var updated List
	if err := c.api.WithContext(ctx).Put("lists/"+listID+"/pos", trello.Arguments{"value": FormatPos(pos)}, &updated); err != nil {
		return fmt.Errorf("board: set list position %s: %w", listID, err)
	}
	return nil
}

// FormatDue renders a due date the way the board service stores it.
func FormatDue(due time.Time) string {
	return due.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FormatPos renders a position value without losing precision.
func FormatPos(pos float64) string {
	return strconv.FormatFloat(pos, 'f', -1, 64)
}

func cardFromTrello(card trello.Card) Card {
	labels := make([]Label, 0, len(card.Labels))
	for _, label := range card.Labels {
		if label == nil {
			continue
		}
		labels = append(labels, Label{ID: label.ID, Name: label.Name})
	}
	return Card{
		ID:          card.ID,
		Name:        card.Name,
		ListID:      card.IDList,
		Labels:      labels,
		Due:         card.Due,
		DueComplete: card.DueComplete,
		Closed:      card.Closed,
		Pos:         float64(card.Pos),
	}
}
