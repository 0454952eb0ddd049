package models

import (
	"fmt"
	"strings"
	"time"
)

// Board groups the cards shown on one kanban surface.
type Board struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Card represents a single unit of work on a board.
type Card struct {
	ID          int64     `json:"id"`
	BoardID     int64     `json:"board_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	Position    int64     `json:"position"`
	Priority    Priority  `json:"priority"`
	Version     int64     `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Priority is the urgency attached to a card.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority normalizes a user supplied priority. Empty input yields PriorityNormal.
func ParsePriority(raw string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown priority %q", raw)
	}
}

// Placement asks the store to put a card in a column at a position.
type Placement struct {
	CardID   int64
	Status   string
	Position int64
	// ExpectedVersion guards the write when non-zero.
	ExpectedVersion int64
	// Order, when set, lists the destination column's card ids in their new order; their
	// positions are rewritten to match their index.
	Order []int64
}

// DefaultColumns is the column set used when none is configured.
var DefaultColumns = []string{"todo", "doing", "done"}
