package board

import (
	"context"
	"fmt"

	"olie/internal/models"
)

// Location addresses a slot on the board.
type Location struct {
	Column string `json:"column"`
	Index  int    `json:"index"`
}

// DropEvent is what the drag surface reports when a gesture ends. A nil Destination means
// the card was dropped outside any column.
type DropEvent struct {
	CardID      int64     `json:"card_id"`
	Source      Location  `json:"source"`
	Destination *Location `json:"destination"`
}

// MoveResult tells the caller what HandleDrop did.
type MoveResult struct {
	Moved  bool        `json:"moved"`
	Reason string      `json:"reason,omitempty"`
	Card   models.Card `json:"card"`
}

const (
	reasonCancelled = "cancelled"
	reasonUnchanged = "unchanged"
)

// HandleDrop turns a drop event into a Move. Cancelled drops and drops back onto the
// source slot are ignored without touching the store. A source that no longer matches the
// board yields ErrStaleDrop.
func (m *Manager) HandleDrop(ctx context.Context, ev DropEvent) (MoveResult, error) {
	if ev.Destination == nil {
		return MoveResult{Reason: reasonCancelled}, nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	col, idx, ok := m.locate(ev.CardID)
	var current models.Card
	if ok {
		current = m.columns[col][idx]
	}
	m.mu.RUnlock()

	if !ok {
		return MoveResult{}, fmt.Errorf("card %d: %w", ev.CardID, ErrCardNotFound)
	}
	if col != ev.Source.Column || idx != ev.Source.Index {
		return MoveResult{}, fmt.Errorf("card %d is at %s[%d], event says %s[%d]: %w",
			ev.CardID, col, idx, ev.Source.Column, ev.Source.Index, ErrStaleDrop)
	}
	if *ev.Destination == ev.Source {
		return MoveResult{Reason: reasonUnchanged, Card: current}, nil
	}

	card, err := m.move(ctx, ev.CardID, ev.Destination.Column, ev.Destination.Index)
	if err != nil {
		return MoveResult{}, err
	}
	return MoveResult{Moved: true, Card: card}, nil
}
