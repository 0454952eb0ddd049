package board

import "olie/internal/models"

// Partition is a point-in-time copy of a board's columns.
type Partition struct {
	BoardID int64    `json:"board_id"`
	Loading bool     `json:"loading"`
	Columns []Column `json:"columns"`
}

// Column is one ordered bucket of cards.
type Column struct {
	ID    string        `json:"id"`
	Cards []models.Card `json:"cards"`
}

// Column returns the cards of col, or nil when the board has no such column.
func (p Partition) Column(col string) []models.Card {
	for _, c := range p.Columns {
		if c.ID == col {
			return c.Cards
		}
	}
	return nil
}

// Cards flattens the partition in column order.
func (p Partition) Cards() []models.Card {
	var cards []models.Card
	for _, c := range p.Columns {
		cards = append(cards, c.Cards...)
	}
	return cards
}

// Len counts the cards on the board.
func (p Partition) Len() int {
	n := 0
	for _, c := range p.Columns {
		n += len(c.Cards)
	}
	return n
}
