package filter

import (
	"time"

	"olie/internal/models"
)

// CardCriteria is the card list search form. Zero fields are ignored.
type CardCriteria struct {
	Query       string
	Status      string
	Priority    models.Priority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// Empty reports whether no criterion is set.
func (c CardCriteria) Empty() bool {
	return c == CardCriteria{}
}

// Cards filters cards by c. Query matches title or description.
func Cards(cards []models.Card, c CardCriteria) []models.Card {
	return Apply(cards,
		Contains(c.Query,
			func(card models.Card) string { return card.Title },
			func(card models.Card) string { return card.Description },
		),
		Equals(c.Status, func(card models.Card) string { return card.Status }),
		Equals(c.Priority, func(card models.Card) models.Priority { return card.Priority }),
		DayRange(c.CreatedFrom, c.CreatedTo, func(card models.Card) time.Time { return card.CreatedAt }),
	)
}
