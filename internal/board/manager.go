// Package board keeps an in-memory partition of a board's cards by column and applies
// drag-and-drop moves optimistically before persisting them.
package board

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"olie/internal/models"
)

var (
	ErrCardNotFound    = errors.New("card not on board")
	ErrUnknownColumn   = errors.New("unknown column")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrUnmatchedStatus = errors.New("card status matches no column")
	// ErrMoveReverted means the optimistic change could not be persisted and the board was
	// reloaded from the store.
	ErrMoveReverted = errors.New("move reverted")
	// ErrStaleDrop means a drop event's source no longer matches the board.
	ErrStaleDrop = errors.New("stale drop event")
)

const reloadTimeout = 10 * time.Second

// Backend is the authoritative row store behind a Manager.
type Backend interface {
	ListCards(ctx context.Context, boardID int64) ([]models.Card, error)
	MoveCard(ctx context.Context, req models.Placement) (models.Card, error)
}

// Manager owns the card partition of one board.
//
// Loads and moves are serialized by writeMu. Readers only take mu, so they observe the
// optimistic state while a move's store write is in flight.
type Manager struct {
	boardID int64
	backend Backend
	opts    Options
	logger  *slog.Logger

	writeMu sync.Mutex

	mu      sync.RWMutex
	order   []string
	columns map[string][]models.Card
	loading bool
	loaded  bool
	loadErr error
}

// NewManager builds an empty manager; call Load to populate it.
func NewManager(boardID int64, backend Backend, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.OnUnmatchedStatus == "" {
		opts.OnUnmatchedStatus = UnmatchedDrop
	}
	opts.Columns = slices.Clone(opts.Columns)

	m := &Manager{
		boardID: boardID,
		backend: backend,
		opts:    opts,
		logger:  logger.With(slog.Int64("board", boardID)),
	}
	m.order, m.columns = m.emptyPartition()
	return m
}

// BoardID returns the board this manager serves.
func (m *Manager) BoardID() int64 {
	return m.boardID
}

// Load replaces the partition with the store's current cards. On failure the board is left
// empty and the error is returned.
func (m *Manager) Load(ctx context.Context) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.load(ctx)
}

func (m *Manager) load(ctx context.Context) error {
	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()

	cards, err := m.backend.ListCards(ctx, m.boardID)
	if err != nil {
		m.logger.Error("load board failed", slog.String("error", err.Error()))
		err = fmt.Errorf("load board %d: %w", m.boardID, err)
		m.reset(err)
		return err
	}

	order, columns, err := m.partition(cards)
	if err != nil {
		m.logger.Error("partition board failed", slog.String("error", err.Error()))
		err = fmt.Errorf("load board %d: %w", m.boardID, err)
		m.reset(err)
		return err
	}

	m.mu.Lock()
	m.order, m.columns = order, columns
	m.loading = false
	m.loaded = true
	m.loadErr = nil
	m.mu.Unlock()

	m.logger.Debug("board loaded", slog.Int("cards", len(cards)))
	return nil
}

func (m *Manager) reset(cause error) {
	order, columns := m.emptyPartition()
	m.mu.Lock()
	m.order, m.columns = order, columns
	m.loading = false
	m.loaded = true
	m.loadErr = cause
	m.mu.Unlock()
}

func (m *Manager) emptyPartition() ([]string, map[string][]models.Card) {
	order := slices.Clone(m.opts.Columns)
	if m.opts.OnUnmatchedStatus == UnmatchedBucket {
		order = append(order, UnmatchedColumn)
	}
	columns := make(map[string][]models.Card, len(order))
	for _, col := range order {
		columns[col] = []models.Card{}
	}
	return order, columns
}

func (m *Manager) partition(cards []models.Card) ([]string, map[string][]models.Card, error) {
	order, columns := m.emptyPartition()
	dropped := 0
	for _, card := range cards {
		if m.opts.HasColumn(card.Status) {
			columns[card.Status] = append(columns[card.Status], card)
			continue
		}
		switch m.opts.OnUnmatchedStatus {
		case UnmatchedBucket:
			columns[UnmatchedColumn] = append(columns[UnmatchedColumn], card)
		case UnmatchedError:
			return nil, nil, fmt.Errorf("card %d has status %q: %w", card.ID, card.Status, ErrUnmatchedStatus)
		default:
			dropped++
			m.logger.Debug("card dropped from board", slog.Int64("card", card.ID), slog.String("status", card.Status))
		}
	}
	if dropped > 0 {
		m.logger.Info("cards with unknown status hidden", slog.Int("count", dropped))
	}
	return order, columns, nil
}

// Move relocates a card to index of column. The partition is updated before the store
// write; if the write fails the board is reloaded and the error wraps ErrMoveReverted.
func (m *Manager) Move(ctx context.Context, cardID int64, column string, index int) (models.Card, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.move(ctx, cardID, column, index)
}

func (m *Manager) move(ctx context.Context, cardID int64, column string, index int) (models.Card, error) {
	m.mu.Lock()
	srcCol, srcIdx, ok := m.locate(cardID)
	if !ok {
		m.mu.Unlock()
		return models.Card{}, fmt.Errorf("card %d: %w", cardID, ErrCardNotFound)
	}
	if !m.opts.HasColumn(column) {
		m.mu.Unlock()
		return models.Card{}, fmt.Errorf("column %q: %w", column, ErrUnknownColumn)
	}
	limit := len(m.columns[column])
	if column == srcCol {
		limit--
	}
	if index < 0 || index > limit {
		m.mu.Unlock()
		return models.Card{}, fmt.Errorf("index %d not in [0, %d]: %w", index, limit, ErrIndexOutOfRange)
	}

	card := m.columns[srcCol][srcIdx]
	moved := card
	moved.Status = column
	m.columns[srcCol] = slices.Delete(m.columns[srcCol], srcIdx, srcIdx+1)
	m.columns[column] = slices.Insert(m.columns[column], index, moved)

	req := models.Placement{
		CardID:          cardID,
		Status:          column,
		Position:        int64(index),
		ExpectedVersion: card.Version,
	}
	if m.opts.RenumberOnMove {
		req.Order = cardIDs(m.columns[column])
	}
	m.mu.Unlock()

	stored, err := m.backend.MoveCard(ctx, req)
	if err != nil {
		m.logger.Warn("move not persisted; reloading board",
			slog.Int64("card", cardID), slog.String("column", column), slog.Int("index", index),
			slog.String("error", err.Error()))

		reloadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reloadTimeout)
		defer cancel()
		moveErr := fmt.Errorf("move card %d: %w: %w", cardID, ErrMoveReverted, err)
		if loadErr := m.load(reloadCtx); loadErr != nil {
			return models.Card{}, errors.Join(moveErr, loadErr)
		}
		return models.Card{}, moveErr
	}

	m.mu.Lock()
	cards := m.columns[column]
	for i := range cards {
		if cards[i].ID == cardID {
			cards[i] = stored
		}
		if m.opts.RenumberOnMove {
			cards[i].Position = int64(i)
		}
	}
	m.mu.Unlock()

	m.logger.Debug("card moved", slog.Int64("card", cardID), slog.String("from", srcCol), slog.String("to", column), slog.Int("index", index))
	return stored, nil
}

// locate must be called with mu held.
func (m *Manager) locate(cardID int64) (string, int, bool) {
	for _, col := range m.order {
		for i, c := range m.columns[col] {
			if c.ID == cardID {
				return col, i, true
			}
		}
	}
	return "", 0, false
}

func cardIDs(cards []models.Card) []int64 {
	ids := make([]int64, len(cards))
	for i, c := range cards {
		ids[i] = c.ID
	}
	return ids
}

// Locate returns the column and index currently holding cardID.
func (m *Manager) Locate(cardID int64) (Location, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, idx, ok := m.locate(cardID)
	return Location{Column: col, Index: idx}, ok
}

// Card returns the local copy of a card.
func (m *Manager) Card(cardID int64) (models.Card, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	col, idx, ok := m.locate(cardID)
	if !ok {
		return models.Card{}, false
	}
	return m.columns[col][idx], true
}

// Columns lists the column identifiers in display order, including the unmatched bucket
// when enabled.
func (m *Manager) Columns() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Loading reports whether a load is in progress.
func (m *Manager) Loading() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loading
}

// Loaded reports whether at least one load has completed, successfully or not.
func (m *Manager) Loaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}

// Err returns the error of the latest load, nil when it succeeded.
func (m *Manager) Err() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loadErr
}

// Snapshot returns a deep copy of the partition.
func (m *Manager) Snapshot() Partition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p := Partition{
		BoardID: m.boardID,
		Loading: m.loading,
		Columns: make([]Column, 0, len(m.order)),
	}
	for _, col := range m.order {
		p.Columns = append(p.Columns, Column{ID: col, Cards: slices.Clone(m.columns[col])})
	}
	return p
}
