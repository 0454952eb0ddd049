package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"olie/internal/events"
	"olie/internal/models"
)

const cardColumns = `id, board_id, title, description, status, position, priority, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(row rowScanner) (models.Card, error) {
	var c models.Card
	var priority string
	if err := row.Scan(&c.ID, &c.BoardID, &c.Title, &c.Description, &c.Status, &c.Position, &priority, &c.Version, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return models.Card{}, err
	}
	c.Priority = models.Priority(priority)
	return c, nil
}

// ListCards returns every card of a board ordered by position.
func (s *Store) ListCards(ctx context.Context, boardID int64) ([]models.Card, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE board_id = ? ORDER BY position, id`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := []models.Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// CreateCard appends a new card to the end of its column.
func (s *Store) CreateCard(ctx context.Context, c models.Card) (models.Card, error) {
	c.Title = strings.TrimSpace(c.Title)
	c.Status = strings.TrimSpace(c.Status)
	if c.Title == "" {
		return models.Card{}, fmt.Errorf("card title must not be empty: %w", ErrInvalid)
	}
	if c.Status == "" {
		return models.Card{}, fmt.Errorf("card status must not be empty: %w", ErrInvalid)
	}
	priority, err := models.ParsePriority(string(c.Priority))
	if err != nil {
		return models.Card{}, fmt.Errorf("%v: %w", err, ErrInvalid)
	}
	if _, err := s.GetBoard(ctx, c.BoardID); err != nil {
		return models.Card{}, err
	}

	pos, err := nextPosition(ctx, s.db, c.BoardID, c.Status)
	if err != nil {
		return models.Card{}, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO cards(board_id, title, description, status, position, priority) VALUES(?, ?, ?, ?, ?, ?)`,
		c.BoardID, c.Title, strings.TrimSpace(c.Description), c.Status, pos, string(priority))
	if err != nil {
		return models.Card{}, fmt.Errorf("insert card: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Card{}, fmt.Errorf("card id: %w", err)
	}

	created, err := s.GetCard(ctx, id)
	if err != nil {
		return models.Card{}, err
	}
	s.publish(events.Event{Table: events.TableCards, Op: events.OpInsert, BoardID: created.BoardID, RowID: created.ID, Row: created})
	return created, nil
}

// GetCard retrieves a card by id.
func (s *Store) GetCard(ctx context.Context, id int64) (models.Card, error) {
	c, err := scanCard(s.db.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Card{}, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("get card: %w", err)
	}
	return c, nil
}

// CardChanges is a partial card update. Nil fields are left untouched.
type CardChanges struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *models.Priority
	// ExpectedVersion guards the write when non-zero.
	ExpectedVersion int64
}

// UpdateCard applies changes to a card. A status change appends the card to the end of the
// new column. The read and the write share one transaction, and the write only lands on the
// version that was read.
func (s *Store) UpdateCard(ctx context.Context, id int64, changes CardChanges) (models.Card, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Card{}, fmt.Errorf("begin update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	current, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Card{}, fmt.Errorf("card %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("get card: %w", err)
	}
	if changes.ExpectedVersion != 0 && changes.ExpectedVersion != current.Version {
		return models.Card{}, fmt.Errorf("card %d at version %d, expected %d: %w", id, current.Version, changes.ExpectedVersion, ErrConflict)
	}

	title := current.Title
	description := current.Description
	status := current.Status
	position := current.Position
	priority := current.Priority

	if changes.Title != nil {
		if v := strings.TrimSpace(*changes.Title); v != "" {
			title = v
		}
	}
	if changes.Description != nil {
		description = strings.TrimSpace(*changes.Description)
	}
	if changes.Priority != nil {
		p, err := models.ParsePriority(string(*changes.Priority))
		if err != nil {
			return models.Card{}, fmt.Errorf("%v: %w", err, ErrInvalid)
		}
		priority = p
	}
	if changes.Status != nil {
		if v := strings.TrimSpace(*changes.Status); v != "" {
			status = v
		}
	}

	if status != current.Status {
		pos, err := nextPosition(ctx, tx, current.BoardID, status)
		if err != nil {
			return models.Card{}, err
		}
		position = pos
	}

	res, err := tx.ExecContext(ctx, `UPDATE cards SET title = ?, description = ?, status = ?, position = ?, priority = ?, version = version + 1 WHERE id = ? AND version = ?`,
		title, description, status, position, string(priority), id, current.Version)
	if err != nil {
		return models.Card{}, fmt.Errorf("update card: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Card{}, err
	}
	if affected == 0 {
		return models.Card{}, fmt.Errorf("card %d changed during update: %w", id, ErrConflict)
	}

	updated, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, id))
	if err != nil {
		return models.Card{}, fmt.Errorf("reload card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Card{}, fmt.Errorf("commit update: %w", err)
	}

	s.publish(events.Event{Table: events.TableCards, Op: events.OpUpdate, BoardID: updated.BoardID, RowID: updated.ID, Row: updated})
	return updated, nil
}

// MoveCard persists a card's column and position in a single transaction.
func (s *Store) MoveCard(ctx context.Context, req models.Placement) (models.Card, error) {
	status := strings.TrimSpace(req.Status)
	if status == "" {
		return models.Card{}, fmt.Errorf("card status must not be empty: %w", ErrInvalid)
	}
	if req.Position < 0 {
		return models.Card{}, fmt.Errorf("card position must not be negative: %w", ErrInvalid)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.Card{}, fmt.Errorf("begin move: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var boardID, version int64
	err = tx.QueryRowContext(ctx, `SELECT board_id, version FROM cards WHERE id = ?`, req.CardID).Scan(&boardID, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Card{}, fmt.Errorf("card %d: %w", req.CardID, ErrNotFound)
	}
	if err != nil {
		return models.Card{}, fmt.Errorf("load card: %w", err)
	}
	if req.ExpectedVersion != 0 && req.ExpectedVersion != version {
		return models.Card{}, fmt.Errorf("card %d at version %d, expected %d: %w", req.CardID, version, req.ExpectedVersion, ErrConflict)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE cards SET status = ?, position = ?, version = version + 1 WHERE id = ?`,
		status, req.Position, req.CardID); err != nil {
		return models.Card{}, fmt.Errorf("move card: %w", err)
	}

	for i, id := range req.Order {
		if id == req.CardID {
			continue
		}
		if _, err := tx.ExecContext(ctx, `UPDATE cards SET position = ? WHERE id = ? AND board_id = ? AND status = ?`,
			i, id, boardID, status); err != nil {
			return models.Card{}, fmt.Errorf("renumber card %d: %w", id, err)
		}
	}

	moved, err := scanCard(tx.QueryRowContext(ctx, `SELECT `+cardColumns+` FROM cards WHERE id = ?`, req.CardID))
	if err != nil {
		return models.Card{}, fmt.Errorf("reload card: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.Card{}, fmt.Errorf("commit move: %w", err)
	}

	s.publish(events.Event{Table: events.TableCards, Op: events.OpUpdate, BoardID: moved.BoardID, RowID: moved.ID, Row: moved})
	return moved, nil
}

// DeleteCard removes a card by id.
func (s *Store) DeleteCard(ctx context.Context, id int64) error {
	current, err := s.GetCard(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cards WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete card: %w", err)
	}
	s.publish(events.Event{Table: events.TableCards, Op: events.OpDelete, BoardID: current.BoardID, RowID: id})
	return nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func nextPosition(ctx context.Context, q queryRower, boardID int64, status string) (int64, error) {
	var position sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT MAX(position) FROM cards WHERE board_id = ? AND status = ?`, boardID, status).Scan(&position)
	if err != nil {
		return 0, fmt.Errorf("select position: %w", err)
	}
	if position.Valid {
		return position.Int64 + 1, nil
	}
	return 0, nil
}
