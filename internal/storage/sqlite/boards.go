package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"

	"olie/internal/events"
	"olie/internal/models"
)

var colorPattern = regexp.MustCompile("^#[0-9a-fA-F]{6}$")

// ListBoards retrieves all boards ordered by creation date.
func (s *Store) ListBoards(ctx context.Context) ([]models.Board, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, color, created_at, updated_at FROM boards ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := []models.Board{}
	for rows.Next() {
		var b models.Board
		if err := rows.Scan(&b.ID, &b.Name, &b.Color, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

// CreateBoard persists a new board with optional color.
func (s *Store) CreateBoard(ctx context.Context, name, color string) (models.Board, error) {
	name, color, err := normalizeBoard(name, color)
	if err != nil {
		return models.Board{}, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO boards(name, color) VALUES(?, ?)`, name, color)
	if err != nil {
		return models.Board{}, fmt.Errorf("insert board: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.Board{}, fmt.Errorf("board id: %w", err)
	}

	b, err := s.GetBoard(ctx, id)
	if err != nil {
		return models.Board{}, err
	}
	s.publish(events.Event{Table: events.TableBoards, Op: events.OpInsert, BoardID: b.ID, RowID: b.ID, Row: b})
	return b, nil
}

// GetBoard fetches a single board by id.
func (s *Store) GetBoard(ctx context.Context, id int64) (models.Board, error) {
	var b models.Board
	err := s.db.QueryRowContext(ctx, `SELECT id, name, color, created_at, updated_at FROM boards WHERE id = ?`, id).
		Scan(&b.ID, &b.Name, &b.Color, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Board{}, fmt.Errorf("board %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return models.Board{}, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

// UpdateBoard renames a board and optionally changes its color.
func (s *Store) UpdateBoard(ctx context.Context, id int64, name, color string) (models.Board, error) {
	name, color, err := normalizeBoard(name, color)
	if err != nil {
		return models.Board{}, err
	}

	res, err := s.db.ExecContext(ctx, `UPDATE boards SET name = ?, color = ? WHERE id = ?`, name, color, id)
	if err != nil {
		return models.Board{}, fmt.Errorf("update board: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return models.Board{}, err
	}
	if affected == 0 {
		return models.Board{}, fmt.Errorf("board %d: %w", id, ErrNotFound)
	}

	b, err := s.GetBoard(ctx, id)
	if err != nil {
		return models.Board{}, err
	}
	s.publish(events.Event{Table: events.TableBoards, Op: events.OpUpdate, BoardID: b.ID, RowID: b.ID, Row: b})
	return b, nil
}

// DeleteBoard removes a board along with its cards.
func (s *Store) DeleteBoard(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete board: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("board %d: %w", id, ErrNotFound)
	}
	s.publish(events.Event{Table: events.TableBoards, Op: events.OpDelete, BoardID: id, RowID: id})
	return nil
}

func normalizeBoard(name, color string) (string, string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", "", fmt.Errorf("board name must not be empty: %w", ErrInvalid)
	}
	if color == "" {
		color = randomPaletteColor()
	}
	if !colorPattern.MatchString(color) {
		return "", "", fmt.Errorf("board color %q must look like #rrggbb: %w", color, ErrInvalid)
	}
	return name, color, nil
}

func randomPaletteColor() string {
	palette := []string{
		"#2563eb", // blue-600
		"#7c3aed", // violet-600
		"#dc2626", // red-600
		"#059669", // green-600
		"#ea580c", // orange-600
		"#d97706", // amber-600
		"#0ea5e9", // sky-500
	}
	return palette[rand.Intn(len(palette))]
}
