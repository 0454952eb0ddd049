package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"olie/internal/board"
	"olie/internal/filter"
	"olie/internal/models"
	"olie/internal/storage/sqlite"
)

type cardRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	Version     int64   `json:"version"`
}

// handleListCards returns a board's cards narrowed by the q, status, priority, from and to
// query parameters.
func (s *Server) handleListCards(c *gin.Context) {
	boardID, ok := parseID(c, "id")
	if !ok {
		return
	}
	criteria, err := cardCriteria(c)
	if err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if _, err := s.store.GetBoard(c.Request.Context(), boardID); err != nil {
		s.respondDomainError(c, err)
		return
	}

	cards, err := s.store.ListCards(c.Request.Context(), boardID)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"cards": filter.Cards(cards, criteria)})
}

func cardCriteria(c *gin.Context) (filter.CardCriteria, error) {
	criteria := filter.CardCriteria{
		Query:  c.Query("q"),
		Status: strings.TrimSpace(c.Query("status")),
	}
	if raw := strings.TrimSpace(c.Query("priority")); raw != "" {
		p, err := models.ParsePriority(raw)
		if err != nil {
			return filter.CardCriteria{}, err
		}
		criteria.Priority = p
	}

	var err error
	if criteria.CreatedFrom, err = filter.ParseDay(c.Query("from")); err != nil {
		return filter.CardCriteria{}, fmt.Errorf("invalid from date: %w", err)
	}
	if criteria.CreatedTo, err = filter.ParseDay(c.Query("to")); err != nil {
		return filter.CardCriteria{}, fmt.Errorf("invalid to date: %w", err)
	}
	return criteria, nil
}

// handleCreateCard appends a new card to a column, the first column by default.
func (s *Server) handleCreateCard(c *gin.Context) {
	boardID, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("title is required"))
		return
	}

	opts := s.boards.Options()
	status := opts.Columns[0]
	if v := strings.TrimSpace(getString(req.Status)); v != "" {
		status = v
	}
	if err := checkColumn(opts, status); err != nil {
		s.respondDomainError(c, err)
		return
	}

	card, err := s.store.CreateCard(c.Request.Context(), models.Card{
		BoardID:     boardID,
		Title:       *req.Title,
		Description: getString(req.Description),
		Status:      status,
		Priority:    models.Priority(getString(req.Priority)),
	})
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	s.invalidate(c.Request.Context(), boardID)
	respondSuccess(c, http.StatusCreated, gin.H{"card": card})
}

// handleUpdateCard edits card fields. A new status appends the card to that column. A
// non-zero version must match the stored card.
func (s *Server) handleUpdateCard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req cardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	changes := sqlite.CardChanges{
		Title:           req.Title,
		Description:     req.Description,
		ExpectedVersion: req.Version,
	}
	// A blank status leaves the card where it is.
	if req.Status != nil && strings.TrimSpace(*req.Status) != "" {
		if err := checkColumn(s.boards.Options(), strings.TrimSpace(*req.Status)); err != nil {
			s.respondDomainError(c, err)
			return
		}
		changes.Status = req.Status
	}
	if req.Priority != nil {
		p := models.Priority(*req.Priority)
		changes.Priority = &p
	}

	card, err := s.store.UpdateCard(c.Request.Context(), id, changes)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	s.invalidate(c.Request.Context(), card.BoardID)
	respondSuccess(c, http.StatusOK, gin.H{"card": card})
}

// handleDeleteCard removes a card completely.
func (s *Server) handleDeleteCard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	card, err := s.store.GetCard(c.Request.Context(), id)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	if err := s.store.DeleteCard(c.Request.Context(), id); err != nil {
		s.respondDomainError(c, err)
		return
	}
	s.invalidate(c.Request.Context(), card.BoardID)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}

func checkColumn(opts board.Options, status string) error {
	if !opts.HasColumn(status) {
		return fmt.Errorf("column %q: %w", status, board.ErrUnknownColumn)
	}
	return nil
}

// invalidate reloads a board's partition after a card write that bypassed its manager.
// The write already succeeded, so a failed reload is only logged.
func (s *Server) invalidate(ctx context.Context, boardID int64) {
	if err := s.boards.Invalidate(ctx, boardID); err != nil {
		s.logger.Error("reload board after card write failed",
			slog.Int64("board", boardID), slog.String("error", err.Error()))
	}
}

func getString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
