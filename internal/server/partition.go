package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"olie/internal/board"
	"olie/internal/models"
	"olie/internal/snapshot"
)

// manager resolves the board in the path to its manager. It writes the error response and
// returns false when the board does not exist. A failed load is not an error here; the
// caller decides how to surface it.
func (s *Server) manager(c *gin.Context) (models.Board, *board.Manager, bool) {
	id, ok := parseID(c, "id")
	if !ok {
		return models.Board{}, nil, false
	}
	b, err := s.store.GetBoard(c.Request.Context(), id)
	if err != nil {
		s.respondDomainError(c, err)
		return models.Board{}, nil, false
	}
	m, _ := s.boards.Get(c.Request.Context(), id)
	return b, m, true
}

// partitionPayload renders the manager's columns. The latest load failure, if any, is
// reported next to the (empty) partition.
func partitionPayload(m *board.Manager) gin.H {
	payload := gin.H{"board": m.Snapshot()}
	if err := m.Err(); err != nil {
		payload["load_error"] = err.Error()
	}
	return payload
}

// handleGetPartition returns the board's cards grouped by column.
func (s *Server) handleGetPartition(c *gin.Context) {
	_, m, ok := s.manager(c)
	if !ok {
		return
	}
	respondSuccess(c, http.StatusOK, partitionPayload(m))
}

// handleReload rereads the board from the database.
func (s *Server) handleReload(c *gin.Context) {
	_, m, ok := s.manager(c)
	if !ok {
		return
	}
	if err := m.Load(c.Request.Context()); err != nil {
		s.respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, partitionPayload(m))
}

// handleDrop applies a drag-and-drop gesture. Conflicts carry the authoritative partition
// so the client can redraw.
func (s *Server) handleDrop(c *gin.Context) {
	_, m, ok := s.manager(c)
	if !ok {
		return
	}

	var ev board.DropEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := m.HandleDrop(c.Request.Context(), ev)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusConflict {
			s.logger.Warn("drop rejected",
				slog.String("request_id", c.GetString("request_id")),
				slog.Int64("board", m.BoardID()),
				slog.Int64("card", ev.CardID),
				slog.String("error", err.Error()))
			c.JSON(status, gin.H{"error": err.Error(), "board": m.Snapshot()})
			return
		}
		s.respondError(c, status, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"result": result, "board": m.Snapshot()})
}

// handleSnapshot exports the board's current partition to object storage.
func (s *Server) handleSnapshot(c *gin.Context) {
	if s.exporter == nil {
		s.respondDomainError(c, snapshot.ErrDisabled)
		return
	}
	b, m, ok := s.manager(c)
	if !ok {
		return
	}
	if err := m.Err(); err != nil {
		s.respondDomainError(c, errors.Join(errors.New("board not loaded"), err))
		return
	}

	key, err := s.exporter.Export(c.Request.Context(), b, m.Snapshot())
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"key": key})
}
