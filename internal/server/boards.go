package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type boardRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// handleListBoards returns all boards.
func (s *Server) handleListBoards(c *gin.Context) {
	boards, err := s.store.ListBoards(c.Request.Context())
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"boards": boards})
}

// handleCreateBoard creates a new board.
func (s *Server) handleCreateBoard(c *gin.Context) {
	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	b, err := s.store.CreateBoard(c.Request.Context(), req.Name, req.Color)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"board": b})
}

// handleUpdateBoard renames or recolors an existing board.
func (s *Server) handleUpdateBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req boardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, http.StatusBadRequest, err)
		return
	}

	b, err := s.store.UpdateBoard(c.Request.Context(), id, req.Name, req.Color)
	if err != nil {
		s.respondDomainError(c, err)
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{"board": b})
}

// handleDeleteBoard removes a board, its cards and its in-memory partition.
func (s *Server) handleDeleteBoard(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	if err := s.store.DeleteBoard(c.Request.Context(), id); err != nil {
		s.respondDomainError(c, err)
		return
	}
	s.boards.Forget(id)
	respondSuccess(c, http.StatusOK, gin.H{"status": "deleted"})
}
