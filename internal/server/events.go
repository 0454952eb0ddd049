package server

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"olie/internal/events"
)

const (
	streamBuffer    = 32
	streamKeepAlive = 25 * time.Second
)

// handleEvents streams committed row changes as server-sent events. The optional table
// and board query parameters narrow the stream.
func (s *Server) handleEvents(c *gin.Context) {
	if s.hub == nil {
		s.respondError(c, http.StatusServiceUnavailable, fmt.Errorf("event stream disabled"))
		return
	}

	table := c.Query("table")
	switch table {
	case "", events.TableBoards, events.TableCards:
	default:
		s.respondError(c, http.StatusBadRequest, fmt.Errorf("unknown table %q", table))
		return
	}
	var f events.Filter
	if raw := c.Query("board"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.respondError(c, http.StatusBadRequest, fmt.Errorf("invalid board %q", raw))
			return
		}
		f = events.ForBoard(id)
	}

	ch := make(chan events.Event, streamBuffer)
	sub := s.hub.Subscribe(table, f, func(e events.Event) {
		select {
		case ch <- e:
		default:
			s.logger.Warn("event stream client too slow; event dropped",
				slog.String("request_id", c.GetString("request_id")), slog.String("event", e.ID))
		}
	})
	defer sub.Unsubscribe()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"subscription": sub.ID})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case e := <-ch:
			c.SSEvent(string(e.Op), e)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
