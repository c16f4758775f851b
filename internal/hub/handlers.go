package hub

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/gin-gonic/gin"
)

func (s *Server) handleList(c *gin.Context) {
	// Read before the snapshot so the snapshot covers at least this much.
	seq := s.hub.Seq()
	records, err := s.todos.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	if records == nil {
		records = []domain.Record{}
	}
	setSeq(c, seq)
	c.JSON(http.StatusOK, records)
}

func (s *Server) handleGet(c *gin.Context) {
	rec, err := s.todos.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleUpsert(c *gin.Context) {
	var records []domain.Record
	if err := c.ShouldBindJSON(&records); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be a JSON array of records: " + err.Error()})
		return
	}
	cs, err := s.todos.Upsert(c.Request.Context(), records)
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeChange(c, cs)
}

func (s *Server) handleDelete(c *gin.Context) {
	cs, err := s.todos.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	s.writeChange(c, cs)
}

// action adapts a single-id TodoService command to a handler.
func (s *Server) action(fn func(ctx context.Context, id string) (domain.ChangeSet, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		cs, err := fn(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		s.writeChange(c, cs)
	}
}

// writeChange answers a command. The service publishes before it returns,
// so the current sequence number is at or past the command's own change.
func (s *Server) writeChange(c *gin.Context, cs domain.ChangeSet) {
	setSeq(c, s.hub.Seq())
	c.JSON(http.StatusOK, cs)
}

func setSeq(c *gin.Context, seq uint64) {
	c.Header(SeqHeader, strconv.FormatUint(seq, 10))
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedRecord):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
