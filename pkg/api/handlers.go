package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/gin-gonic/gin"

	"github.com/deepresearch-labs/agent/pkg/events"
	"github.com/deepresearch-labs/agent/pkg/report"
	"github.com/deepresearch-labs/agent/pkg/state"
)

type createSessionRequest struct {
	Query        string  `json:"query" binding:"required"`
	Budget       float64 `json:"budget"`
	OutputFormat string  `json:"output_format"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.OutputFormat != "" && req.OutputFormat != "md" && req.OutputFormat != "pdf" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "output_format must be md or pdf"})
		return
	}

	sess, err := s.sessions.Create(c.Request.Context(), req.Query, req.Budget, req.OutputFormat)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, sess)
}

func (s *Server) handleListSessions(c *gin.Context) {
	sessions, err := s.sessions.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

func (s *Server) handleCancelSession(c *gin.Context) {
	if err := s.sessions.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleGetReport returns the session's final report, rendered as a PDF
// when the session (or an explicit ?format= override) asks for one.
func (s *Server) handleGetReport(c *gin.Context) {
	sess, err := s.sessions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if sess.Status != state.StatusCompleted {
		c.JSON(http.StatusConflict, gin.H{"error": "report not ready: session is " + string(sess.Status)})
		return
	}

	format := sess.OutputFormat
	if q := c.Query("format"); q != "" {
		format = q
	}

	if format == "pdf" {
		pdf, err := report.RenderPDF(sess.Query, sess.FinalReport)
		if err != nil {
			writeError(c, fmt.Errorf("render pdf: %w", err))
			return
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, sess.ID))
		c.Data(http.StatusOK, "application/pdf", pdf)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.md"`, sess.ID))
	c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(sess.FinalReport))
}

// handleSessionEvents streams a session's event log as Server-Sent Events,
// replaying from the client's Last-Event-ID header so a reconnecting
// client doesn't miss anything the ring buffer/durable log still has.
func (s *Server) handleSessionEvents(c *gin.Context) {
	sessionID := c.Param("id")
	lastEventID := parseLastEventID(c.GetHeader("Last-Event-ID"))

	backlog, live, unsubscribe, err := s.bus.Subscribe(sessionID, lastEventID)
	if err != nil {
		writeError(c, err)
		return
	}
	defer unsubscribe()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	for _, ev := range backlog {
		writeSSE(w, ev)
	}
	flusher.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev events.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
}

func parseLastEventID(raw string) uint64 {
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// handleWebSocket upgrades the connection and hands it off to the event
// bus's own connection driver, which owns replay/ping/catchup handling.
func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedWSOrigins,
	})
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			writeError(c, fmt.Errorf("websocket upgrade: %w", err))
		}
		return
	}
	events.HandleConnection(c.Request.Context(), s.bus, c.Param("id"), conn)
}
