package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roseram/previewd/internal/preview"
	"github.com/roseram/previewd/internal/types"
)

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// statusFrame is one message on the status stream.
type statusFrame struct {
	Type   string          `json:"type"`
	Status *preview.Status `json:"status"`
}

// handleStatusStream pushes status transitions for one project over a
// websocket. Frames are sent on every change and the stream closes after
// a terminal status, so a UI can subscribe instead of polling the REST
// endpoint.
func (s *Server) handleStatusStream(c *gin.Context) {
	projectID := c.Param("projectID")

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("project_id", projectID).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Reads are only used to detect the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	pinger := time.NewTicker(wsPingInterval)
	defer pinger.Stop()

	var lastStatus types.PreviewStatus
	send := func() (stop bool) {
		st, err := s.previews.GetPreviewStatus(c.Request.Context(), projectID)
		if err != nil {
			s.log.Warn().Err(err).Str("project_id", projectID).Msg("status read failed on stream")
			return false
		}
		if st.Status == lastStatus {
			return false
		}
		lastStatus = st.Status

		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(statusFrame{Type: "status", Status: st}); err != nil {
			return true
		}
		return st.Status.IsTerminal()
	}

	if send() {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case <-pinger.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ticker.C:
			if send() {
				return
			}
		}
	}
}
