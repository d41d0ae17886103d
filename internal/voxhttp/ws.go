package voxhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	repos "github.com/voxpipe/voxpipe/internal/data/repos/pipeline"
	pipelinetypes "github.com/voxpipe/voxpipe/internal/domain/pipeline"
	"github.com/voxpipe/voxpipe/internal/platform/dbctx"
	"github.com/voxpipe/voxpipe/internal/platform/logger"
	"github.com/voxpipe/voxpipe/internal/progress/bus"
)

// inactivityTimeout matches spec.md §6's WS contract: close with 1001
// after 300s of silence from the client.
const inactivityTimeout = 300 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// WSHandler serves WS /ws: clients subscribe to a File's progress topic
// and receive pushed frames until the File completes, errors, or the
// connection goes quiet for inactivityTimeout. Grounded on the pack's own
// gorilla/websocket hub/client shape (read/write pump goroutines per
// connection), narrowed here to one connection subscribing to N topics
// on the shared Progress Bus rather than a broadcast-to-all hub.
type WSHandler struct {
	log   *logger.Logger
	bus   *bus.Bus
	files repos.FileRepo
}

func NewWSHandler(baseLog *logger.Logger, progressBus *bus.Bus, files repos.FileRepo) *WSHandler {
	return &WSHandler{log: baseLog.With("component", "WSHandler"), bus: progressBus, files: files}
}

func (h *WSHandler) Serve(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	sink := bus.NewSink()
	defer h.bus.Unsubscribe(sink)

	done := make(chan struct{})
	go h.writePump(conn, sink, done)
	h.readPump(c.Request.Context(), conn, sink, done)
}

func (h *WSHandler) readPump(ctx context.Context, conn *websocket.Conn, sink *bus.Sink, done chan struct{}) {
	defer close(done)
	conn.SetReadDeadline(time.Now().Add(inactivityTimeout))

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(inactivityTimeout))

		var msg wsSubscribeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch {
		case msg.Type == "ping":
			continue
		case msg.FileID != nil:
			// Subscribe first, then send the current snapshot (spec.md
			// §4.5) so no progress frame published in between is missed.
			h.bus.Subscribe(*msg.FileID, sink)
			h.sendSnapshot(ctx, sink, *msg.FileID)
		}
	}
}

// sendSnapshot queues the current Store snapshot onto the same sink the
// write pump drains, rather than writing to the connection directly —
// gorilla/websocket connections are not safe for concurrent writers, and
// the write pump goroutine already owns all writes to conn.
func (h *WSHandler) sendSnapshot(ctx context.Context, sink *bus.Sink, fileID uuid.UUID) {
	f, err := h.files.GetByID(dbctx.Context{Ctx: ctx}, fileID)
	if err != nil || f == nil {
		return
	}
	frame := bus.Frame{
		FileID:    f.ID,
		Status:    f.Status,
		Stage:     f.Stage,
		Progress:  f.Progress,
		StageName: pipelinetypes.StageName(f.Stage),
		Error:     f.ErrorMessage,
	}
	select {
	case sink.Outbound <- frame:
	default:
	}
}

func (h *WSHandler) writePump(conn *websocket.Conn, sink *bus.Sink, done chan struct{}) {
	for {
		select {
		case <-done:
			conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(1001, "inactive"), time.Now().Add(5*time.Second))
			return
		case frame, ok := <-sink.Outbound:
			if !ok {
				return
			}
			msgType := "progress"
			switch {
			case frame.Status == pipelinetypes.StatusDone:
				msgType = "complete"
			case frame.Status == pipelinetypes.StatusFailed:
				msgType = "error"
			}
			payload := wsPushMessage{
				Type:      msgType,
				FileID:    frame.FileID.String(),
				Status:    frame.Status,
				Progress:  frame.Progress,
				Stage:     frame.Stage,
				StageName: frame.StageName,
				Error:     frame.Error,
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}
