package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"family-planner/internal/syncqueue"
)

// SyncController exposes the sync queue's state and maintenance actions.
type SyncController struct {
	Queue *syncqueue.Queue

	// StreamInterval is how often the websocket stream checks for changes.
	StreamInterval time.Duration
	OriginPatterns []string

	logger *log.Logger
}

func NewSyncController(queue *syncqueue.Queue, logger *log.Logger) *SyncController {
	if logger == nil {
		logger = log.New(os.Stdout, "[api] ", log.LstdFlags)
	}
	return &SyncController{Queue: queue, StreamInterval: time.Second, logger: logger}
}

// Status handles GET /sync/status.
func (c *SyncController) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Queue.Status())
}

// Drain handles POST /sync/drain: probe, then drain in the request.
func (c *SyncController) Drain(w http.ResponseWriter, r *http.Request) {
	if c.Queue.Probe(r.Context()) {
		c.Queue.Drain(r.Context())
	}
	writeJSON(w, http.StatusOK, c.Queue.Status())
}

// Items handles GET /sync/queue.
func (c *SyncController) Items(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Queue.Items())
}

// DeadLetters handles GET /sync/deadletters.
func (c *SyncController) DeadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.Queue.DeadLetters())
}

// RetryDeadLetter handles POST /sync/deadletters/{itemID}/retry.
func (c *SyncController) RetryDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := c.Queue.RetryDeadLetter(mux.Vars(r)["itemID"]); err != nil {
		writeError(w, err)
		return
	}
	c.Queue.Trigger()
	writeJSON(w, http.StatusOK, c.Queue.Status())
}

// PurgeDeadLetters handles DELETE /sync/deadletters.
func (c *SyncController) PurgeDeadLetters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"purged": c.Queue.PurgeDeadLetters()})
}

// StatusStream handles GET /sync/ws. It sends the status on connect and
// again whenever it changes, until the client goes away.
func (c *SyncController) StatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: c.OriginPatterns})
	if err != nil {
		c.logger.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Client messages are ignored; CloseRead cancels ctx once the peer closes.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(c.StreamInterval)
	defer ticker.Stop()

	var last syncqueue.Status
	sent := false
	for {
		st := c.Queue.Status()
		if !sent || st != last {
			if err := writeStatus(ctx, conn, st); err != nil {
				if ctx.Err() == nil {
					c.logger.Printf("websocket write: %v", err)
				}
				return
			}
			last, sent = st, true
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func writeStatus(ctx context.Context, conn *websocket.Conn, st syncqueue.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
