package feed

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"despesas/internal/log"
)

const (
	// writeWait is time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// pongWait is time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// pingPeriod is the interval for sending pings (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is maximum message size allowed from peer
	maxMessageSize = 512
)

// QueryFromRequest reads collection and order query parameters,
// defaulting to the expenses collection by date.
func QueryFromRequest(r *http.Request) Query {
	q := ExpensesByDate()
	if c := r.URL.Query().Get("collection"); c != "" {
		q.Collection = c
	}
	if o := r.URL.Query().Get("order"); o != "" {
		q.OrderBy = o
	}
	return q
}

// Handler upgrades HTTP requests to websocket feed connections.
type Handler struct {
	feed     Feed
	logger   *log.Logger
	upgrader websocket.Upgrader
}

func NewHandler(f Feed, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Discard()
	}
	return &Handler{
		feed:   f,
		logger: logger.WithComponent(log.ComponentFeed),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeHTTP rejects unknown collections with 404 before upgrading, so
// remote clients can tell a missing collection from a network failure.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := QueryFromRequest(r)
	if err := q.Validate(); err != nil {
		status := http.StatusBadRequest
		if KindOf(err) == KindNotFound {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WarnContext(r.Context(), "WebSocket upgrade failed", log.FieldError, err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := h.feed.Subscribe(ctx, q)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Feed subscription failed", log.FieldError, err)
		writeClose(conn, websocket.CloseInternalServerErr, "subscription failed")
		return
	}
	defer sub.Close()

	h.logger.InfoContext(r.Context(), "WebSocket client connected", log.FieldSubscriber, sub.ID())
	go readPump(conn, cancel)
	h.writePump(ctx, conn, sub)
	h.logger.InfoContext(r.Context(), "WebSocket client disconnected", log.FieldSubscriber, sub.ID())
}

// readPump discards inbound frames and cancels ctx when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Handler) writePump(ctx context.Context, conn *websocket.Conn, sub *Subscription) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			writeClose(conn, websocket.CloseGoingAway, "")
			return
		case <-sub.Done():
			writeClose(conn, websocket.CloseGoingAway, "")
			return
		case <-sub.Signal():
			for _, ev := range sub.Drain() {
				if err := writeEvent(conn, ev); err != nil {
					if !errors.Is(err, websocket.ErrCloseSent) {
						h.logger.Warn("WebSocket write error", log.FieldSubscriber, sub.ID(), log.FieldError, err)
					}
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, ev Event) error {
	payload, err := MessageFromEvent(ev).ToJSON()
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func writeClose(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
}
