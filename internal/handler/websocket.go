package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/storecart/internal/auth"
	"github.com/vyrodovalexey/storecart/internal/events"
	"github.com/vyrodovalexey/storecart/internal/model"
)

// WebSocket configuration constants.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// EventsHandler streams cart events of a store to WebSocket clients.
type EventsHandler struct {
	hub      *events.Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	mu       sync.RWMutex
	clients  map[*websocket.Conn]context.CancelFunc
}

// NewEventsHandler creates a new EventsHandler instance.
func NewEventsHandler(hub *events.Hub, logger *zap.Logger) *EventsHandler {
	return &EventsHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(_ *http.Request) bool {
				return true
			},
		},
		logger:  logger,
		clients: make(map[*websocket.Conn]context.CancelFunc),
	}
}

// RegisterRoutes registers the event stream route. It must be registered
// before the cart item routes so that "events" is not taken for a cart ID.
func (h *EventsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/{storeId}/cart/events", h.Stream).Methods(http.MethodGet)
}

// Stream handles GET /api/{storeId}/cart/events?userId= requests. Without an
// authenticated identity an empty userId streams the events of every shopper
// in the store. An authenticated caller only receives its own events.
//
//nolint:contextcheck // intentional: WebSocket connections outlive the HTTP request context
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	storeID := mux.Vars(r)["storeId"]
	if storeID == "" {
		writeError(w, h.logger, http.StatusBadRequest, model.ErrMissingStoreID.Error())
		return
	}
	userID := r.URL.Query().Get("userId")

	if subject := auth.SubjectFromContext(r.Context()); subject != "" {
		if userID != "" && userID != subject {
			writeError(w, h.logger, http.StatusForbidden, msgIdentity)
			return
		}
		userID = subject
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade connection", zap.Error(err))
		return
	}

	sub := h.hub.Subscribe(storeID, userID)

	// The request context ends when this handler returns.
	ctx, cancel := context.WithCancel(context.Background())

	h.mu.Lock()
	h.clients[conn] = cancel
	h.mu.Unlock()

	h.logger.Info("event stream client connected",
		zap.String("remote_addr", conn.RemoteAddr().String()),
		zap.String("store_id", storeID),
		zap.String("user_id", userID),
	)

	go h.writePump(ctx, conn, sub)
	go h.readPump(ctx, conn, cancel)
}

// readPump drains client frames so that pongs and close frames are processed.
func (h *EventsHandler) readPump(ctx context.Context, conn *websocket.Conn, cancel context.CancelFunc) {
	defer func() {
		cancel()
		h.removeClient(conn)
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
	}()

	conn.SetReadLimit(maxMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		h.logger.Error("failed to set read deadline", zap.Error(err))
		return
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket read error", zap.Error(err))
				}
				return
			}
		}
	}
}

// writePump forwards subscription events and keeps the connection alive.
func (h *EventsHandler) writePump(ctx context.Context, conn *websocket.Conn, sub *events.Subscription) {
	pingTicker := time.NewTicker(pingPeriod)

	defer func() {
		pingTicker.Stop()
		sub.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			h.sendCloseMessage(conn, "server shutting down")
			return
		case evt, ok := <-sub.Events():
			if !ok {
				h.sendCloseMessage(conn, "event stream closed")
				return
			}
			if err := h.sendEvent(conn, evt); err != nil {
				h.logger.Debug("failed to send event", zap.Error(err))
				return
			}
		case <-pingTicker.C:
			if err := h.sendPing(conn); err != nil {
				h.logger.Debug("failed to send ping", zap.Error(err))
				return
			}
		}
	}
}

func (h *EventsHandler) sendEvent(conn *websocket.Conn, evt model.CartEvent) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteJSON(evt)
}

func (h *EventsHandler) sendPing(conn *websocket.Conn) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.PingMessage, nil)
}

func (h *EventsHandler) sendCloseMessage(conn *websocket.Conn, reason string) {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		h.logger.Debug("failed to set write deadline for close", zap.Error(err))
		return
	}

	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	if err := conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
		h.logger.Debug("failed to send close message", zap.Error(err))
	}
}

// removeClient removes a client from the clients map.
func (h *EventsHandler) removeClient(conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, exists := h.clients[conn]; exists {
		cancel()
		delete(h.clients, conn)
		h.logger.Info("event stream client disconnected", zap.String("remote_addr", conn.RemoteAddr().String()))
	}
}

// ClientCount returns the number of connected clients.
func (h *EventsHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAllConnections closes all active WebSocket connections.
func (h *EventsHandler) CloseAllConnections() {
	h.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(h.clients))
	for _, cancel := range h.clients {
		cancels = append(cancels, cancel)
	}
	h.mu.Unlock()

	// Cancelling makes each writePump send a close frame.
	for _, cancel := range cancels {
		cancel()
	}

	time.Sleep(100 * time.Millisecond)

	h.mu.Lock()
	for conn := range h.clients {
		if err := conn.Close(); err != nil {
			h.logger.Debug("error closing connection", zap.Error(err))
		}
		delete(h.clients, conn)
	}
	h.mu.Unlock()

	h.logger.Info("all event stream connections closed")
}
