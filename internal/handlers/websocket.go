package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/calbuddy/internal/interfaces"
	"github.com/ternarybob/calbuddy/internal/models"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // progress is read-only and served on a local address
	},
}

// WSMessage is the envelope for every message pushed to clients
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ProgressView is the latest known state of the current run
type ProgressView struct {
	ServerInstanceID string                   `json:"server_instance_id"`
	Snapshot         *models.ProgressSnapshot `json:"snapshot,omitempty"`
	LastRun          *models.RunStats         `json:"last_run,omitempty"`
	TransientSignals int                      `json:"transient_signals"`
	UpdatedAt        time.Time                `json:"updated_at"`
}

// ProgressHandler fans run progress out to websocket clients
type ProgressHandler struct {
	logger      arbor.ILogger
	clients     map[*websocket.Conn]bool
	clientMutex map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex
	throttler   *rate.Limiter // nil disables throttling

	stateMu sync.RWMutex
	view    ProgressView
}

// NewProgressHandler creates a handler and subscribes it to run events.
// maxPerSecond bounds progress broadcasts; zero sends every update.
func NewProgressHandler(eventService interfaces.EventService, logger arbor.ILogger, maxPerSecond float64) (*ProgressHandler, error) {
	h := &ProgressHandler{
		logger:      logger,
		clients:     make(map[*websocket.Conn]bool),
		clientMutex: make(map[*websocket.Conn]*sync.Mutex),
		view: ProgressView{
			ServerInstanceID: uuid.New().String(),
		},
	}

	if maxPerSecond > 0 {
		h.throttler = rate.NewLimiter(rate.Limit(maxPerSecond), 1)
		logger.Debug().
			Float64("max_per_second", maxPerSecond).
			Msg("Progress throttler initialized")
	}

	if eventService != nil {
		subscriptions := map[interfaces.EventType]interfaces.EventHandler{
			interfaces.EventProgress:        h.onProgress,
			interfaces.EventRunCompleted:    h.onRunCompleted,
			interfaces.EventTransientSignal: h.onTransientSignal,
		}
		for eventType, handler := range subscriptions {
			if err := eventService.Subscribe(eventType, handler); err != nil {
				return nil, err
			}
		}
	}

	return h, nil
}

func (h *ProgressHandler) onProgress(ctx context.Context, event interfaces.Event) error {
	snapshot, ok := event.Payload.(models.ProgressSnapshot)
	if !ok {
		return nil
	}

	// Events are delivered concurrently, so an older snapshot may arrive late
	h.stateMu.Lock()
	if current := h.view.Snapshot; current != nil && current.RunID == snapshot.RunID && current.Completed > snapshot.Completed {
		h.stateMu.Unlock()
		return nil
	}
	h.view.Snapshot = &snapshot
	h.view.UpdatedAt = time.Now()
	h.stateMu.Unlock()

	final := snapshot.Total > 0 && snapshot.Completed >= snapshot.Total
	if !final && h.throttler != nil && !h.throttler.Allow() {
		return nil
	}

	h.broadcast(WSMessage{Type: "progress", Payload: snapshot})
	return nil
}

func (h *ProgressHandler) onRunCompleted(ctx context.Context, event interfaces.Event) error {
	stats, ok := event.Payload.(models.RunStats)
	if !ok {
		return nil
	}

	h.stateMu.Lock()
	h.view.LastRun = &stats
	h.view.UpdatedAt = time.Now()
	h.stateMu.Unlock()

	h.broadcast(WSMessage{Type: "run_completed", Payload: stats})
	return nil
}

func (h *ProgressHandler) onTransientSignal(ctx context.Context, event interfaces.Event) error {
	signal, ok := event.Payload.(models.TransientSignal)
	if !ok {
		return nil
	}

	h.stateMu.Lock()
	h.view.TransientSignals++
	h.stateMu.Unlock()

	h.broadcast(WSMessage{Type: "transient_signal", Payload: signal})
	return nil
}

// View returns a copy of the latest state
func (h *ProgressHandler) View() ProgressView {
	h.stateMu.RLock()
	defer h.stateMu.RUnlock()
	return h.view
}

// ClientCount returns the number of connected clients
func (h *ProgressHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket handles GET /ws
func (h *ProgressHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	mutex := &sync.Mutex{}
	h.mu.Lock()
	h.clients[conn] = true
	h.clientMutex[conn] = mutex
	clientCount := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug().Msgf("WebSocket client connected (total: %d)", clientCount)

	// Late joiners get the current state straight away
	h.send(conn, mutex, WSMessage{Type: "state", Payload: h.View()})

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		delete(h.clientMutex, conn)
		clientCount := len(h.clients)
		h.mu.Unlock()

		conn.Close()
		h.logger.Debug().Msgf("WebSocket client disconnected (remaining: %d)", clientCount)
	}()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Msg("WebSocket error")
			}
			break
		}
	}
}

// HandleProgress handles GET /api/progress
func (h *ProgressHandler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.View())
}

func (h *ProgressHandler) send(conn *websocket.Conn, mutex *sync.Mutex, msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("type", msg.Type).Msg("Failed to marshal message")
		return
	}

	mutex.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	mutex.Unlock()

	if err != nil {
		h.logger.Warn().Err(err).Str("type", msg.Type).Msg("Failed to send message to client")
	}
}

func (h *ProgressHandler) broadcast(msg WSMessage) {
	h.mu.RLock()
	clients := make([]*websocket.Conn, 0, len(h.clients))
	mutexes := make([]*sync.Mutex, 0, len(h.clients))
	for conn := range h.clients {
		clients = append(clients, conn)
		mutexes = append(mutexes, h.clientMutex[conn])
	}
	h.mu.RUnlock()

	for i, conn := range clients {
		h.send(conn, mutexes[i], msg)
	}
}
