package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/appmarket/orders-client/internal/domain"

	"go.uber.org/zap"
)

type event struct {
	name string
	data []byte
}

type sseClient struct {
	userID string
	events chan event
}

// hub fans order updates out to connected SSE streams, scoped per user id.
type hub struct {
	logger *zap.Logger

	mu      sync.Mutex
	clients map[*sseClient]struct{}
}

func newHub(logger *zap.Logger) *hub {
	return &hub{
		logger:  logger,
		clients: make(map[*sseClient]struct{}),
	}
}

func (h *hub) publish(order domain.Order) {
	data, err := json.Marshal(order)
	if err != nil {
		h.logger.Error("marshal order update", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		if client.userID != order.UserID {
			continue
		}
		select {
		case client.events <- event{name: "order-update", data: data}:
		default:
			// Slow consumer; skip rather than stall the lifecycle.
			h.logger.Warn("sse client is behind, dropping event",
				zap.String("user_id", client.userID),
			)
		}
	}
}

func (h *hub) register(userID string) *sseClient {
	client := &sseClient{
		userID: userID,
		events: make(chan event, 16),
	}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("sse client registered", zap.String("user_id", userID))
	return client
}

func (h *hub) unregister(client *sseClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
	h.logger.Info("sse client unregistered", zap.String("user_id", client.userID))
}

// handleStream serves GET /orders-api/orders/stream.
func (h *hub) handleStream(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id parameter is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := h.register(userID)
	defer h.unregister(client)

	hello, _ := json.Marshal(map[string]string{
		"message": "Connected to order status updates",
		"user_id": userID,
	})
	writeEvent(w, event{name: "connected", data: hello})
	flusher.Flush()

	for {
		select {
		case ev := <-client.events:
			writeEvent(w, ev)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, ev event) {
	fmt.Fprintf(w, "event: %s\n", ev.name)
	fmt.Fprintf(w, "data: %s\n\n", ev.data)
}
