package devserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/buildplan/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Live reload event names.
const (
	EventReload         = "reload"
	EventContentChanged = "content-changed"
)

const keepAliveInterval = 15 * time.Second

type event struct {
	name string
	id   string
}

// Hub fans live reload events out to connected browsers over server-sent events.
type Hub struct {
	mu      sync.Mutex
	clients map[chan event]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: map[chan event]struct{}{}}
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends an event to every connected browser. Slow clients that
// still have an undelivered event are skipped, one pending reload is enough.
func (h *Hub) Broadcast(ctx context.Context, name, id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.clients {
		select {
		case ch <- event{name: name, id: id}:
		default:
		}
	}

	telemetry.GetMetrics().ReloadsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("event", name)))
	log.Debug().Str("event", name).Str("id", id).Int("clients", len(h.clients)).Msg("Sent live reload event")
}

func (h *Hub) subscribe() chan event {
	ch := make(chan event, 1)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) unsubscribe(ch chan event) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := h.subscribe()
	defer h.unsubscribe(ch)

	m := telemetry.GetMetrics()
	m.LiveReloadClients.Add(ctx, 1)
	defer m.LiveReloadClients.Add(context.WithoutCancel(ctx), -1)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev := <-ch:
			if ev.id != "" {
				_, _ = fmt.Fprintf(w, "id: %s\n", ev.id)
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.name, ev.name); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
