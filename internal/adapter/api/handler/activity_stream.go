package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/V4T54L/worksync/internal/domain"
)

// ActivitySnapshot is broadcast to every stream client once per interval.
type ActivitySnapshot struct {
	Rate     float64                   `json:"rate"`
	PerTier  map[domain.Priority]int64 `json:"perTier"`
	Total    int64                     `json:"total"`
	Interval float64                   `json:"intervalSeconds"`
}

// ActivityBroker fans admitted event counts out to server-sent event clients.
type ActivityBroker struct {
	logger   *slog.Logger
	clients  map[chan []byte]struct{}
	mu       sync.RWMutex
	reports  chan domain.Priority
	interval time.Duration
}

// NewActivityBroker creates a broker and starts its processing loop, which
// stops when ctx is cancelled.
func NewActivityBroker(ctx context.Context, interval time.Duration, logger *slog.Logger) *ActivityBroker {
	if interval <= 0 {
		interval = time.Second
	}
	broker := &ActivityBroker{
		logger:   logger.With("component", "activity_stream"),
		clients:  make(map[chan []byte]struct{}),
		reports:  make(chan domain.Priority, 1000),
		interval: interval,
	}
	go broker.run(ctx)
	return broker
}

// ServeHTTP streams snapshots until the client goes away.
func (b *ActivityBroker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported!", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	messageChan := make(chan []byte, 8)
	b.addClient(messageChan)
	defer b.removeClient(messageChan)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messageChan:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: activity\ndata: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// ReportEvent records one admitted event. It never blocks the ingest path.
func (b *ActivityBroker) ReportEvent(priority domain.Priority) {
	select {
	case b.reports <- priority:
	default:
		b.logger.Warn("activity report channel is full, dropping report")
	}
}

// Clients returns the number of connected stream clients.
func (b *ActivityBroker) Clients() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *ActivityBroker) addClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clients[client] = struct{}{}
	b.logger.Info("activity client connected", "clients", len(b.clients))
}

func (b *ActivityBroker) removeClient(client chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[client]; ok {
		delete(b.clients, client)
		close(client)
		b.logger.Info("activity client disconnected", "clients", len(b.clients))
	}
}

func (b *ActivityBroker) broadcast(msg []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client <- msg:
		default:
			// slow client, skip this tick
		}
	}
}

func (b *ActivityBroker) run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	counts := make(map[domain.Priority]int64)
	var total int64
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-b.reports:
			counts[p]++
			total++
		case <-ticker.C:
			now := time.Now()
			elapsed := now.Sub(last).Seconds()
			snapshot := ActivitySnapshot{PerTier: make(map[domain.Priority]int64, 3), Total: total, Interval: elapsed}
			for _, p := range []domain.Priority{domain.PriorityCritical, domain.PriorityHigh, domain.PriorityNormal} {
				snapshot.PerTier[p] = counts[p]
			}
			if elapsed > 0 {
				snapshot.Rate = float64(total) / elapsed
			}

			data, err := json.Marshal(snapshot)
			if err != nil {
				b.logger.Error("failed to marshal activity snapshot", "error", err)
				continue
			}
			b.broadcast(data)

			last = now
			total = 0
			clear(counts)
		}
	}
}
