// Package gateway serves the chat session to a browser: a small gin server
// with a JSON API and an SSE event stream bridged from the session callbacks.
package gateway

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/dhowland/pfchat/internal/history"
	"github.com/dhowland/pfchat/internal/notify"
	"github.com/dhowland/pfchat/internal/stream"
	"gorm.io/gorm"
)

// event is one SSE event fanned out to connected browsers.
type event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Hub fans session events out to SSE subscribers. Slow subscribers drop
// events rather than block the session callbacks.
type Hub struct {
	mu   sync.Mutex
	subs map[chan event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[chan event]struct{})}
}

// Subscribe registers a new event channel. The caller must Unsubscribe when
// done.
func (h *Hub) Subscribe() chan event {
	ch := make(chan event, 64)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel registered with Subscribe.
func (h *Hub) Unsubscribe(ch chan event) {
	h.mu.Lock()
	delete(h.subs, ch)
	h.mu.Unlock()
}

func (h *Hub) publish(name string, data any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event{Event: name, Data: data}:
		default: // subscriber is not keeping up
		}
	}
}

// BridgeOpts configures the session-to-gateway bridge.
type BridgeOpts struct {
	DB       *gorm.DB        // history cache; may be nil to skip recording
	Notifier notify.Notifier // alert sink; may be nil
}

// Callbacks returns session callbacks that republish every protocol event to
// SSE subscribers, record finished turns in the history cache, and raise
// alerts on terminal failures and exhausted rate limits.
func (h *Hub) Callbacks(opts BridgeOpts) stream.Callbacks {
	alert := func(a notify.Alert) {
		if opts.Notifier == nil {
			return
		}
		if err := opts.Notifier.Notify(context.Background(), a); err != nil {
			log.Printf("gateway: alert delivery: %v", err)
		}
	}
	return stream.Callbacks{
		OnStatusChange: func(st stream.Status) {
			h.publish("status", map[string]string{"status": string(st)})
			if st == stream.StatusFailed {
				alert(notify.Alert{
					Title:    "Chat stream connection failed",
					Body:     "reconnect attempts exhausted; manual reconnect required",
					Severity: notify.SeverityError,
				})
			}
		},
		OnChunk: func(text string) {
			h.publish("chunk", map[string]string{"text": text})
		},
		OnToolStatus: func(tools []stream.ToolStatus) {
			h.publish("tools", tools)
		},
		OnTurnComplete: func(turn stream.CompletedTurn) {
			h.publish("complete", turn)
			if opts.DB != nil {
				if err := history.RecordAssistantTurn(opts.DB, turn); err != nil {
					log.Printf("gateway: %v", err)
				}
			}
		},
		OnChartGenerated: func(chartRef string) {
			h.publish("chart", map[string]string{"chart_ref": chartRef})
		},
		OnRateLimit: func(limits stream.RateLimitSnapshot) {
			h.publish("rate_limit_info", limits)
		},
		OnRateLimitExceeded: func(message string, limits stream.RateLimitSnapshot) {
			h.publish("rate_limit", map[string]any{"message": message, "limits": limits})
			alert(notify.Alert{
				Title:    "Chat rate limit exhausted",
				Body:     message,
				Severity: notify.SeverityWarning,
			})
		},
		OnChatRenamed: func(chatID, title string) {
			h.publish("chat_renamed", map[string]string{"chat_id": chatID, "title": title})
			if opts.DB != nil {
				if err := history.RenameChat(opts.DB, chatID, title); err != nil {
					log.Printf("gateway: %v", err)
				}
			}
		},
		OnError: func(err error) {
			h.publish("error", map[string]string{"message": fmt.Sprint(err)})
		},
	}
}
