package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/flowmind/flowboard/internal/flowboard"
)

const feedClientBuffer = 32

type feedEvent struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type feedClient struct {
	events chan feedEvent
}

// liveFeed mirrors every published event onto connected websockets. A
// slow client loses events rather than stalling the publisher.
type liveFeed struct {
	mu      sync.Mutex
	clients map[*feedClient]struct{}
}

func newLiveFeed(bus *flowboard.EventBus) *liveFeed {
	feed := &liveFeed{clients: map[*feedClient]struct{}{}}
	for _, eventType := range flowboard.AllEventTypes {
		eventType := eventType
		bus.Subscribe(eventType, func(payload any) {
			feed.broadcast(feedEvent{
				Type:      string(eventType),
				Data:      payload,
				Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			})
		})
	}
	return feed
}

func (f *liveFeed) broadcast(event feedEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for client := range f.clients {
		select {
		case client.events <- event:
		default:
		}
	}
}

func (f *liveFeed) register() *feedClient {
	client := &feedClient{events: make(chan feedEvent, feedClientBuffer)}
	f.mu.Lock()
	f.clients[client] = struct{}{}
	f.mu.Unlock()
	return client
}

func (f *liveFeed) unregister(client *feedClient) {
	f.mu.Lock()
	delete(f.clients, client)
	f.mu.Unlock()
}

func (f *liveFeed) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// The feed is write-only; CloseRead surfaces client disconnects
	// through the returned context.
	ctx := conn.CloseRead(r.Context())

	client := f.register()
	defer f.unregister(client)

	for {
		select {
		case <-ctx.Done():
			return
		case event := <-client.events:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, event)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
