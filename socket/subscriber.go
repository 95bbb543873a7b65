//go:generate go run go.uber.org/mock/mockgen -source=subscriber.go -destination=mock/subscriber.go
package socket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"github.com/totegamma/concurrent-client/core"
)

var (
	pingInterval      = 10 * time.Second
	disconnectTimeout = 30 * time.Second
	reconnectDelay    = 5 * time.Second
)

var tracer = otel.Tracer("socket")

// Subscriber delivers realtime timeline events from one host.
type Subscriber interface {
	Listen(ctx context.Context, streams []string) <-chan core.Event
}

type subscriber struct {
	scheme string
	host   string
}

// NewSubscriber creates a subscriber for the given host. secure selects
// wss over ws.
func NewSubscriber(host string, secure bool) Subscriber {
	scheme := "wss"
	if !secure {
		scheme = "ws"
	}
	return &subscriber{scheme: scheme, host: host}
}

type channelRequest struct {
	Type     string   `json:"type"`
	Channels []string `json:"channels"`
}

// Listen subscribes to the given streams. The returned channel closes
// when ctx is cancelled. Connection loss triggers a reconnect after a
// delay; events published while disconnected are lost.
func (s *subscriber) Listen(ctx context.Context, streams []string) <-chan core.Event {
	events := make(chan core.Event, 64)

	go func() {
		defer close(events)
		for {
			err := s.session(ctx, streams, events)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				slog.WarnContext(ctx, fmt.Sprintf("socket session ended: %v", err), slog.String("module", "socket"))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()

	return events
}

func (s *subscriber) session(ctx context.Context, streams []string, events chan<- core.Event) error {
	ctx, span := tracer.Start(ctx, "Subscriber.session")
	defer span.End()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.scheme+"://"+s.host+"/api/v1/socket", nil)
	if err != nil {
		span.RecordError(err)
		return err
	}
	defer conn.Close()

	request, err := json.Marshal(channelRequest{
		Type:     "listen",
		Channels: streams,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}
	err = conn.WriteMessage(websocket.TextMessage, request)
	if err != nil {
		span.RecordError(err)
		return err
	}

	conn.SetReadDeadline(time.Now().Add(disconnectTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(disconnectTimeout))
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				err := conn.WriteMessage(websocket.PingMessage, nil)
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		var event core.Event
		err := conn.ReadJSON(&event)
		if err != nil {
			span.RecordError(err)
			return err
		}
		conn.SetReadDeadline(time.Now().Add(disconnectTimeout))

		select {
		case events <- event:
		case <-ctx.Done():
			return nil
		}
	}
}
