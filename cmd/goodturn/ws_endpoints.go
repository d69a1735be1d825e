package main

import (
	"time"

	"github.com/goodturn-social/goodturn/events"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// handleSubscribeEvents streams engine events to a websocket client as JSON
// frames, optionally filtered to one kind via ?kind=.
func (svc *Service) handleSubscribeEvents(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	var filter func(*events.EngineEvent) bool
	if kind := c.QueryParam("kind"); kind != "" {
		filter = func(evt *events.EngineEvent) bool {
			return evt.Kind == kind
		}
	}

	sub := svc.events.Subscribe(filter)
	defer sub.Unsubscribe()

	// drain reads so close frames are processed
	readErr := make(chan struct{})
	go func() {
		defer close(readErr)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case evt, ok := <-sub.Events():
			if !ok {
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(evt); err != nil {
				return nil
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-readErr:
			return nil
		}
	}
}
