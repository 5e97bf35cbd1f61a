package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"dualinvest-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsTopics maps the ?topic= query values to bus events. Decisions are the
// default stream.
var wsTopics = map[string]events.Event{
	"":          events.EventDecision,
	"decisions": events.EventDecision,
	"snapshots": events.EventMarketSnapshot,
	"ticks":     events.EventPriceTick,
	"alerts":    events.EventRiskAlert,
}

func (s *Server) websocket(c *gin.Context) {
	topic, ok := wsTopics[c.Query("topic")]
	if !ok {
		respondError(c, http.StatusBadRequest, "BAD_REQUEST", "unknown topic")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	stream, unsub := s.Bus.Subscribe(topic, 100)
	defer unsub()

	// Drain the client side so a disconnect releases the subscription
	// even when no events are flowing. Unsubscribing closes the stream,
	// which ends the write loop below.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				unsub()
				return
			}
		}
	}()

	for msg := range stream {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
