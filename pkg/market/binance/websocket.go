package market

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/stream"}).String(),
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeMiniTickers streams mini-ticker updates for the given symbols
// over one combined connection. It returns the channel and a stop function;
// the channel closes when the stream ends.
func (c *StreamClient) SubscribeMiniTickers(ctx context.Context, symbols []string) (<-chan Ticker, func(), error) {
	if len(symbols) == 0 {
		return nil, nil, fmt.Errorf("no symbols to subscribe")
	}

	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		// Binance requires lowercase symbols for websocket streams
		streams = append(streams, strings.ToLower(s)+"@miniTicker")
	}
	u := c.StreamURL + "?streams=" + strings.Join(streams, "/")

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan Ticker, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
			close(out)
		})
	}

	go func() {
		defer stop()
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Printf("binance ws read error: %v", err)
				return
			}

			ticker, err := parseMiniTicker(msg)
			if err != nil {
				log.Printf("binance ws parse error: %v", err)
				continue
			}

			select {
			case out <- ticker:
			default:
				// consumer behind, drop the tick
			}
		}
	}()

	return out, stop, nil
}

func parseMiniTicker(msg []byte) (Ticker, error) {
	var envelope struct {
		Data struct {
			Symbol    string `json:"s"`
			Close     string `json:"c"`
			EventTime int64  `json:"E"`
		} `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err != nil {
		return Ticker{}, err
	}
	if envelope.Data.Symbol == "" {
		return Ticker{}, fmt.Errorf("not a mini ticker payload")
	}

	price, err := strconv.ParseFloat(envelope.Data.Close, 64)
	if err != nil {
		return Ticker{}, fmt.Errorf("parse close price: %w", err)
	}

	return Ticker{
		Symbol: envelope.Data.Symbol,
		Price:  price,
		Time:   envelope.Data.EventTime,
	}, nil
}
