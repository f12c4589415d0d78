package turbine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quantfold/turbinebot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// reconnectDelay is the base delay before attempting to reconnect.
	reconnectDelay = 2 * time.Second

	// maxReconnectDelay caps the exponential backoff for reconnection.
	maxReconnectDelay = 60 * time.Second
)

// BookHandler is called for every full orderbook snapshot.
type BookHandler func(domain.OrderbookSnapshot)

// TradeHandler is called for every execution in a subscribed market.
type TradeHandler func(domain.Trade)

// CancelHandler is called when a resting order is cancelled.
type CancelHandler func(marketID, orderHash string)

// WSClient is a websocket client for the Turbine market data stream. The
// stream uses market-level subscriptions: subscribing to a market delivers
// its orderbook, trade, and order_cancelled messages.
type WSClient struct {
	wsURL string
	conn  *websocket.Conn

	mu     sync.RWMutex
	closed bool

	// Subscriptions to restore on reconnect, keyed by market ID.
	subscriptions map[string]struct{}

	// Handlers
	bookHandlers   []BookHandler
	tradeHandlers  []TradeHandler
	cancelHandlers []CancelHandler
	handlerMu      sync.RWMutex

	// done is closed when the client is shut down.
	done chan struct{}
}

// NewWSClient creates a new websocket client for the given stream URL.
//
// wsURL is the Turbine stream endpoint, e.g. "wss://api.turbine.fun/ws".
func NewWSClient(wsURL string) *WSClient {
	return &WSClient{
		wsURL:         wsURL,
		subscriptions: make(map[string]struct{}),
		done:          make(chan struct{}),
	}
}

// Connect establishes the websocket connection and starts the read and ping
// loops. Previously subscribed markets are re-subscribed.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("turbine/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, w.wsURL, nil)
	if err != nil {
		return fmt.Errorf("turbine/ws: connect: %w", err)
	}

	w.conn = conn

	// Set up pong handler for keep-alive.
	w.conn.SetReadDeadline(time.Now().Add(pongWait))
	w.conn.SetPongHandler(func(string) error {
		w.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go w.readLoop()
	go w.pingLoop()

	// Restore subscriptions after reconnect.
	for marketID := range w.subscriptions {
		if err := w.sendCommand(wsCommand{Type: "subscribe", MarketID: marketID}); err != nil {
			return fmt.Errorf("turbine/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe subscribes to a market's stream.
func (w *WSClient) Subscribe(ctx context.Context, marketID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("turbine/ws: not connected")
	}

	if err := w.sendCommand(wsCommand{Type: "subscribe", MarketID: marketID}); err != nil {
		return fmt.Errorf("turbine/ws: subscribe %s: %w", marketID, err)
	}

	w.subscriptions[marketID] = struct{}{}
	return nil
}

// Unsubscribe removes a market's subscription.
func (w *WSClient) Unsubscribe(ctx context.Context, marketID string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn == nil {
		return fmt.Errorf("turbine/ws: not connected")
	}

	if err := w.sendCommand(wsCommand{Type: "unsubscribe", MarketID: marketID}); err != nil {
		return fmt.Errorf("turbine/ws: unsubscribe %s: %w", marketID, err)
	}

	delete(w.subscriptions, marketID)
	return nil
}

// Close shuts down the websocket connection and stops the read loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

// OnBook registers a handler for orderbook snapshots.
func (w *WSClient) OnBook(handler BookHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.bookHandlers = append(w.bookHandlers, handler)
}

// OnTrade registers a handler for trade executions.
func (w *WSClient) OnTrade(handler TradeHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.tradeHandlers = append(w.tradeHandlers, handler)
}

// OnOrderCancelled registers a handler for order cancellations.
func (w *WSClient) OnOrderCancelled(handler CancelHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.cancelHandlers = append(w.cancelHandlers, handler)
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// sendCommand sends a JSON command to the websocket. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd wsCommand) error {
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop continuously reads messages from the websocket and dispatches
// them to the registered handlers. It runs in its own goroutine. On
// disconnect, it attempts to reconnect with exponential backoff.
func (w *WSClient) readLoop() {
	defer func() {
		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()
		if conn != nil {
			conn.Close()
		}
	}()

	for {
		select {
		case <-w.done:
			return
		default:
		}

		w.mu.RLock()
		conn := w.conn
		w.mu.RUnlock()

		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}

			w.reconnect()
			return // readLoop is restarted by reconnect -> Connect
		}

		w.handleMessage(message)
	}
}

// pingLoop sends periodic ping messages to keep the websocket alive.
func (w *WSClient) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.RLock()
			conn := w.conn
			w.mu.RUnlock()

			if conn == nil {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage parses a raw websocket message and routes it by type.
func (w *WSClient) handleMessage(raw []byte) {
	var envelope wsEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // Silently drop unparseable messages.
	}

	switch envelope.Type {
	case "orderbook":
		var msg wsOrderbookMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		snap := msg.Data.ToDomain()
		if snap.MarketID == "" {
			snap.MarketID = msg.MarketID
		}

		w.handlerMu.RLock()
		handlers := w.bookHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(snap)
		}

	case "trade":
		var msg wsTradeMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}
		trade := msg.Data.ToDomain()
		if trade.MarketID == "" {
			trade.MarketID = msg.MarketID
		}

		w.handlerMu.RLock()
		handlers := w.tradeHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(trade)
		}

	case "order_cancelled":
		var msg wsOrderCancelledMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return
		}

		w.handlerMu.RLock()
		handlers := w.cancelHandlers
		w.handlerMu.RUnlock()

		for _, h := range handlers {
			h(msg.MarketID, msg.OrderHash)
		}
	}
}

// reconnect attempts to re-establish the websocket connection with
// exponential backoff. It blocks until successful or the client is closed.
func (w *WSClient) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-w.done:
			return
		default:
		}

		time.Sleep(delay)

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := w.Connect(ctx)
		cancel()

		if err == nil {
			return
		}

		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}
