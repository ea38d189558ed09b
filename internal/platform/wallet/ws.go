package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/quietbet/poolhouse/internal/domain"
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

// DepositHandler is called for every confirmed deposit the wallet streams.
type DepositHandler func(domain.DepositEvent)

// Feed is a WebSocket client for the wallet's deposit confirmation stream.
// The wallet delivers at least once; downstream dedup is the engine's job,
// not the feed's.
type Feed struct {
	wsURL  string
	apiKey string
	conn   *websocket.Conn

	mu     sync.RWMutex
	closed bool

	handlers  []DepositHandler
	handlerMu sync.RWMutex

	// done is closed when the feed is shut down.
	done chan struct{}
}

// NewFeed creates a deposit feed for the given WebSocket URL, e.g.
// "wss://wallet.internal:8443/v1/deposits/stream".
func NewFeed(wsURL, apiKey string) *Feed {
	return &Feed{
		wsURL:  wsURL,
		apiKey: apiKey,
		done:   make(chan struct{}),
	}
}

// OnDeposit registers a handler invoked for every deposit event.
func (f *Feed) OnDeposit(handler DepositHandler) {
	f.handlerMu.Lock()
	defer f.handlerMu.Unlock()
	f.handlers = append(f.handlers, handler)
}

// Connect establishes the WebSocket connection and starts the read loop.
func (f *Feed) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return fmt.Errorf("wallet/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 15 * time.Second,
	}
	headers := map[string][]string{}
	if f.apiKey != "" {
		headers["Authorization"] = []string{"Bearer " + f.apiKey}
	}

	conn, _, err := dialer.DialContext(ctx, f.wsURL, headers)
	if err != nil {
		return fmt.Errorf("wallet/ws: connect: %w", err)
	}
	f.conn = conn

	f.conn.SetReadDeadline(time.Now().Add(pongWait))
	f.conn.SetPongHandler(func(string) error {
		f.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go f.readLoop()
	go f.pingLoop()
	return nil
}

// Close shuts down the connection and stops the read loop.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true
	close(f.done)

	if f.conn != nil {
		_ = f.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return f.conn.Close()
	}
	return nil
}

// readLoop reads deposit messages until shutdown, reconnecting with
// exponential backoff on error.
func (f *Feed) readLoop() {
	for {
		select {
		case <-f.done:
			return
		default:
		}

		f.mu.RLock()
		conn := f.conn
		f.mu.RUnlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-f.done:
				return
			default:
			}
			f.reconnect()
			return // readLoop restarts via reconnect -> Connect
		}

		f.handleMessage(message)
	}
}

func (f *Feed) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-f.done:
			return
		case <-ticker.C:
			f.mu.RLock()
			conn := f.conn
			f.mu.RUnlock()
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

func (f *Feed) handleMessage(raw []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return // silently drop unparseable messages
	}
	if envelope.Type != "deposit_confirmed" {
		return
	}

	var msg struct {
		FundingRef string    `json:"funding_ref"`
		Amount     int64     `json:"amount"`
		TxRef      string    `json:"tx_ref"`
		ObservedAt time.Time `json:"observed_at"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}

	event := domain.DepositEvent{
		FundingRef: msg.FundingRef,
		Amount:     msg.Amount,
		TxRef:      msg.TxRef,
		ObservedAt: msg.ObservedAt,
	}

	f.handlerMu.RLock()
	handlers := f.handlers
	f.handlerMu.RUnlock()
	for _, h := range handlers {
		h(event)
	}
}

// reconnect re-establishes the connection with exponential backoff.
func (f *Feed) reconnect() {
	delay := reconnectDelay

	for {
		select {
		case <-f.done:
			return
		case <-time.After(delay):
		}

		f.mu.Lock()
		if f.conn != nil {
			f.conn.Close()
			f.conn = nil
		}
		f.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := f.Connect(ctx)
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
