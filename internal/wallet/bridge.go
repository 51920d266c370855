package wallet

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
)

const (
	bridgePingInterval   = 10 * time.Second
	bridgeReconnectDelay = 3 * time.Second
)

// Bridge listens to a wallet's websocket endpoint for accountsChanged and
// chainChanged notifications and republishes them on Events.
type Bridge struct {
	url            string
	events         *Events
	reconnectDelay time.Duration

	mu     sync.Mutex
	conn   *websocket.Conn
	stopCh chan struct{}
	once   sync.Once
}

// NewBridge creates a bridge for the websocket endpoint at url.
func NewBridge(url string, events *Events) *Bridge {
	return &Bridge{
		url:            url,
		events:         events,
		reconnectDelay: bridgeReconnectDelay,
		stopCh:         make(chan struct{}),
	}
}

// Start launches the background connection loop.
func (b *Bridge) Start() {
	go b.connectForever()
	log.Printf("[wallet/bridge] started (%s)", b.url)
}

// Stop shuts the bridge down. Safe to call more than once.
func (b *Bridge) Stop() {
	b.once.Do(func() {
		close(b.stopCh)
		b.mu.Lock()
		if b.conn != nil {
			_ = b.conn.Close()
		}
		b.mu.Unlock()
		log.Println("[wallet/bridge] stopped")
	})
}

func (b *Bridge) stopped() bool {
	select {
	case <-b.stopCh:
		return true
	default:
		return false
	}
}

// ── Internal ──────────────────────────────────────────────────────────────

func (b *Bridge) connectForever() {
	for !b.stopped() {
		err := b.listen()
		if err == nil || b.stopped() {
			continue
		}
		log.Printf("[wallet/bridge] disconnected: %v, reconnecting in %s", err, b.reconnectDelay)
		select {
		case <-time.After(b.reconnectDelay):
		case <-b.stopCh:
		}
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcMessage struct {
	ID     *int            `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
	Method string `json:"method,omitempty"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params,omitempty"`
}

// Request ids double as subscription kinds until the wallet assigns ids.
var bridgeTopics = []string{"accountsChanged", "chainChanged", "networkChanged"}

func (b *Bridge) listen() error {
	conn, _, err := websocket.DefaultDialer.Dial(b.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	b.mu.Lock()
	if b.stopped() {
		b.mu.Unlock()
		return nil
	}
	b.conn = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.conn = nil
		b.mu.Unlock()
	}()

	for i, topic := range bridgeTopics {
		req := rpcRequest{JSONRPC: "2.0", ID: i + 1, Method: "eth_subscribe", Params: []interface{}{topic}}
		if err := conn.WriteJSON(req); err != nil {
			return fmt.Errorf("subscribe %s: %w", topic, err)
		}
	}
	log.Printf("[wallet/bridge] connected to %s", b.url)

	stopPing := make(chan struct{})
	go func() {
		tick := time.NewTicker(bridgePingInterval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				_ = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second))
			case <-stopPing:
				return
			}
		}
	}()
	defer close(stopPing)

	subs := make(map[string]string)
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		b.handleMessage(subs, msg)
	}
}

func (b *Bridge) handleMessage(subs map[string]string, raw []byte) {
	var m rpcMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		log.Printf("[wallet/bridge] bad message: %v", err)
		return
	}

	if m.ID != nil {
		idx := *m.ID - 1
		if idx < 0 || idx >= len(bridgeTopics) {
			return
		}
		if m.Error != nil {
			log.Printf("[wallet/bridge] subscribe %s rejected: %s", bridgeTopics[idx], m.Error.Message)
			return
		}
		var subID string
		if err := json.Unmarshal(m.Result, &subID); err == nil && subID != "" {
			subs[subID] = bridgeTopics[idx]
		}
		return
	}

	if m.Method != "eth_subscription" || m.Params == nil {
		return
	}
	topic, ok := subs[m.Params.Subscription]
	if !ok {
		return
	}
	b.dispatch(topic, m.Params.Result)
}

func (b *Bridge) dispatch(topic string, result json.RawMessage) {
	switch topic {
	case "accountsChanged":
		var accounts []common.Address
		if err := json.Unmarshal(result, &accounts); err != nil {
			log.Printf("[wallet/bridge] accountsChanged: %v", err)
			return
		}
		log.Printf("[wallet/bridge] accounts changed (%d)", len(accounts))
		b.events.PublishAccountsChanged(accounts)
	case "chainChanged", "networkChanged":
		var s string
		if err := json.Unmarshal(result, &s); err != nil {
			log.Printf("[wallet/bridge] %s: %v", topic, err)
			return
		}
		id, err := ParseChainID(s)
		if err != nil {
			log.Printf("[wallet/bridge] %s %q: %v", topic, s, err)
			return
		}
		log.Printf("[wallet/bridge] %s → %d", topic, id)
		b.events.PublishChainChanged(id)
	}
}
