package notify

import (
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Reconnect backoff steps after an established connection drops. The token
// is re-read from the source on every attempt so rotated tokens are honored.
var reconnectDelays = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}

// TokenSource supplies the bearer token used as the connection credential.
type TokenSource interface {
	AccessToken() string
}

// Toaster receives the user-facing rendering of pushed events.
type Toaster interface {
	Success(message string)
	Error(message string)
	Warning(message string)
	Info(message string)
}

type subscribeTarget struct {
	ProductID string `json:"productId,omitempty"`
	OrderID   string `json:"orderId,omitempty"`
}

// Channel is the persistent duplex notification connection. It republishes
// server-pushed events as typed local streams and maintains the bounded
// persisted history.
type Channel struct {
	hubURL  string
	tokens  TokenSource
	toasts  Toaster
	history *History
	dialer  *websocket.Dialer
	newID   func() string
	now     func() time.Time

	mu         sync.Mutex
	conn       *websocket.Conn
	connecting bool
	state      State
	done       chan struct{}

	writeMu sync.Mutex

	subMu     sync.Mutex
	eventSubs map[Kind]map[int]chan Event
	stateSubs map[int]chan State
	nextSub   int
}

func NewChannel(hubURL string, tokens TokenSource, store KV, toasts Toaster) *Channel {
	return &Channel{
		hubURL:    hubURL,
		tokens:    tokens,
		toasts:    toasts,
		history:   NewHistory(store),
		dialer:    websocket.DefaultDialer,
		newID:     uuid.NewString,
		now:       time.Now,
		state:     Disconnected,
		eventSubs: make(map[Kind]map[int]chan Event),
		stateSubs: make(map[int]chan State),
	}
}

// History exposes the channel's read/unread view.
func (c *Channel) History() *History {
	return c.history
}

func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) IsConnected() bool {
	return c.State() == Connected
}

// Connect establishes the channel. No-op when already connected or when an
// attempt is in flight. Without a valid access token it aborts silently:
// nothing on the page may block on the channel being up.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.connecting || c.state == Connected {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	if c.tokens.AccessToken() == "" {
		c.mu.Unlock()
		log.Println("notify: no access token, skipping channel connect")
		return
	}
	c.connecting = true
	c.setStateLocked(Connecting)
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	go c.lifecycle(done)
}

// Disconnect tears down the transport and clears the in-memory history view.
// Persisted history is left alone.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connecting = false
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	c.history.Reset()
}

func (c *Channel) lifecycle(done chan struct{}) {
	conn, err := c.dial()

	c.mu.Lock()
	c.connecting = false
	if err != nil {
		c.setStateLocked(Disconnected)
		c.mu.Unlock()
		log.Printf("notify: channel connect failed: %v", err)
		return
	}
	if closed(done) {
		c.mu.Unlock()
		_ = conn.Close()
		return
	}
	c.conn = conn
	c.setStateLocked(Connected)
	c.mu.Unlock()
	log.Println("notify: channel connected")

	for {
		readErr := c.readLoop(conn)
		if closed(done) {
			return
		}
		log.Printf("notify: channel dropped: %v", readErr)
		c.mu.Lock()
		c.conn = nil
		c.setStateLocked(Reconnecting)
		c.mu.Unlock()

		conn = nil
		for _, delay := range reconnectDelays {
			select {
			case <-done:
				return
			case <-time.After(delay):
			}
			next, dialErr := c.dial()
			if dialErr == nil {
				conn = next
				break
			}
			log.Printf("notify: reconnect attempt failed: %v", dialErr)
		}
		if conn == nil {
			c.setState(Disconnected)
			return
		}

		c.mu.Lock()
		if closed(done) {
			c.mu.Unlock()
			_ = conn.Close()
			return
		}
		c.conn = conn
		c.setStateLocked(Connected)
		c.mu.Unlock()
		log.Println("notify: channel reconnected")
	}
}

func (c *Channel) dial() (*websocket.Conn, error) {
	token := c.tokens.AccessToken()
	if token == "" {
		return nil, ErrTransportUnavailable
	}
	endpoint := c.hubURL + "?access_token=" + url.QueryEscape(token)
	conn, _, err := c.dialer.Dial(endpoint, nil)
	return conn, err
}

func (c *Channel) readLoop(conn *websocket.Conn) error {
	for {
		var msg wireMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		c.dispatch(msg)
	}
}

func (c *Channel) dispatch(msg wireMessage) {
	var ev Event
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Printf("notify: bad %s payload: %v", msg.Event, err)
			return
		}
	}
	ev.Kind = Kind(msg.Event)
	ev.ID = c.newID()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = c.now()
	}

	switch ev.Kind {
	case KindOrderStatusChanged:
		ev.Read = false
		c.publishEvent(ev)
		c.history.Add(ev)
		c.toasts.Success(ev.Message)

	case KindNewOrder:
		ev.Read = false
		ev.Title = "New Order #" + ev.OrderID
		total := 0.0
		if ev.TotalAmount != nil {
			total = *ev.TotalAmount
		}
		ev.Message = fmt.Sprintf("New Order from %s - $%.2f", ev.CustomerName, total)
		c.publishEvent(ev)
		c.history.Add(ev)
		c.toasts.Info(ev.Message)

	case KindStockChanged, KindPriceChanged:
		// Transient ticks: typed stream only, never history or unread.
		c.publishEvent(ev)

	case KindGeneric:
		ev.Read = false
		c.publishEvent(ev)
		c.history.Add(ev)
		switch ev.Severity {
		case "success":
			c.toasts.Success(ev.Message)
		case "error":
			c.toasts.Error(ev.Message)
		case "warning":
			c.toasts.Warning(ev.Message)
		default:
			c.toasts.Info(ev.Message)
		}

	default:
		log.Printf("notify: unknown event %q", msg.Event)
	}
}

// Subscribe streams events of one kind. The returned func cancels the
// subscription.
func (c *Channel) Subscribe(kind Kind) (<-chan Event, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	if c.eventSubs[kind] == nil {
		c.eventSubs[kind] = make(map[int]chan Event)
	}
	id := c.nextSub
	c.nextSub++
	ch := make(chan Event, 16)
	c.eventSubs[kind][id] = ch
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.eventSubs[kind], id)
	}
}

// SubscribeState streams connection state transitions.
func (c *Channel) SubscribeState() (<-chan State, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	id := c.nextSub
	c.nextSub++
	ch := make(chan State, 8)
	c.stateSubs[id] = ch
	return ch, func() {
		c.subMu.Lock()
		defer c.subMu.Unlock()
		delete(c.stateSubs, id)
	}
}

func (c *Channel) SubscribeToProduct(productID string) error {
	return c.invoke("SubscribeToProduct", subscribeTarget{ProductID: productID})
}

func (c *Channel) UnsubscribeFromProduct(productID string) error {
	return c.invoke("UnsubscribeFromProduct", subscribeTarget{ProductID: productID})
}

func (c *Channel) SubscribeToOrder(orderID string) error {
	return c.invoke("SubscribeToOrder", subscribeTarget{OrderID: orderID})
}

func (c *Channel) UnsubscribeFromOrder(orderID string) error {
	return c.invoke("UnsubscribeFromOrder", subscribeTarget{OrderID: orderID})
}

func (c *Channel) invoke(event string, payload any) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()
	if conn == nil || state != Connected {
		return ErrTransportUnavailable
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(wireMessage{Event: event, Data: raw})
}

func (c *Channel) publishEvent(ev Event) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.eventSubs[ev.Kind] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.setStateLocked(s)
	c.mu.Unlock()
}

func (c *Channel) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	c.subMu.Lock()
	for _, ch := range c.stateSubs {
		select {
		case ch <- s:
		default:
		}
	}
	c.subMu.Unlock()
}

func closed(done chan struct{}) bool {
	select {
	case <-done:
		return true
	default:
		return false
	}
}
