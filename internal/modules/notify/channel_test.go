package notify

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	token string
}

func (s *staticTokens) AccessToken() string { return s.token }

type recordingToaster struct {
	mu       sync.Mutex
	messages map[string][]string
}

func newRecordingToaster() *recordingToaster {
	return &recordingToaster{messages: make(map[string][]string)}
}

func (r *recordingToaster) add(kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages[kind] = append(r.messages[kind], message)
}

func (r *recordingToaster) Success(message string) { r.add("success", message) }
func (r *recordingToaster) Error(message string)   { r.add("error", message) }
func (r *recordingToaster) Warning(message string) { r.add("warning", message) }
func (r *recordingToaster) Info(message string)    { r.add("info", message) }

func (r *recordingToaster) byKind(kind string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.messages[kind]...)
}

var testUpgrader = websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

// hubStub accepts one connection at a time and exposes it to the test.
type hubStub struct {
	srv   *httptest.Server
	conns chan *websocket.Conn
	seen  chan string // tokens presented on dial
}

func newHubStub(t *testing.T) *hubStub {
	t.Helper()
	h := &hubStub{
		conns: make(chan *websocket.Conn, 4),
		seen:  make(chan string, 4),
	}
	h.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.seen <- r.URL.Query().Get("access_token")
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		h.conns <- conn
	}))
	t.Cleanup(h.srv.Close)
	return h
}

func (h *hubStub) url() string {
	return "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/hubs/app"
}

func (h *hubStub) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-h.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no websocket connection arrived")
		return nil
	}
}

func push(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(wireMessage{Event: event, Data: raw}))
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("state %v never reached", want)
		}
	}
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("event never arrived")
		return Event{}
	}
}

func newTestChannel(t *testing.T, hub *hubStub, token string) (*Channel, *recordingToaster) {
	t.Helper()
	toasts := newRecordingToaster()
	ch := NewChannel(hub.url(), &staticTokens{token: token}, newMemKV(), toasts)
	ch.History().LoadFor("user-1")
	t.Cleanup(ch.Disconnect)
	return ch, toasts
}

func TestConnectWithoutTokenAbortsSilently(t *testing.T) {
	hub := newHubStub(t)
	ch, _ := newTestChannel(t, hub, "")

	ch.Connect()

	assert.Equal(t, Disconnected, ch.State())
	select {
	case <-hub.seen:
		t.Fatal("dial should not happen without a token")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTokenRidesQueryString(t *testing.T) {
	hub := newHubStub(t)
	ch, _ := newTestChannel(t, hub, "tok-123")

	states, cancel := ch.SubscribeState()
	defer cancel()
	ch.Connect()
	hub.accept(t)
	waitState(t, states, Connected)

	assert.Equal(t, "tok-123", <-hub.seen)
}

func TestOrderStatusChangedGoesToHistoryAndToast(t *testing.T) {
	hub := newHubStub(t)
	ch, toasts := newTestChannel(t, hub, "tok")

	states, cancelStates := ch.SubscribeState()
	defer cancelStates()
	events, cancelEvents := ch.Subscribe(KindOrderStatusChanged)
	defer cancelEvents()

	ch.Connect()
	server := hub.accept(t)
	waitState(t, states, Connected)

	push(t, server, "OrderStatusChanged", map[string]any{
		"orderId": "o-1",
		"status":  "Shipped",
		"message": "Order #o-1 is now Shipped",
	})

	ev := waitEvent(t, events)
	assert.Equal(t, KindOrderStatusChanged, ev.Kind)
	assert.Equal(t, "o-1", ev.OrderID)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Read)

	require.Len(t, ch.History().Entries(), 1)
	assert.Equal(t, 1, ch.History().UnreadCount())
	assert.Equal(t, []string{"Order #o-1 is now Shipped"}, toasts.byKind("success"))
}

func TestNewOrderIsFormattedForAdmins(t *testing.T) {
	hub := newHubStub(t)
	ch, toasts := newTestChannel(t, hub, "tok")

	states, cancelStates := ch.SubscribeState()
	defer cancelStates()
	events, cancelEvents := ch.Subscribe(KindNewOrder)
	defer cancelEvents()

	ch.Connect()
	server := hub.accept(t)
	waitState(t, states, Connected)

	push(t, server, "NewOrder", map[string]any{
		"orderId":      "o-7",
		"customerName": "Carl Customerov",
		"totalAmount":  49.90,
	})

	ev := waitEvent(t, events)
	assert.Equal(t, "New Order #o-7", ev.Title)
	assert.Equal(t, "New Order from Carl Customerov - $49.90", ev.Message)
	assert.Equal(t, []string{"New Order from Carl Customerov - $49.90"}, toasts.byKind("info"))
}

func TestStockTickSkipsHistory(t *testing.T) {
	hub := newHubStub(t)
	ch, toasts := newTestChannel(t, hub, "tok")

	states, cancelStates := ch.SubscribeState()
	defer cancelStates()
	events, cancelEvents := ch.Subscribe(KindStockChanged)
	defer cancelEvents()

	ch.Connect()
	server := hub.accept(t)
	waitState(t, states, Connected)

	push(t, server, "StockChanged", map[string]any{"productId": "p-1", "stock": 7})

	ev := waitEvent(t, events)
	require.NotNil(t, ev.Stock)
	assert.Equal(t, 7, *ev.Stock)

	assert.Empty(t, ch.History().Entries())
	assert.Equal(t, 0, ch.History().UnreadCount())
	assert.Empty(t, toasts.byKind("info"))
}

func TestGenericNotificationFollowsSeverity(t *testing.T) {
	hub := newHubStub(t)
	ch, toasts := newTestChannel(t, hub, "tok")

	states, cancelStates := ch.SubscribeState()
	defer cancelStates()
	events, cancelEvents := ch.Subscribe(KindGeneric)
	defer cancelEvents()

	ch.Connect()
	server := hub.accept(t)
	waitState(t, states, Connected)

	push(t, server, "Notification", map[string]any{
		"message":          "Maintenance tonight",
		"notificationType": "warning",
	})
	waitEvent(t, events)

	push(t, server, "Notification", map[string]any{"message": "Hello"})
	waitEvent(t, events)

	assert.Equal(t, []string{"Maintenance tonight"}, toasts.byKind("warning"))
	assert.Equal(t, []string{"Hello"}, toasts.byKind("info"))
	assert.Len(t, ch.History().Entries(), 2)
}

func TestInvokeRequiresConnection(t *testing.T) {
	hub := newHubStub(t)
	ch, _ := newTestChannel(t, hub, "tok")

	err := ch.SubscribeToProduct("p-1")
	assert.ErrorIs(t, err, ErrTransportUnavailable)
}

func TestSubscribeToOrderSendsWireMessage(t *testing.T) {
	hub := newHubStub(t)
	ch, _ := newTestChannel(t, hub, "tok")

	states, cancel := ch.SubscribeState()
	defer cancel()
	ch.Connect()
	server := hub.accept(t)
	waitState(t, states, Connected)

	require.NoError(t, ch.SubscribeToOrder("o-1"))

	var msg wireMessage
	require.NoError(t, server.ReadJSON(&msg))
	assert.Equal(t, "SubscribeToOrder", msg.Event)
	assert.JSONEq(t, `{"orderId":"o-1"}`, string(msg.Data))
}

func TestReconnectsAfterDrop(t *testing.T) {
	hub := newHubStub(t)
	ch, _ := newTestChannel(t, hub, "tok")

	states, cancel := ch.SubscribeState()
	defer cancel()
	ch.Connect()
	first := hub.accept(t)
	waitState(t, states, Connected)

	_ = first.Close()
	waitState(t, states, Reconnecting)

	// first backoff step is immediate
	hub.accept(t)
	waitState(t, states, Connected)
	assert.True(t, ch.IsConnected())
}

func TestDisconnectResetsInMemoryHistory(t *testing.T) {
	hub := newHubStub(t)
	ch, _ := newTestChannel(t, hub, "tok")
	ch.History().Add(Event{ID: "a", Kind: KindGeneric, Message: "m"})

	ch.Disconnect()

	assert.Equal(t, Disconnected, ch.State())
	assert.Empty(t, ch.History().Entries())
}
