package notify

import (
	"encoding/json"
	"time"
)

// Kind names match the server-side event names pushed over the channel.
type Kind string

const (
	KindOrderStatusChanged Kind = "OrderStatusChanged"
	KindNewOrder           Kind = "NewOrder"
	KindStockChanged       Kind = "StockChanged"
	KindPriceChanged       Kind = "PriceChanged"
	KindGeneric            Kind = "Notification"
)

// Event is one server-pushed notification. ID and Read are assigned locally
// on receipt, never by the server.
type Event struct {
	ID           string    `json:"id,omitempty"`
	Kind         Kind      `json:"type,omitempty"`
	Title        string    `json:"title,omitempty"`
	Message      string    `json:"message"`
	Severity     string    `json:"notificationType,omitempty"`
	OrderID      string    `json:"orderId,omitempty"`
	Status       string    `json:"status,omitempty"`
	ProductID    string    `json:"productId,omitempty"`
	Stock        *int      `json:"stock,omitempty"`
	Price        *float64  `json:"price,omitempty"`
	CustomerName string    `json:"customerName,omitempty"`
	TotalAmount  *float64  `json:"totalAmount,omitempty"`
	UserID       string    `json:"userId,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
}

// wireMessage is the channel's frame in both directions: a named event plus
// its JSON payload.
type wireMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// State of the channel connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}
