package devserver

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type clientMessage struct {
	Event string `json:"event"`
	Data  struct {
		ProductID string `json:"productId"`
		OrderID   string `json:"orderId"`
	} `json:"data"`
}

// handleSocket upgrades the notification channel. The access token rides the
// query string because browser websockets cannot set headers.
func (s *Server) handleSocket(c *gin.Context) {
	claims, err := s.tokens.Validate(c.Query("access_token"))
	if err != nil {
		Error(c, http.StatusUnauthorized, "Missing or invalid token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	connID := uuid.NewString()
	s.hub.Register(connID, claims.Subject, claims.Role, conn)
	defer s.hub.Unregister(connID)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		switch msg.Event {
		case "SubscribeToProduct":
			if msg.Data.ProductID != "" {
				s.hub.Join(connID, "product:"+msg.Data.ProductID)
			}
		case "UnsubscribeFromProduct":
			if msg.Data.ProductID != "" {
				s.hub.Leave(connID, "product:"+msg.Data.ProductID)
			}
		case "SubscribeToOrder":
			if msg.Data.OrderID != "" {
				s.hub.Join(connID, "order:"+msg.Data.OrderID)
			}
		case "UnsubscribeFromOrder":
			if msg.Data.OrderID != "" {
				s.hub.Leave(connID, "order:"+msg.Data.OrderID)
			}
		}
	}
}
