package orders

import "time"

// Order statuses as the API reports them.
const (
	StatusPending    = "Pending"
	StatusConfirmed  = "Confirmed"
	StatusProcessing = "Processing"
	StatusShipped    = "Shipped"
	StatusDelivered  = "Delivered"
	StatusCancelled  = "Cancelled"
)

type OrderItem struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type CreateOrderRequest struct {
	Items        []OrderItem `json:"items" validate:"required,min=1,dive"`
	DiscountCode string      `json:"discountCode,omitempty"`
}

type OrderLine struct {
	ProductID   string  `json:"productId"`
	ProductName string  `json:"productName"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
	Subtotal    float64 `json:"subtotal"`
}

// OrderDetail is the full order as returned by create and detail endpoints.
type OrderDetail struct {
	OrderID        string      `json:"orderId"`
	OrderDate      time.Time   `json:"orderDate"`
	SubTotal       float64     `json:"subTotal"`
	DiscountAmount float64     `json:"discountAmount"`
	TotalAmount    float64     `json:"totalAmount"`
	Status         string      `json:"status"`
	DiscountCode   string      `json:"discountCode,omitempty"`
	Items          []OrderLine `json:"items"`
}

// Order is the summary row in the user's order history.
type Order struct {
	ID          string    `json:"id"`
	OrderDate   time.Time `json:"orderDate"`
	TotalAmount float64   `json:"totalAmount"`
	Status      string    `json:"status"`
	ItemCount   int       `json:"itemCount"`
}

// AdminOrder is the management view row with customer details.
type AdminOrder struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	CustomerName   string    `json:"customerName"`
	CustomerEmail  string    `json:"customerEmail"`
	OrderDate      time.Time `json:"orderDate"`
	SubTotal       float64   `json:"subTotal"`
	DiscountAmount float64   `json:"discountAmount"`
	TotalAmount    float64   `json:"totalAmount"`
	Status         string    `json:"status"`
	ItemCount      int       `json:"itemCount"`
}

type QueryParams struct {
	PageNumber int
	PageSize   int
	Status     string
	SearchTerm string
}

type PagedAdminOrders struct {
	Items           []AdminOrder `json:"items"`
	TotalItems      int64        `json:"totalItems"`
	PageNumber      int          `json:"pageNumber"`
	PageSize        int          `json:"pageSize"`
	TotalPages      int          `json:"totalPages"`
	HasPreviousPage bool         `json:"hasPreviousPage"`
	HasNextPage     bool         `json:"hasNextPage"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}
