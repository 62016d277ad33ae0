package orders

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/modules/pipeline"
	"storefront/internal/pkg/idempotency"
	"storefront/internal/pkg/validator"
)

const basePath = "/api/orders"

// Client is the typed order API surface.
type Client struct {
	api *pipeline.Client
}

func NewClient(api *pipeline.Client) *Client {
	return &Client{api: api}
}

// Create places an order. The idempotency key makes a double-clicked
// checkout place one order, not two.
func (c *Client) Create(ctx context.Context, req CreateOrderRequest, idempotencyKey string) (*OrderDetail, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(idempotency.Header, idempotencyKey)
	var detail OrderDetail
	if err := c.api.Post(ctx, basePath, req, &detail, header); err != nil {
		return nil, err
	}
	return &detail, nil
}

// Mine lists the current user's orders.
func (c *Client) Mine(ctx context.Context) ([]Order, error) {
	var list []Order
	if err := c.api.Get(ctx, basePath+"/user", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (c *Client) Get(ctx context.Context, id string) (*OrderDetail, error) {
	var detail OrderDetail
	if err := c.api.Get(ctx, basePath+"/"+id, nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// ListAll is the admin management listing with status and search filters.
func (c *Client) ListAll(ctx context.Context, params QueryParams) (*PagedAdminOrders, error) {
	query := url.Values{}
	query.Set("pageNumber", strconv.Itoa(params.PageNumber))
	query.Set("pageSize", strconv.Itoa(params.PageSize))
	if params.Status != "" {
		query.Set("status", params.Status)
	}
	if params.SearchTerm != "" {
		query.Set("searchTerm", params.SearchTerm)
	}

	var page PagedAdminOrders
	if err := c.api.Get(ctx, basePath, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// UpdateStatus moves an order through its lifecycle (admin only).
func (c *Client) UpdateStatus(ctx context.Context, id, status string) (*Order, error) {
	var order Order
	if err := c.api.Patch(ctx, basePath+"/"+id+"/status", updateStatusRequest{Status: status}, &order); err != nil {
		return nil, err
	}
	return &order, nil
}
