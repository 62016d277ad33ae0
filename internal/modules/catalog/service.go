package catalog

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"storefront/internal/modules/pipeline"
	"storefront/internal/pkg/idempotency"
	"storefront/internal/pkg/validator"
)

const basePath = "/api/products"

// Client is the typed product API surface. All calls flow through the
// request pipeline.
type Client struct {
	api *pipeline.Client
}

func NewClient(api *pipeline.Client) *Client {
	return &Client{api: api}
}

func (c *Client) List(ctx context.Context, params QueryParams) (*PagedProducts, error) {
	query := url.Values{}
	query.Set("pageNumber", strconv.Itoa(params.PageNumber))
	query.Set("pageSize", strconv.Itoa(params.PageSize))
	if params.SearchTerm != "" {
		query.Set("searchTerm", params.SearchTerm)
	}
	if params.CategoryID != "" {
		query.Set("categoryId", params.CategoryID)
	}
	if params.SortBy != "" {
		query.Set("sortBy", params.SortBy)
	}
	if params.IsDescending != nil {
		query.Set("isDescending", strconv.FormatBool(*params.IsDescending))
	}

	var page PagedProducts
	if err := c.api.Get(ctx, basePath, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) Get(ctx context.Context, id string) (*Product, error) {
	var product Product
	if err := c.api.Get(ctx, basePath+"/"+id, nil, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

// Create submits a new product; the idempotency key deduplicates
// retransmission of the same submission.
func (c *Client) Create(ctx context.Context, req CreateProductRequest, idempotencyKey string) (*Product, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(idempotency.Header, idempotencyKey)
	var product Product
	if err := c.api.Post(ctx, basePath, req, &product, header); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) Update(ctx context.Context, id string, req UpdateProductRequest) (*Product, error) {
	if err := validator.Validate(req); err != nil {
		return nil, err
	}

	var product Product
	if err := c.api.Put(ctx, basePath+"/"+id, req, &product); err != nil {
		return nil, err
	}
	return &product, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.api.Delete(ctx, basePath+"/"+id)
}
