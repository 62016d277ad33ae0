package catalog

type Product struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Description  string  `json:"description"`
	Price        float64 `json:"price"`
	Stock        int     `json:"stock"`
	CategoryID   string  `json:"categoryId"`
	CategoryName string  `json:"categoryName"`
	ImageURL     string  `json:"imageUrl,omitempty"`
	IsActive     bool    `json:"isActive"`
}

type CreateProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	CategoryID  string  `json:"categoryId" validate:"required"`
	ImageURL    string  `json:"imageUrl,omitempty"`
}

type UpdateProductRequest struct {
	Name        string  `json:"name" validate:"required"`
	Description string  `json:"description"`
	Price       float64 `json:"price" validate:"gte=0"`
	Stock       int     `json:"stock" validate:"gte=0"`
	CategoryID  string  `json:"categoryId" validate:"required"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	IsActive    bool    `json:"isActive"`
}

// QueryParams shape the paginated product listing.
type QueryParams struct {
	PageNumber   int
	PageSize     int
	SearchTerm   string
	CategoryID   string
	SortBy       string
	IsDescending *bool
}

type PagedProducts struct {
	Items           []Product `json:"items"`
	TotalItems      int64     `json:"totalItems"`
	PageNumber      int       `json:"pageNumber"`
	PageSize        int       `json:"pageSize"`
	TotalPages      int       `json:"totalPages"`
	HasPreviousPage bool      `json:"hasPreviousPage"`
	HasNextPage     bool      `json:"hasNextPage"`
}
