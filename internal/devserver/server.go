package devserver

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"storefront/internal/config"
	"storefront/internal/modules/catalog"
	"storefront/internal/modules/orders"
	"storefront/internal/modules/session"
	"storefront/internal/pkg/idempotency"
	"storefront/internal/pkg/token"
)

type userRecord struct {
	ID           string
	Email        string
	PasswordHash []byte
	FirstName    string
	LastName     string
	Role         string
}

type refreshRecord struct {
	UserID    string
	ExpiresAt time.Time
}

type orderRecord struct {
	detail        orders.OrderDetail
	userID        string
	customerName  string
	customerEmail string
}

type storedResponse struct {
	status int
	body   any
}

var discountCodes = map[string]float64{
	"WELCOME10": 0.10,
	"SUMMER20":  0.20,
}

// Server is the in-memory stub API used for local development and the
// end-to-end tests. It speaks the same HTTP and websocket contract as the
// production backend.
type Server struct {
	tokens     *token.Service
	refreshTTL time.Duration
	hub        *Hub

	mu            sync.Mutex
	usersByEmail  map[string]*userRecord
	usersByID     map[string]*userRecord
	refreshTokens map[string]refreshRecord
	products      []*catalog.Product
	orders        []*orderRecord
	idempotent    map[string]storedResponse
	categoryNames map[string]string
}

func New(cfg *config.DevServerConfig) *Server {
	s := &Server{
		tokens:        token.New(cfg.JWTSecret, cfg.AccessTTL),
		refreshTTL:    cfg.RefreshTTL,
		hub:           NewHub(),
		usersByEmail:  make(map[string]*userRecord),
		usersByID:     make(map[string]*userRecord),
		refreshTokens: make(map[string]refreshRecord),
		idempotent:    make(map[string]storedResponse),
		categoryNames: map[string]string{
			"cat-electronics": "Electronics",
			"cat-books":       "Books",
			"cat-home":        "Home & Kitchen",
		},
	}
	s.seed()
	return s
}

func (s *Server) Hub() *Hub {
	return s.hub
}

func (s *Server) seed() {
	s.addUser("admin@shop.local", "admin123", "Ada", "Adminova", session.RoleAdmin)
	s.addUser("customer@shop.local", "customer123", "Carl", "Customerov", "Customer")

	s.products = []*catalog.Product{
		{ID: uuid.NewString(), Name: "Wireless Mouse", Description: "Compact 2.4GHz mouse", Price: 24.99, Stock: 120, CategoryID: "cat-electronics", CategoryName: "Electronics", IsActive: true},
		{ID: uuid.NewString(), Name: "Mechanical Keyboard", Description: "87-key, brown switches", Price: 89.99, Stock: 45, CategoryID: "cat-electronics", CategoryName: "Electronics", IsActive: true},
		{ID: uuid.NewString(), Name: "The Go Programming Language", Description: "Donovan & Kernighan", Price: 39.95, Stock: 30, CategoryID: "cat-books", CategoryName: "Books", IsActive: true},
		{ID: uuid.NewString(), Name: "French Press", Description: "1L borosilicate glass", Price: 27.50, Stock: 60, CategoryID: "cat-home", CategoryName: "Home & Kitchen", IsActive: true},
	}
}

func (s *Server) addUser(email, password, firstName, lastName, role string) *userRecord {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	u := &userRecord{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(email),
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		Role:         role,
	}
	s.usersByEmail[u.Email] = u
	s.usersByID[u.ID] = u
	return u
}

// Router builds the full route table.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", s.login)
		auth.POST("/register", s.register)
		auth.POST("/refresh-token", s.refreshToken)
	}

	products := r.Group("/api/products")
	{
		products.GET("", s.listProducts)
		products.GET("/:id", s.getProduct)
		admin := products.Group("", s.requireAuth, s.requireAdmin)
		{
			admin.POST("", s.createProduct)
			admin.PUT("/:id", s.updateProduct)
			admin.DELETE("/:id", s.deleteProduct)
		}
	}

	ordersGroup := r.Group("/api/orders", s.requireAuth)
	{
		ordersGroup.POST("", s.createOrder)
		ordersGroup.GET("/user", s.myOrders)
		ordersGroup.GET("/:id", s.getOrder)
		ordersGroup.GET("", s.requireAdmin, s.listAllOrders)
		ordersGroup.PATCH("/:id/status", s.requireAdmin, s.updateOrderStatus)
	}

	r.GET("/hubs/app", s.handleSocket)

	return r
}

// --- middleware ---

func (s *Server) requireAuth(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		Error(c, http.StatusUnauthorized, "Missing or invalid token")
		return
	}
	claims, err := s.tokens.Validate(strings.TrimPrefix(header, "Bearer "))
	if err != nil {
		Error(c, http.StatusUnauthorized, "Missing or invalid token")
		return
	}
	c.Set("user_id", claims.Subject)
	c.Set("role", claims.Role)
	c.Next()
}

func (s *Server) requireAdmin(c *gin.Context) {
	if c.GetString("role") != session.RoleAdmin {
		Error(c, http.StatusForbidden, "Admin role required")
		return
	}
	c.Next()
}

// replayIdempotent serves the stored response when the key was seen before.
// Callers store via rememberIdempotent after a successful write.
func (s *Server) replayIdempotent(c *gin.Context) bool {
	key := c.GetHeader(idempotency.Header)
	if key == "" {
		return false
	}
	s.mu.Lock()
	stored, seen := s.idempotent[key]
	s.mu.Unlock()
	if !seen {
		return false
	}
	c.JSON(stored.status, stored.body)
	return true
}

func (s *Server) rememberIdempotent(c *gin.Context, status int, body any) {
	key := c.GetHeader(idempotency.Header)
	if key == "" {
		return
	}
	s.mu.Lock()
	s.idempotent[key] = storedResponse{status: status, body: body}
	s.mu.Unlock()
}

// --- auth handlers ---

func (s *Server) login(c *gin.Context) {
	var req session.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	user := s.usersByEmail[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if user == nil || bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(req.Password)) != nil {
		Error(c, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	resp, err := s.issuePair(user)
	if err != nil {
		Error(c, http.StatusInternalServerError, "Token generation failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) register(c *gin.Context) {
	if s.replayIdempotent(c) {
		return
	}

	var req session.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	email := strings.ToLower(req.Email)
	s.mu.Lock()
	_, exists := s.usersByEmail[email]
	s.mu.Unlock()
	if exists {
		Error(c, http.StatusBadRequest, "Email already registered")
		return
	}

	s.mu.Lock()
	user := s.addUser(email, req.Password, req.FirstName, req.LastName, "Customer")
	s.mu.Unlock()

	resp := session.RegisterResponse{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
		Message:   "Registration successful",
	}
	s.rememberIdempotent(c, http.StatusCreated, resp)
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) refreshToken(c *gin.Context) {
	var req struct {
		Token        string `json:"token"`
		RefreshToken string `json:"refreshToken"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	record, ok := s.refreshTokens[req.RefreshToken]
	if ok {
		delete(s.refreshTokens, req.RefreshToken) // single use
	}
	user := s.usersByID[record.UserID]
	s.mu.Unlock()

	if !ok || user == nil || time.Now().After(record.ExpiresAt) {
		Error(c, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	resp, err := s.issuePair(user)
	if err != nil {
		Error(c, http.StatusInternalServerError, "Token generation failed")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) issuePair(user *userRecord) (*session.LoginResponse, error) {
	access, err := s.tokens.Generate(user.ID, user.Email, user.FirstName, user.LastName, user.Role)
	if err != nil {
		return nil, err
	}
	refresh := uuid.NewString()

	s.mu.Lock()
	s.refreshTokens[refresh] = refreshRecord{UserID: user.ID, ExpiresAt: time.Now().Add(s.refreshTTL)}
	s.mu.Unlock()

	return &session.LoginResponse{
		Token:        access,
		RefreshToken: refresh,
		Email:        user.Email,
		Role:         user.Role,
		FirstName:    user.FirstName,
		LastName:     user.LastName,
	}, nil
}

// --- product handlers ---

func (s *Server) listProducts(c *gin.Context) {
	pageNumber := queryInt(c, "pageNumber", 1)
	pageSize := queryInt(c, "pageSize", 10)
	searchTerm := strings.ToLower(c.Query("searchTerm"))
	categoryID := c.Query("categoryId")
	sortBy := c.Query("sortBy")
	descending := c.Query("isDescending") == "true"

	s.mu.Lock()
	filtered := make([]catalog.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.IsActive {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if searchTerm != "" &&
			!strings.Contains(strings.ToLower(p.Name), searchTerm) &&
			!strings.Contains(strings.ToLower(p.Description), searchTerm) {
			continue
		}
		filtered = append(filtered, *p)
	}
	s.mu.Unlock()

	sort.SliceStable(filtered, func(i, j int) bool {
		var less bool
		switch sortBy {
		case "price":
			less = filtered[i].Price < filtered[j].Price
		case "stock":
			less = filtered[i].Stock < filtered[j].Stock
		default:
			less = filtered[i].Name < filtered[j].Name
		}
		if descending {
			return !less
		}
		return less
	})

	c.JSON(http.StatusOK, paginate(filtered, pageNumber, pageSize))
}

func (s *Server) getProduct(c *gin.Context) {
	s.mu.Lock()
	p := s.findProductLocked(c.Param("id"))
	s.mu.Unlock()
	if p == nil {
		Error(c, http.StatusNotFound, "Product not found")
		return
	}
	c.JSON(http.StatusOK, *p)
}

func (s *Server) createProduct(c *gin.Context) {
	if s.replayIdempotent(c) {
		return
	}

	var req catalog.CreateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	product := catalog.Product{
		ID:           uuid.NewString(),
		Name:         req.Name,
		Description:  req.Description,
		Price:        req.Price,
		Stock:        req.Stock,
		CategoryID:   req.CategoryID,
		CategoryName: s.categoryNames[req.CategoryID],
		ImageURL:     req.ImageURL,
		IsActive:     true,
	}

	s.mu.Lock()
	s.products = append(s.products, &product)
	s.mu.Unlock()

	s.rememberIdempotent(c, http.StatusCreated, product)
	c.JSON(http.StatusCreated, product)
}

func (s *Server) updateProduct(c *gin.Context) {
	var req catalog.UpdateProductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.Lock()
	p := s.findProductLocked(c.Param("id"))
	if p == nil {
		s.mu.Unlock()
		Error(c, http.StatusNotFound, "Product not found")
		return
	}
	oldStock, oldPrice := p.Stock, p.Price
	p.Name = req.Name
	p.Description = req.Description
	p.Price = req.Price
	p.Stock = req.Stock
	p.CategoryID = req.CategoryID
	p.CategoryName = s.categoryNames[req.CategoryID]
	p.ImageURL = req.ImageURL
	p.IsActive = req.IsActive
	updated := *p
	s.mu.Unlock()

	if updated.Stock != oldStock {
		s.pushStockChanged(updated)
	}
	if updated.Price != oldPrice {
		s.hub.BroadcastGroup("product:"+updated.ID, "PriceChanged", gin.H{
			"productId": updated.ID,
			"price":     updated.Price,
			"message":   updated.Name + " price is now $" + strconv.FormatFloat(updated.Price, 'f', 2, 64),
			"timestamp": time.Now().UTC(),
		})
	}

	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteProduct(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	found := false
	kept := s.products[:0]
	for _, p := range s.products {
		if p.ID == id {
			found = true
			continue
		}
		kept = append(kept, p)
	}
	s.products = kept
	s.mu.Unlock()

	if !found {
		Error(c, http.StatusNotFound, "Product not found")
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) findProductLocked(id string) *catalog.Product {
	for _, p := range s.products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (s *Server) pushStockChanged(p catalog.Product) {
	s.hub.BroadcastGroup("product:"+p.ID, "StockChanged", gin.H{
		"productId": p.ID,
		"stock":     p.Stock,
		"message":   p.Name + " stock is now " + strconv.Itoa(p.Stock),
		"timestamp": time.Now().UTC(),
	})
}

// --- order handlers ---

func (s *Server) createOrder(c *gin.Context) {
	if s.replayIdempotent(c) {
		return
	}

	var req orders.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Items) == 0 {
		Error(c, http.StatusBadRequest, "Order must contain at least one item")
		return
	}

	userID := c.GetString("user_id")
	s.mu.Lock()
	user := s.usersByID[userID]
	if user == nil {
		s.mu.Unlock()
		Error(c, http.StatusUnauthorized, "Unknown user")
		return
	}

	lines := make([]orders.OrderLine, 0, len(req.Items))
	subTotal := 0.0
	changedStock := make([]catalog.Product, 0, len(req.Items))
	for _, item := range req.Items {
		p := s.findProductLocked(item.ProductID)
		if p == nil || !p.IsActive {
			s.mu.Unlock()
			Error(c, http.StatusBadRequest, "Unknown product "+item.ProductID)
			return
		}
		if item.Quantity <= 0 || p.Stock < item.Quantity {
			s.mu.Unlock()
			Error(c, http.StatusBadRequest, "Insufficient stock for "+p.Name)
			return
		}
		p.Stock -= item.Quantity
		changedStock = append(changedStock, *p)
		line := orders.OrderLine{
			ProductID:   p.ID,
			ProductName: p.Name,
			Quantity:    item.Quantity,
			UnitPrice:   p.Price,
			Subtotal:    p.Price * float64(item.Quantity),
		}
		subTotal += line.Subtotal
		lines = append(lines, line)
	}

	discount := 0.0
	code := strings.ToUpper(strings.TrimSpace(req.DiscountCode))
	if rate, ok := discountCodes[code]; ok {
		discount = subTotal * rate
	} else {
		code = ""
	}

	record := &orderRecord{
		detail: orders.OrderDetail{
			OrderID:        uuid.NewString(),
			OrderDate:      time.Now().UTC(),
			SubTotal:       subTotal,
			DiscountAmount: discount,
			TotalAmount:    subTotal - discount,
			Status:         orders.StatusPending,
			DiscountCode:   code,
			Items:          lines,
		},
		userID:        user.ID,
		customerName:  user.FirstName + " " + user.LastName,
		customerEmail: user.Email,
	}
	s.orders = append(s.orders, record)
	detail := record.detail
	customerName := record.customerName
	s.mu.Unlock()

	for _, p := range changedStock {
		s.pushStockChanged(p)
	}
	s.hub.BroadcastRole(session.RoleAdmin, "NewOrder", gin.H{
		"orderId":      detail.OrderID,
		"customerName": customerName,
		"totalAmount":  detail.TotalAmount,
		"timestamp":    detail.OrderDate,
	})

	s.rememberIdempotent(c, http.StatusCreated, detail)
	c.JSON(http.StatusCreated, detail)
}

func (s *Server) myOrders(c *gin.Context) {
	userID := c.GetString("user_id")

	s.mu.Lock()
	list := make([]orders.Order, 0)
	for _, record := range s.orders {
		if record.userID != userID {
			continue
		}
		list = append(list, summarize(record.detail))
	}
	s.mu.Unlock()

	sort.Slice(list, func(i, j int) bool { return list[i].OrderDate.After(list[j].OrderDate) })
	c.JSON(http.StatusOK, list)
}

func (s *Server) getOrder(c *gin.Context) {
	id := c.Param("id")

	s.mu.Lock()
	record := s.findOrderLocked(id)
	s.mu.Unlock()

	if record == nil {
		Error(c, http.StatusNotFound, "Order not found")
		return
	}
	if record.userID != c.GetString("user_id") && c.GetString("role") != session.RoleAdmin {
		Error(c, http.StatusForbidden, "Not your order")
		return
	}
	c.JSON(http.StatusOK, record.detail)
}

func (s *Server) listAllOrders(c *gin.Context) {
	pageNumber := queryInt(c, "pageNumber", 1)
	pageSize := queryInt(c, "pageSize", 10)
	status := c.Query("status")
	searchTerm := strings.ToLower(c.Query("searchTerm"))

	s.mu.Lock()
	rows := make([]orders.AdminOrder, 0, len(s.orders))
	for _, record := range s.orders {
		if status != "" && record.detail.Status != status {
			continue
		}
		if searchTerm != "" &&
			!strings.Contains(strings.ToLower(record.customerName), searchTerm) &&
			!strings.Contains(strings.ToLower(record.customerEmail), searchTerm) {
			continue
		}
		rows = append(rows, orders.AdminOrder{
			ID:             record.detail.OrderID,
			UserID:         record.userID,
			CustomerName:   record.customerName,
			CustomerEmail:  record.customerEmail,
			OrderDate:      record.detail.OrderDate,
			SubTotal:       record.detail.SubTotal,
			DiscountAmount: record.detail.DiscountAmount,
			TotalAmount:    record.detail.TotalAmount,
			Status:         record.detail.Status,
			ItemCount:      len(record.detail.Items),
		})
	}
	s.mu.Unlock()

	sort.Slice(rows, func(i, j int) bool { return rows[i].OrderDate.After(rows[j].OrderDate) })

	total := int64(len(rows))
	start := (pageNumber - 1) * pageSize
	if start > len(rows) {
		start = len(rows)
	}
	end := start + pageSize
	if end > len(rows) {
		end = len(rows)
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	c.JSON(http.StatusOK, orders.PagedAdminOrders{
		Items:           rows[start:end],
		TotalItems:      total,
		PageNumber:      pageNumber,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasPreviousPage: pageNumber > 1,
		HasNextPage:     pageNumber < totalPages,
	})
}

var validStatuses = map[string]bool{
	orders.StatusPending:    true,
	orders.StatusConfirmed:  true,
	orders.StatusProcessing: true,
	orders.StatusShipped:    true,
	orders.StatusDelivered:  true,
	orders.StatusCancelled:  true,
}

func (s *Server) updateOrderStatus(c *gin.Context) {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !validStatuses[req.Status] {
		Error(c, http.StatusBadRequest, "Invalid order status")
		return
	}

	s.mu.Lock()
	record := s.findOrderLocked(c.Param("id"))
	if record == nil {
		s.mu.Unlock()
		Error(c, http.StatusNotFound, "Order not found")
		return
	}
	record.detail.Status = req.Status
	detail := record.detail
	ownerID := record.userID
	s.mu.Unlock()

	push := gin.H{
		"orderId":   detail.OrderID,
		"status":    detail.Status,
		"message":   "Order #" + detail.OrderID + " is now " + detail.Status,
		"timestamp": time.Now().UTC(),
	}
	s.hub.BroadcastUser(ownerID, "OrderStatusChanged", push)
	s.hub.BroadcastGroup("order:"+detail.OrderID, "OrderStatusChanged", push)

	c.JSON(http.StatusOK, summarize(detail))
}

func (s *Server) findOrderLocked(id string) *orderRecord {
	for _, record := range s.orders {
		if record.detail.OrderID == id {
			return record
		}
	}
	return nil
}

func summarize(detail orders.OrderDetail) orders.Order {
	itemCount := 0
	for _, line := range detail.Items {
		itemCount += line.Quantity
	}
	return orders.Order{
		ID:          detail.OrderID,
		OrderDate:   detail.OrderDate,
		TotalAmount: detail.TotalAmount,
		Status:      detail.Status,
		ItemCount:   itemCount,
	}
}

func paginate(items []catalog.Product, pageNumber, pageSize int) catalog.PagedProducts {
	total := int64(len(items))
	start := (pageNumber - 1) * pageSize
	if start > len(items) {
		start = len(items)
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))

	return catalog.PagedProducts{
		Items:           items[start:end],
		TotalItems:      total,
		PageNumber:      pageNumber,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasPreviousPage: pageNumber > 1,
		HasNextPage:     pageNumber < totalPages,
	}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
