package cart

import (
	"log"
	"sync"

	"storefront/internal/modules/catalog"
)

const storageKey = "cart"

// KV — the slice of local storage the cart persists through.
type KV interface {
	Get(key string, out any) error
	Set(key string, v any) error
	Delete(key string) error
}

type Item struct {
	Product  catalog.Product `json:"product"`
	Quantity int             `json:"quantity"`
}

// Service is the persisted shopping cart. It survives restarts and is
// cleared on logout.
type Service struct {
	mu    sync.Mutex
	items []Item
	store KV
}

func NewService(store KV) *Service {
	s := &Service{store: store}
	var stored []Item
	if err := store.Get(storageKey, &stored); err == nil {
		s.items = stored
	}
	return s
}

func (s *Service) Add(product catalog.Product, quantity int) {
	if quantity <= 0 {
		quantity = 1
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.items {
		if s.items[i].Product.ID == product.ID {
			s.items[i].Quantity += quantity
			s.saveLocked()
			return
		}
	}
	s.items = append(s.items, Item{Product: product, Quantity: quantity})
	s.saveLocked()
}

func (s *Service) Remove(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(productID)
	s.saveLocked()
}

// UpdateQuantity sets the line quantity; zero or below removes the line.
func (s *Service) UpdateQuantity(productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quantity <= 0 {
		s.removeLocked(productID)
		s.saveLocked()
		return
	}
	for i := range s.items {
		if s.items[i].Product.ID == productID {
			s.items[i].Quantity = quantity
			s.saveLocked()
			return
		}
	}
}

func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.saveLocked()
}

func (s *Service) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	copy(out, s.items)
	return out
}

// Count is the total number of units across all lines.
func (s *Service) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, item := range s.items {
		count += item.Quantity
	}
	return count
}

func (s *Service) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0.0
	for _, item := range s.items {
		total += item.Product.Price * float64(item.Quantity)
	}
	return total
}

func (s *Service) removeLocked(productID string) {
	kept := s.items[:0]
	for _, item := range s.items {
		if item.Product.ID != productID {
			kept = append(kept, item)
		}
	}
	s.items = kept
}

func (s *Service) saveLocked() {
	if err := s.store.Set(storageKey, s.items); err != nil {
		log.Printf("cart: persisting: %v", err)
	}
}
