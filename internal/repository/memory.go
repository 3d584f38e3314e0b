package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"planora/internal/models"
)

// MemoryCartRepository is the in-process fallback used when Redis is
// unavailable. Carts expire after ttl of inactivity.
type MemoryCartRepository struct {
	mu         sync.Mutex
	carts      map[string]*memoryCart
	rateLimits sync.Map
	ttl        time.Duration
	now        func() time.Time
}

type memoryCart struct {
	items     map[string]models.CartItem
	expiresAt time.Time
}

func NewMemoryCartRepository(ttl time.Duration) *MemoryCartRepository {
	return &MemoryCartRepository{
		carts: make(map[string]*memoryCart),
		ttl:   ttl,
		now:   time.Now,
	}
}

// cart returns the live cart of a user; the caller holds r.mu.
func (r *MemoryCartRepository) cart(userID string, create bool) *memoryCart {
	c, ok := r.carts[userID]
	if ok && r.ttl > 0 && r.now().After(c.expiresAt) {
		delete(r.carts, userID)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		c = &memoryCart{items: make(map[string]models.CartItem)}
		r.carts[userID] = c
	}
	return c
}

func (r *MemoryCartRepository) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cart(userID, false)
	if c == nil {
		return []models.CartItem{}, nil
	}
	items := make([]models.CartItem, 0, len(c.items))
	for _, item := range c.items {
		items = append(items, item)
	}
	sortCart(items)
	return items, nil
}

func (r *MemoryCartRepository) AddItem(ctx context.Context, userID string, item models.CartItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.cart(userID, true)
	c.items[item.ServiceID] = mergeCartItem(c.items[item.ServiceID], item)
	c.expiresAt = r.now().Add(r.ttl)
	return nil
}

func (r *MemoryCartRepository) RemoveItem(ctx context.Context, userID, serviceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.cart(userID, false); c != nil {
		delete(c.items, serviceID)
	}
	return nil
}

func (r *MemoryCartRepository) ClearCart(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.carts, userID)
	return nil
}

type rateLimitEntry struct {
	mu        sync.Mutex
	count     int
	expiresAt time.Time
}

func (r *MemoryCartRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := r.now()
	val, _ := r.rateLimits.LoadOrStore(key, &rateLimitEntry{expiresAt: now.Add(window)})
	entry := val.(*rateLimitEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if now.After(entry.expiresAt) {
		entry.count = 0
		entry.expiresAt = now.Add(window)
	}
	entry.count++
	return entry.count <= limit, nil
}

// mergeCartItem adds quantities for the same service, capped at
// MaxCartQuantity; the latest package wins.
func mergeCartItem(existing, incoming models.CartItem) models.CartItem {
	if incoming.Quantity <= 0 {
		incoming.Quantity = 1
	}
	if existing.ServiceID != "" {
		incoming.Quantity += existing.Quantity
		if incoming.PackageID == "" {
			incoming.PackageID = existing.PackageID
		}
		incoming.AddedAt = existing.AddedAt
	}
	if incoming.Quantity > models.MaxCartQuantity {
		incoming.Quantity = models.MaxCartQuantity
	}
	return incoming
}

func sortCart(items []models.CartItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].AddedAt.Equal(items[j].AddedAt) {
			return items[i].ServiceID < items[j].ServiceID
		}
		return items[i].AddedAt.Before(items[j].AddedAt)
	})
}
