package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"planora/internal/domain"
	"planora/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverCartRepository serves carts from Redis and switches to the
// in-memory store on the first Redis error, probing Redis again once per
// recoveryInterval.
type FailoverCartRepository struct {
	primary   domain.CartRepository
	fallback  domain.CartRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverCartRepository(primary, fallback domain.CartRepository, logger *zerolog.Logger) *FailoverCartRepository {
	return &FailoverCartRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

// IsDegraded reports whether requests are being served from the fallback.
func (r *FailoverCartRepository) IsDegraded() bool {
	return r.isDown.Load()
}

func (r *FailoverCartRepository) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary cart repository failed, falling back to memory")
	}
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
}

// usePrimary decides whether the next call goes to Redis.
func (r *FailoverCartRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	// Пробуем восстановиться не чаще раза в минуту
	if time.Since(r.lastCheck) > recoveryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverCartRepository) recovered() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary cart repository recovered")
	}
}

func (r *FailoverCartRepository) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	if r.usePrimary() {
		items, err := r.primary.GetCart(ctx, userID)
		if err == nil {
			r.recovered()
			return items, nil
		}
		r.markDown(err)
	}
	return r.fallback.GetCart(ctx, userID)
}

func (r *FailoverCartRepository) AddItem(ctx context.Context, userID string, item models.CartItem) error {
	if r.usePrimary() {
		err := r.primary.AddItem(ctx, userID, item)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.AddItem(ctx, userID, item)
}

func (r *FailoverCartRepository) RemoveItem(ctx context.Context, userID, serviceID string) error {
	if r.usePrimary() {
		err := r.primary.RemoveItem(ctx, userID, serviceID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.RemoveItem(ctx, userID, serviceID)
}

func (r *FailoverCartRepository) ClearCart(ctx context.Context, userID string) error {
	if r.usePrimary() {
		err := r.primary.ClearCart(ctx, userID)
		if err == nil {
			r.recovered()
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearCart(ctx, userID)
}

func (r *FailoverCartRepository) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.usePrimary() {
		allowed, err := r.primary.CheckRateLimit(ctx, key, limit, window)
		if err == nil {
			r.recovered()
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, key, limit, window)
}
