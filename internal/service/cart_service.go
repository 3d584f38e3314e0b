package service

import (
	"context"
	"strings"
	"time"

	"planora/internal/domain"
	"planora/internal/models"

	"github.com/rs/zerolog"
)

type CartService struct {
	repo    domain.CartRepository
	vendors domain.VendorRepository
	logger  *zerolog.Logger
	now     func() time.Time
}

func NewCartService(repo domain.CartRepository, vendors domain.VendorRepository, logger *zerolog.Logger) *CartService {
	return &CartService{repo: repo, vendors: vendors, logger: logger, now: time.Now}
}

func (s *CartService) GetCart(ctx context.Context, userID string) ([]models.CartItem, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, validationError("userId is required")
	}
	return s.repo.GetCart(ctx, userID)
}

// AddItem puts a vendor service into the cart. Adding the same service again
// increases its quantity.
func (s *CartService) AddItem(ctx context.Context, userID string, item models.CartItem) ([]models.CartItem, error) {
	userID = strings.TrimSpace(userID)
	item.ServiceID = strings.TrimSpace(item.ServiceID)
	if userID == "" || item.ServiceID == "" {
		return nil, validationError("userId and serviceId are required")
	}
	if item.Quantity < 0 || item.Quantity > models.MaxCartQuantity {
		return nil, validationError("quantity must be between 1 and %d", models.MaxCartQuantity)
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}

	if s.vendors != nil {
		vendor, err := s.vendors.GetVendor(ctx, item.ServiceID)
		if err != nil {
			return nil, err
		}
		if item.PackageID != "" {
			if _, ok := vendor.FindPackage(item.PackageID); !ok {
				return nil, validationError("package %s not offered by %s", item.PackageID, item.ServiceID)
			}
		}
	}

	item.AddedAt = s.now().UTC()
	if err := s.repo.AddItem(ctx, userID, item); err != nil {
		return nil, err
	}
	return s.repo.GetCart(ctx, userID)
}

func (s *CartService) RemoveItem(ctx context.Context, userID, serviceID string) error {
	if userID == "" || serviceID == "" {
		return validationError("userId and serviceId are required")
	}
	return s.repo.RemoveItem(ctx, userID, serviceID)
}

func (s *CartService) ClearCart(ctx context.Context, userID string) error {
	if userID == "" {
		return validationError("userId is required")
	}
	return s.repo.ClearCart(ctx, userID)
}
