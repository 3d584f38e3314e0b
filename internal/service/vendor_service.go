package service

import (
	"context"
	"sort"
	"strings"

	"planora/internal/domain"
	"planora/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	SortExperience = "experience"
	SortRating     = "rating"
	SortName       = "name"
	SortServices   = "services"
)

// VendorQuery filters the vendor catalogue. Empty or "all" category and city
// mean no filter; an empty Sort keeps the store order.
type VendorQuery struct {
	Category string
	City     string
	Search   string
	Sort     string
	Desc     bool
}

type VendorService struct {
	repo   domain.VendorRepository
	logger *zerolog.Logger
}

func NewVendorService(repo domain.VendorRepository, logger *zerolog.Logger) *VendorService {
	return &VendorService{repo: repo, logger: logger}
}

func (s *VendorService) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

// SaveVendor creates or replaces a listing. Packages are stored as written.
func (s *VendorService) SaveVendor(ctx context.Context, in *models.VendorInput) (*models.Vendor, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	in.City = strings.TrimSpace(in.City)
	if in.Name == "" {
		return nil, validationError("name is required")
	}
	if in.Category == "" {
		return nil, validationError("category is required")
	}
	if in.Rating < 0 || in.Rating > 5 {
		return nil, validationError("rating must be between 0 and 5")
	}
	if in.ExperienceYears < 0 {
		return nil, validationError("experienceYears must not be negative")
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	return s.repo.UpsertVendor(ctx, in)
}

// Search fetches by category from the store and filters the rest in memory.
func (s *VendorService) Search(ctx context.Context, q VendorQuery) ([]models.Vendor, error) {
	category := normalizeFilter(q.Category)
	vendors, err := s.repo.ListVendors(ctx, category)
	if err != nil {
		return nil, err
	}

	city := normalizeFilter(q.City)
	needle := strings.ToLower(strings.TrimSpace(q.Search))

	out := make([]models.Vendor, 0, len(vendors))
	for _, v := range vendors {
		if city != "" && strings.TrimSpace(v.City) != city {
			continue
		}
		if needle != "" && !matchesText(v, needle) {
			continue
		}
		out = append(out, v)
	}

	if less := vendorLess(q.Sort); less != nil {
		sort.SliceStable(out, func(i, j int) bool {
			if q.Desc {
				return less(out[j], out[i])
			}
			return less(out[i], out[j])
		})
	}
	return out, nil
}

func normalizeFilter(v string) string {
	v = strings.TrimSpace(v)
	if strings.EqualFold(v, "all") {
		return ""
	}
	return v
}

func matchesText(v models.Vendor, needle string) bool {
	for _, field := range []string{v.Name, v.BusinessName, v.Description, v.Location} {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

func vendorLess(key string) func(a, b models.Vendor) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case SortExperience:
		return func(a, b models.Vendor) bool { return a.ExperienceYears < b.ExperienceYears }
	case SortRating:
		return func(a, b models.Vendor) bool { return a.Rating < b.Rating }
	case SortName:
		return func(a, b models.Vendor) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case SortServices:
		return func(a, b models.Vendor) bool { return len(a.Packages) < len(b.Packages) }
	}
	return nil
}

// ValidSort reports whether key is empty or a known sort key.
func ValidSort(key string) bool {
	return strings.TrimSpace(key) == "" || vendorLess(key) != nil
}
