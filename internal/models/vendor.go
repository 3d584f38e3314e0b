package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const DefaultPackageName = "Standard package"

// Vendor is a service listing (the "postorder" collection).
type Vendor struct {
	ID              string    `json:"id"`
	OwnerID         string    `json:"ownerId,omitempty"`
	Name            string    `json:"name"`
	BusinessName    string    `json:"businessName,omitempty"`
	Description     string    `json:"description,omitempty"`
	Category        string    `json:"category"`
	City            string    `json:"city"`
	Location        string    `json:"location,omitempty"`
	ExperienceYears int       `json:"experienceYears"`
	Rating          float64   `json:"rating"`
	TelegramChatID  int64     `json:"telegramChatId,omitempty"`
	Packages        []Package `json:"packages"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Package is the canonical in-memory shape of a vendor package.
type Package struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Price           decimal.Decimal  `json:"price"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	Features        []string         `json:"features"`
	Description     string           `json:"description,omitempty"`
}

// RawPackage is a package as stored, carrying both the legacy
// (name, price, features) and current (packageName, originalPrice,
// packageFeatures) field names.
type RawPackage struct {
	ID              string           `json:"id,omitempty"`
	Name            *string          `json:"name,omitempty"`
	PackageName     *string          `json:"packageName,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	OriginalPrice   *decimal.Decimal `json:"originalPrice,omitempty"`
	DiscountedPrice *decimal.Decimal `json:"discountedPrice,omitempty"`
	Features        []string         `json:"features"`
	PackageFeatures []string         `json:"packageFeatures"`
	Description     string           `json:"description,omitempty"`
}

// VendorInput is the write shape of a listing.
type VendorInput struct {
	ID              string       `json:"id"`
	OwnerID         string       `json:"ownerId"`
	Name            string       `json:"name"`
	BusinessName    string       `json:"businessName"`
	Description     string       `json:"description"`
	Category        string       `json:"category"`
	City            string       `json:"city"`
	Location        string       `json:"location"`
	ExperienceYears int          `json:"experienceYears"`
	Rating          float64      `json:"rating"`
	TelegramChatID  int64        `json:"telegramChatId"`
	Packages        []RawPackage `json:"packages"`
}

// NormalizePackage reconciles schema versions: current field names win,
// legacy names are the fallback, then defaults.
func NormalizePackage(raw RawPackage, index int) Package {
	pkg := Package{
		ID:              raw.ID,
		Name:            DefaultPackageName,
		Price:           decimal.Zero,
		DiscountedPrice: raw.DiscountedPrice,
		Features:        []string{},
		Description:     raw.Description,
	}
	if pkg.ID == "" {
		pkg.ID = fmt.Sprintf("pkg-%d", index+1)
	}

	switch {
	case raw.PackageName != nil:
		pkg.Name = *raw.PackageName
	case raw.Name != nil:
		pkg.Name = *raw.Name
	}

	switch {
	case raw.OriginalPrice != nil:
		pkg.Price = *raw.OriginalPrice
	case raw.Price != nil:
		pkg.Price = *raw.Price
	}

	switch {
	case raw.PackageFeatures != nil:
		pkg.Features = append([]string{}, raw.PackageFeatures...)
	case raw.Features != nil:
		pkg.Features = append([]string{}, raw.Features...)
	}

	return pkg
}

// NormalizePackages applies NormalizePackage to every stored package.
func NormalizePackages(raw []RawPackage) []Package {
	out := make([]Package, 0, len(raw))
	for i, p := range raw {
		out = append(out, NormalizePackage(p, i))
	}
	return out
}

// FindPackage returns the package with the given id.
func (v *Vendor) FindPackage(id string) (Package, bool) {
	for _, p := range v.Packages {
		if p.ID == id {
			return p, true
		}
	}
	return Package{}, false
}
