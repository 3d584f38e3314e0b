package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"planora/internal/database"
	"planora/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// seedPackage accepts both the current and the legacy package fields.
type seedPackage struct {
	ID              string   `yaml:"id"`
	PackageName     *string  `yaml:"package_name"`
	Name            *string  `yaml:"name"`
	OriginalPrice   *float64 `yaml:"original_price"`
	Price           *float64 `yaml:"price"`
	DiscountedPrice *float64 `yaml:"discounted_price"`
	PackageFeatures []string `yaml:"package_features"`
	Features        []string `yaml:"features"`
	Description     string   `yaml:"description"`
}

type seedVendor struct {
	ID              string        `yaml:"id"`
	OwnerID         string        `yaml:"owner_id"`
	Name            string        `yaml:"name"`
	BusinessName    string        `yaml:"business_name"`
	Description     string        `yaml:"description"`
	Category        string        `yaml:"category"`
	City            string        `yaml:"city"`
	Location        string        `yaml:"location"`
	ExperienceYears int           `yaml:"experience_years"`
	Rating          float64       `yaml:"rating"`
	TelegramChatID  int64         `yaml:"telegram_chat_id"`
	Packages        []seedPackage `yaml:"packages"`
}

type seedFile struct {
	Vendors []seedVendor `yaml:"vendors"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		vendorsPath = flag.String("vendors", "configs/vendors.yaml", "path to vendors.yaml")
		dbPath      = flag.String("db", "./data/planora.db", "path to sqlite db")
	)
	flag.Parse()

	data, err := os.ReadFile(*vendorsPath)
	if err != nil {
		return fmt.Errorf("read vendors: %w", err)
	}
	var seed seedFile
	if err = yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse vendors: %w", err)
	}
	if len(seed.Vendors) == 0 {
		return fmt.Errorf("no vendors in yaml")
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	saved := 0
	for _, v := range seed.Vendors {
		if v.ID == "" || v.Name == "" {
			logger.Warn().Str("id", v.ID).Msg("skipping vendor without id or name")
			continue
		}
		if _, err := db.UpsertVendor(ctx, v.input()); err != nil {
			return fmt.Errorf("upsert %s: %w", v.ID, err)
		}
		saved++
	}

	fmt.Printf("done: vendors=%d\n", saved)
	return nil
}

func (v seedVendor) input() *models.VendorInput {
	in := &models.VendorInput{
		ID:              v.ID,
		OwnerID:         v.OwnerID,
		Name:            v.Name,
		BusinessName:    v.BusinessName,
		Description:     v.Description,
		Category:        v.Category,
		City:            v.City,
		Location:        v.Location,
		ExperienceYears: v.ExperienceYears,
		Rating:          v.Rating,
		TelegramChatID:  v.TelegramChatID,
	}
	for _, p := range v.Packages {
		in.Packages = append(in.Packages, models.RawPackage{
			ID:              p.ID,
			PackageName:     p.PackageName,
			Name:            p.Name,
			OriginalPrice:   money(p.OriginalPrice),
			Price:           money(p.Price),
			DiscountedPrice: money(p.DiscountedPrice),
			PackageFeatures: p.PackageFeatures,
			Features:        p.Features,
			Description:     p.Description,
		})
	}
	return in
}

func money(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(2)
	return &d
}
