package service

import (
	"context"
	"fmt"
	"testing"

	"planora/internal/database"
	"planora/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func seedVendors(t *testing.T) *VendorService {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	fixtures := []struct {
		id, name, category, city string
		years                    int
		rating                   float64
		packages                 int
	}{
		{"v1", "Spice Route Caterers", "Catering", "Chennai", 8, 4.5, 3},
		{"v2", "Bloom Decor", "Decoration", "Chennai", 5, 4.1, 2},
		{"v3", "Annapoorna Feasts", "Catering", "Chennai", 12, 4.8, 1},
		{"v4", "Lens Story", "Photography", "Mumbai", 6, 4.3, 2},
		{"v5", "Coastal Kitchen", "Catering", "Mumbai", 3, 3.9, 2},
		{"v6", "Beat Drop DJ", "DJ", "Chennai", 4, 4.0, 1},
		{"v7", "Madras Meals", "Catering", " Chennai ", 2, 4.6, 4},
		{"v8", "Royal Banquets", "Catering", "Bengaluru", 15, 4.2, 2},
		{"v9", "Petal Works", "Decoration", "Mumbai", 7, 4.4, 1},
		{"v10", "Frame & Flash", "Photography", "Chennai", 9, 4.7, 3},
	}
	for _, f := range fixtures {
		raw := make([]models.RawPackage, f.packages)
		for i := range raw {
			p := decimal.NewFromInt(int64(10000 * (i + 1)))
			raw[i] = models.RawPackage{ID: fmt.Sprintf("%s-p%d", f.id, i), PackageName: strPtr("Pack"), OriginalPrice: &p}
		}
		_, err := db.UpsertVendor(context.Background(), &models.VendorInput{
			ID: f.id, Name: f.name, Category: f.category, City: f.city,
			ExperienceYears: f.years, Rating: f.rating, Packages: raw,
			Description: "Event services in " + f.city,
		})
		require.NoError(t, err)
	}
	return NewVendorService(db, &logger)
}

func ids(vendors []models.Vendor) []string {
	out := make([]string, len(vendors))
	for i, v := range vendors {
		out[i] = v.ID
	}
	return out
}

func TestSearch_CategoryAndCity(t *testing.T) {
	s := seedVendors(t)
	ctx := context.Background()

	got, err := s.Search(ctx, VendorQuery{Category: "Catering", City: "Chennai", Sort: SortExperience, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"v3", "v1", "v7"}, ids(got))

	got, err = s.Search(ctx, VendorQuery{Category: "Catering", City: "Chennai", Sort: SortExperience})
	require.NoError(t, err)
	assert.Equal(t, []string{"v7", "v1", "v3"}, ids(got))

	got, err = s.Search(ctx, VendorQuery{Category: "Catering", City: "Chennai", Sort: SortServices, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"v7", "v1", "v3"}, ids(got))
}

func TestSearch_AllMeansNoFilter(t *testing.T) {
	s := seedVendors(t)
	ctx := context.Background()

	got, err := s.Search(ctx, VendorQuery{Category: "all", City: ""})
	require.NoError(t, err)
	assert.Len(t, got, 10)
	assert.Equal(t, "v1", got[0].ID, "store order kept without sort")

	got, err = s.Search(ctx, VendorQuery{Category: "", City: "all", Sort: SortRating, Desc: true})
	require.NoError(t, err)
	assert.Equal(t, "v3", got[0].ID)
}

func TestSearch_TextIsCaseInsensitive(t *testing.T) {
	s := seedVendors(t)
	ctx := context.Background()

	got, err := s.Search(ctx, VendorQuery{Search: "DECOR"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2"}, ids(got))

	got, err = s.Search(ctx, VendorQuery{Search: "in mumbai", Sort: SortName})
	require.NoError(t, err)
	assert.Equal(t, []string{"v5", "v4", "v9"}, ids(got))
}

func TestSearch_CityIsExact(t *testing.T) {
	s := seedVendors(t)
	got, err := s.Search(context.Background(), VendorQuery{City: "chennai"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_RepoError(t *testing.T) {
	repo := new(mockVendorRepo)
	logger := zerolog.Nop()
	s := NewVendorService(repo, &logger)
	repo.On("ListVendors", mock.Anything, "").Return(nil, assert.AnError)

	_, err := s.Search(context.Background(), VendorQuery{})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestSaveVendor(t *testing.T) {
	repo := new(mockVendorRepo)
	logger := zerolog.Nop()
	s := NewVendorService(repo, &logger)
	ctx := context.Background()

	_, err := s.SaveVendor(ctx, &models.VendorInput{Category: "DJ"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.SaveVendor(ctx, &models.VendorInput{Name: "x"})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.SaveVendor(ctx, &models.VendorInput{Name: "x", Category: "DJ", Rating: 7})
	assert.ErrorIs(t, err, ErrValidation)

	repo.On("UpsertVendor", ctx, mock.MatchedBy(func(in *models.VendorInput) bool {
		return in.ID != "" && in.Name == "Beat Drop"
	})).Return(&models.Vendor{ID: "generated", Name: "Beat Drop"}, nil)

	v, err := s.SaveVendor(ctx, &models.VendorInput{Name: " Beat Drop ", Category: "DJ"})
	require.NoError(t, err)
	assert.Equal(t, "Beat Drop", v.Name)
	repo.AssertExpectations(t)
}

func TestValidSort(t *testing.T) {
	assert.True(t, ValidSort(""))
	assert.True(t, ValidSort("Rating"))
	assert.False(t, ValidSort("price"))
}
