package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"planora/internal/models"
)

const vendorColumns = `id, owner_id, name, business_name, description, category, city,
	location, experience_years, rating, telegram_chat_id, packages, created_at, updated_at`

// UpsertVendor stores a listing. Packages are persisted exactly as given so
// that legacy field names survive; normalization happens on read.
func (db *DB) UpsertVendor(ctx context.Context, in *models.VendorInput) (*models.Vendor, error) {
	if in.Packages == nil {
		in.Packages = []models.RawPackage{}
	}
	packages, err := json.Marshal(in.Packages)
	if err != nil {
		return nil, fmt.Errorf("failed to encode packages: %w", err)
	}

	now := time.Now().UTC()
	query := `INSERT INTO vendors (` + vendorColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                owner_id = excluded.owner_id,
                name = excluded.name,
                business_name = excluded.business_name,
                description = excluded.description,
                category = excluded.category,
                city = excluded.city,
                location = excluded.location,
                experience_years = excluded.experience_years,
                rating = excluded.rating,
                telegram_chat_id = excluded.telegram_chat_id,
                packages = excluded.packages,
                updated_at = excluded.updated_at`
	_, err = db.ExecContext(ctx, query,
		in.ID,
		in.OwnerID,
		in.Name,
		in.BusinessName,
		in.Description,
		in.Category,
		in.City,
		in.Location,
		in.ExperienceYears,
		in.Rating,
		in.TelegramChatID,
		string(packages),
		now,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert vendor: %w", err)
	}
	return db.GetVendor(ctx, in.ID)
}

func (db *DB) GetVendor(ctx context.Context, id string) (*models.Vendor, error) {
	row := db.QueryRowContext(ctx, `SELECT `+vendorColumns+` FROM vendors WHERE id = ?`, id)
	v, err := scanVendor(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("vendor %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get vendor: %w", err)
	}
	return v, nil
}

// ListVendors returns listings in insertion order, optionally restricted to
// one category.
func (db *DB) ListVendors(ctx context.Context, category string) ([]models.Vendor, error) {
	query := `SELECT ` + vendorColumns + ` FROM vendors`
	var args []interface{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY rowid ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	vendors := []models.Vendor{}
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vendor: %w", err)
		}
		vendors = append(vendors, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate vendors: %w", err)
	}
	return vendors, nil
}

func scanVendor(row rowScanner) (*models.Vendor, error) {
	var (
		v            models.Vendor
		ownerID      sql.NullString
		businessName sql.NullString
		description  sql.NullString
		location     sql.NullString
		packages     string
	)
	err := row.Scan(
		&v.ID, &ownerID, &v.Name, &businessName, &description, &v.Category, &v.City,
		&location, &v.ExperienceYears, &v.Rating, &v.TelegramChatID, &packages, &v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	v.OwnerID = ownerID.String
	v.BusinessName = businessName.String
	v.Description = description.String
	v.Location = location.String

	var raw []models.RawPackage
	if packages != "" {
		if err := json.Unmarshal([]byte(packages), &raw); err != nil {
			return nil, fmt.Errorf("failed to decode packages of vendor %s: %w", v.ID, err)
		}
	}
	v.Packages = models.NormalizePackages(raw)
	return &v, nil
}
