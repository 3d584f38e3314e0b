package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"planora/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (
				id, name, email, phone, role, city, telegram_chat_id, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Email,
		user.Phone,
		string(user.Role),
		user.City,
		user.TelegramChatID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) UpdateUser(ctx context.Context, user *models.User) error {
	query := `UPDATE users SET name = ?, email = ?, phone = ?, role = ?, city = ?,
				telegram_chat_id = ?, updated_at = ?
              WHERE id = ?`
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.Phone,
		string(user.Role),
		user.City,
		user.TelegramChatID,
		now,
		user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("user %s: %w", user.ID, ErrNotFound)
	}
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, email, phone, role, city, telegram_chat_id, created_at, updated_at
              FROM users WHERE id = ?`
	var (
		user  models.User
		phone sql.NullString
		city  sql.NullString
		role  string
	)
	err := db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Name, &user.Email, &phone, &role, &city,
		&user.TelegramChatID, &user.CreatedAt, &user.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.Phone = phone.String
	user.City = city.String
	user.Role = models.Actor(role)
	return &user, nil
}
