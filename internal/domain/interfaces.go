package domain

import (
	"context"
	"time"

	"planora/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type BookingRepository interface {
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	ApplyTransition(ctx context.Context, id, expectedVersion int64, fn models.TransitionFunc) (*models.Booking, error)
}

type VendorRepository interface {
	UpsertVendor(ctx context.Context, in *models.VendorInput) (*models.Vendor, error)
	GetVendor(ctx context.Context, id string) (*models.Vendor, error)
	ListVendors(ctx context.Context, category string) ([]models.Vendor, error)
}

type UserRepository interface {
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type MessageRepository interface {
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error)
}

type SyncQueueRepository interface {
	CreateSyncTask(ctx context.Context, task *models.SyncTask) error
	GetPendingSyncTasks(ctx context.Context, limit int) ([]models.SyncTask, error)
	GetFailedSyncTasks(ctx context.Context) ([]models.SyncTask, error)
	UpdateSyncTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error
}

// CartRepository keeps per-user carts and short-lived counters.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) ([]models.CartItem, error)
	AddItem(ctx context.Context, userID string, item models.CartItem) error
	RemoveItem(ctx context.Context, userID, serviceID string) error
	ClearCart(ctx context.Context, userID string) error
	CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type TelegramSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SheetsWriter interface {
	UpsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, bookingID int64, status models.BookingStatus) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, booking *models.Booking) error
}
