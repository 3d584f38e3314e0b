package models

import "time"

const (
	SyncStatusPending   = "pending"
	SyncStatusRetry     = "retry"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// Типы задач синхронизации с таблицей заказов
const (
	SyncTaskUpsertBooking = "upsert_booking"
	SyncTaskStatusChange  = "status_change"
)

// SyncTask is a persisted job mirroring one booking into the Sheets ledger.
type SyncTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"taskType"`
	BookingID   int64      `json:"bookingId"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retryCount"`
	LastError   *string    `json:"lastError,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	NextRetryAt *time.Time `json:"nextRetryAt,omitempty"`
}
