package worker

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"planora/internal/database"
	"planora/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSheets struct {
	mu            sync.Mutex
	err           error
	upsertCalls   int
	statusCalls   int
	lastStatus    models.BookingStatus
	lastBookingID int64
}

func (f *fakeSheets) UpsertBooking(ctx context.Context, b *models.Booking) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upsertCalls++
	f.lastBookingID = b.ID
	return f.err
}

func (f *fakeSheets) UpdateBookingStatus(ctx context.Context, id int64, status models.BookingStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	f.lastBookingID = id
	f.lastStatus = status
	return f.err
}

func (f *fakeSheets) upserts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.upsertCalls
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTaskStatus(t *testing.T, db *database.DB, id int64) (status string, retryCount int, nextRetry sql.NullTime) {
	t.Helper()
	err := db.QueryRow(`SELECT status, retry_count, next_retry_at FROM sync_queue WHERE id = ?`, id).
		Scan(&status, &retryCount, &nextRetry)
	require.NoError(t, err)
	return status, retryCount, nextRetry
}

func testBooking(id int64) *models.Booking {
	now := time.Now().UTC()
	return &models.Booking{
		ID:         id,
		CustomerID: "cust-1",
		VendorID:   "vend-1",
		EventDate:  now.AddDate(0, 1, 0),
		Status:     models.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestProcessTaskSuccess(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewLedgerWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, testBooking(1)))

	task, ok := w.tryLocalQueue()
	require.True(t, ok, "expected task in local queue")
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusCompleted, status)
	assert.Equal(t, 0, retryCount)
	assert.False(t, nextRetry.Valid)
	assert.Equal(t, 1, sheets.upserts())
}

func TestProcessTaskStatusChange(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewLedgerWorker(db, sheets, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	b := testBooking(5)
	b.Status = models.StatusCancelled
	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskStatusChange, b))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	assert.Equal(t, 1, sheets.statusCalls)
	assert.Equal(t, int64(5), sheets.lastBookingID)
	assert.Equal(t, models.StatusCancelled, sheets.lastStatus)
}

func TestProcessTaskRetry(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("boom")}
	w := NewLedgerWorker(db, sheets, nil, RetryPolicy{MaxRetries: 3, InitialDelay: time.Minute}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, testBooking(2)))
	task, ok := w.tryLocalQueue()
	require.True(t, ok)
	w.processTask(ctx, &task)

	status, retryCount, nextRetry := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusRetry, status)
	assert.Equal(t, 1, retryCount)
	require.True(t, nextRetry.Valid)
	assert.True(t, nextRetry.Time.After(time.Now()), "next retry must be in the future")

	// не должна попасть в выборку до next_retry_at
	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestProcessTaskFail(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("fatal")}
	w := NewLedgerWorker(db, sheets, nil, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, testBooking(3)))
	task, _ := w.tryLocalQueue()
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)

	n, err := w.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	status, _, _ = loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusPending, status)
}

func TestProcessTaskBadPayload(t *testing.T) {
	db := newTestDB(t)
	w := NewLedgerWorker(db, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	task := models.SyncTask{TaskType: models.SyncTaskUpsertBooking, BookingID: 9, Payload: "{"}
	require.NoError(t, db.CreateSyncTask(ctx, &task))
	w.processTask(ctx, &task)

	status, _, _ := loadTaskStatus(t, db, task.ID)
	assert.Equal(t, models.SyncStatusFailed, status)
}

func TestHandleTask(t *testing.T) {
	w := NewLedgerWorker(nil, &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	assert.Error(t, w.handleTask(ctx, "unknown", ledgerPayload{BookingID: 1}))
	assert.Error(t, w.handleTask(ctx, models.SyncTaskUpsertBooking, ledgerPayload{BookingID: 1}))
	assert.Error(t, w.handleTask(ctx, models.SyncTaskStatusChange, ledgerPayload{BookingID: 1}))
	assert.NoError(t, w.handleTask(ctx, models.SyncTaskStatusChange, ledgerPayload{BookingID: 1, Status: models.StatusCompleted}))
}

func TestEnqueueTaskValidation(t *testing.T) {
	w := NewLedgerWorker(newTestDB(t), &fakeSheets{}, nil, RetryPolicy{}, nil)
	ctx := context.Background()

	assert.Error(t, w.EnqueueTask(ctx, "", testBooking(1)))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, nil))
	assert.Error(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, &models.Booking{}))
}

func TestRedisQueueAndDeadLetter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	db := newTestDB(t)
	sheets := &fakeSheets{err: errors.New("sheets down")}
	w := NewLedgerWorker(db, sheets, client, RetryPolicy{MaxRetries: 1}, nil)
	ctx := context.Background()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, testBooking(4)))
	_, ok := w.tryLocalQueue()
	assert.False(t, ok, "redis path must not use the memory queue")

	task, ok := w.tryRedis(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(4), task.BookingID)

	w.processTask(ctx, &task)
	dead, err := mr.List(defaultDeadLetterKey)
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}

func TestStartDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	sheets := &fakeSheets{}
	w := NewLedgerWorker(db, sheets, nil, RetryPolicy{}, nil)
	w.pollInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, w.EnqueueTask(ctx, models.SyncTaskUpsertBooking, testBooking(6)))
	assert.Eventually(t, func() bool { return sheets.upserts() >= 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetryPolicyNextDelay(t *testing.T) {
	p := RetryPolicy{InitialDelay: time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2}
	assert.Equal(t, time.Second, p.NextDelay(0))
	assert.Equal(t, time.Second, p.NextDelay(1))
	assert.Equal(t, 2*time.Second, p.NextDelay(2))
	assert.Equal(t, 4*time.Second, p.NextDelay(3))
	assert.Equal(t, 5*time.Second, p.NextDelay(4))

	assert.Equal(t, time.Second, RetryPolicy{}.NextDelay(1))
	assert.True(t, RetryPolicy{MaxRetries: 2}.Exhausted(2))
	assert.False(t, RetryPolicy{MaxRetries: 2}.Exhausted(1))
	assert.False(t, RetryPolicy{}.Exhausted(100))
}
