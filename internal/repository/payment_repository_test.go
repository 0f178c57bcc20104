package repository

import (
	"context"
	"testing"

	"github.com/home-express/finance-core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPayment(bookingID int64, key string, paymentType model.PaymentType, status model.PaymentStatus) *model.Payment {
	return &model.Payment{
		BookingID:      bookingID,
		Type:           paymentType,
		Method:         model.PaymentMethodCash,
		Amount:         300_000,
		Status:         status,
		IdempotencyKey: key,
	}
}

func TestPaymentRepository_IdempotencyKey(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	created, err := repo.Create(ctx, newPayment(1, "dep-1", model.PaymentTypeDeposit, model.PaymentStatusPending))
	require.NoError(t, err)

	t.Run("duplicate key for same booking", func(t *testing.T) {
		_, err := repo.Create(ctx, newPayment(1, "dep-1", model.PaymentTypeDeposit, model.PaymentStatusPending))
		assert.ErrorIs(t, err, ErrDuplicatePayment)
	})

	t.Run("same key on another booking is allowed", func(t *testing.T) {
		_, err := repo.Create(ctx, newPayment(2, "dep-1", model.PaymentTypeDeposit, model.PaymentStatusPending))
		assert.NoError(t, err)
	})

	t.Run("lookup is scoped to booking", func(t *testing.T) {
		found, err := repo.FindByIdempotencyKey(ctx, 1, "dep-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)

		_, err = repo.FindByIdempotencyKey(ctx, 3, "dep-1")
		assert.ErrorIs(t, err, ErrPaymentNotFound)
	})
}

func TestPaymentRepository_CompletedAndList(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, newPayment(1, "a", model.PaymentTypeDeposit, model.PaymentStatusCompleted))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newPayment(1, "b", model.PaymentTypeRemainingPayment, model.PaymentStatusPending))
	require.NoError(t, err)

	ok, err := repo.ExistsCompleted(ctx, 1, model.PaymentTypeDeposit)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.ExistsCompleted(ctx, 1, model.PaymentTypeRemainingPayment)
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := repo.ListByBooking(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	completed, err := repo.ListByBooking(ctx, 1, model.PaymentStatusCompleted)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, model.PaymentTypeDeposit, completed[0].Type)
}

func TestPaymentRepository_FailOpen(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, newPayment(1, "a", model.PaymentTypeDeposit, model.PaymentStatusCompleted))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newPayment(1, "b", model.PaymentTypeRemainingPayment, model.PaymentStatusPending))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newPayment(1, "c", model.PaymentTypeTip, model.PaymentStatusProcessing))
	require.NoError(t, err)

	failed, err := repo.FailOpen(ctx, 1, "booking cancelled")
	require.NoError(t, err)
	assert.Len(t, failed, 2)

	open, err := repo.ListByBooking(ctx, 1, model.PaymentStatusPending, model.PaymentStatusProcessing)
	require.NoError(t, err)
	assert.Empty(t, open)

	stillCompleted, err := repo.ListByBooking(ctx, 1, model.PaymentStatusCompleted)
	require.NoError(t, err)
	assert.Len(t, stillCompleted, 1)
}

func TestPaymentRepository_OrderCode(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPaymentRepository(db)
	ctx := context.Background()

	code := "ord-123"
	p := newPayment(1, "gw", model.PaymentTypeDeposit, model.PaymentStatusPending)
	p.Method = model.PaymentMethodPayOS
	p.OrderCode = &code
	created, err := repo.Create(ctx, p)
	require.NoError(t, err)

	found, err := repo.FindByOrderCodeForUpdate(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = repo.FindByOrderCodeForUpdate(ctx, "missing")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}
