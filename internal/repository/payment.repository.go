package repository

import (
	"context"
	"errors"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrDuplicatePayment = errors.New("payment with this idempotency key already exists")
)

type PaymentRepository struct {
	*pg.DB
}

func NewPaymentRepository(db *pg.DB) *PaymentRepository {
	return &PaymentRepository{
		db,
	}
}

// Create returns ErrDuplicatePayment when (booking, idempotency key) is taken.
func (r *PaymentRepository) Create(ctx context.Context, payment *model.Payment) (*model.Payment, error) {
	entity := toPaymentEntity(payment)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicatePayment
		}
		return nil, err
	}
	return toPaymentModel(entity), nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id int64) (*model.Payment, error) {
	return r.first(r.Read(ctx).Where("id = ?", id))
}

func (r *PaymentRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Payment, error) {
	return r.first(r.ForUpdate(ctx).Where("id = ?", id))
}

func (r *PaymentRepository) FindByOrderCode(ctx context.Context, orderCode string) (*model.Payment, error) {
	return r.first(r.Read(ctx).Where("order_code = ?", orderCode))
}

func (r *PaymentRepository) FindByOrderCodeForUpdate(ctx context.Context, orderCode string) (*model.Payment, error) {
	return r.first(r.ForUpdate(ctx).Where("order_code = ?", orderCode))
}

func (r *PaymentRepository) FindByIdempotencyKey(ctx context.Context, bookingID int64, key string) (*model.Payment, error) {
	return r.first(r.Read(ctx).Where("booking_id = ? AND idempotency_key = ?", bookingID, key))
}

func (r *PaymentRepository) first(db *gorm.DB) (*model.Payment, error) {
	var entity PaymentEntity
	if err := db.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return toPaymentModel(&entity), nil
}

func (r *PaymentRepository) ExistsCompleted(ctx context.Context, bookingID int64, paymentType model.PaymentType) (bool, error) {
	var count int64
	err := r.Read(ctx).Model(&PaymentEntity{}).
		Where("booking_id = ? AND type = ? AND status = ?", bookingID, string(paymentType), string(model.PaymentStatusCompleted)).
		Count(&count).Error
	return count > 0, err
}

// ListByBooking returns the booking's payments oldest first, optionally filtered by status.
func (r *PaymentRepository) ListByBooking(ctx context.Context, bookingID int64, statuses ...model.PaymentStatus) ([]*model.Payment, error) {
	q := r.Read(ctx).Where("booking_id = ?", bookingID)
	if len(statuses) > 0 {
		values := make([]string, len(statuses))
		for i, s := range statuses {
			values[i] = string(s)
		}
		q = q.Where("status IN ?", values)
	}

	var entities []*PaymentEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toPaymentModels(entities), nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *model.Payment) error {
	entity := toPaymentEntity(payment)
	result := r.Write(ctx).Model(entity).Select("*").Omit("id", "created_at").Updates(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPaymentNotFound
	}
	payment.UpdatedAt = entity.UpdatedAt
	return nil
}

// FailOpen marks every PENDING or PROCESSING payment of the booking FAILED.
func (r *PaymentRepository) FailOpen(ctx context.Context, bookingID int64, reason string) ([]*model.Payment, error) {
	open, err := r.ListByBooking(ctx, bookingID, model.PaymentStatusPending, model.PaymentStatusProcessing)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(open))
	for i, p := range open {
		ids[i] = p.ID
	}
	err = r.Write(ctx).Model(&PaymentEntity{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"status": string(model.PaymentStatusFailed), "failure_reason": reason}).Error
	if err != nil {
		return nil, err
	}
	for _, p := range open {
		p.Status = model.PaymentStatusFailed
		p.FailureReason = &reason
	}
	return open, nil
}
