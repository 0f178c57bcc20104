package repository

import (
	"context"
	"errors"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrPayoutNotFound        = errors.New("payout not found")
	ErrDuplicatePayoutNumber = errors.New("payout number already exists")
)

type PayoutRepository struct {
	*pg.DB
}

func NewPayoutRepository(db *pg.DB) *PayoutRepository {
	return &PayoutRepository{
		db,
	}
}

// Create inserts the payout together with its items.
func (r *PayoutRepository) Create(ctx context.Context, payout *model.Payout) (*model.Payout, error) {
	entity := toPayoutEntity(payout)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrDuplicatePayoutNumber
		}
		return nil, err
	}
	return toPayoutModel(entity), nil
}

func (r *PayoutRepository) PayoutNumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	err := r.Read(ctx).Model(&PayoutEntity{}).Where("payout_number = ?", number).Count(&count).Error
	return count > 0, err
}

func (r *PayoutRepository) FindByID(ctx context.Context, id int64) (*model.Payout, error) {
	return r.first(r.Read(ctx).Preload("Items", orderItems).Where("id = ?", id))
}

func (r *PayoutRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Payout, error) {
	return r.first(r.ForUpdate(ctx).Preload("Items", orderItems).Where("id = ?", id))
}

func orderItems(db *gorm.DB) *gorm.DB {
	return db.Order("id ASC")
}

func (r *PayoutRepository) first(db *gorm.DB) (*model.Payout, error) {
	var entity PayoutEntity
	if err := db.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPayoutNotFound
		}
		return nil, err
	}
	return toPayoutModel(&entity), nil
}

// Update writes the payout row only; items are immutable after creation.
func (r *PayoutRepository) Update(ctx context.Context, payout *model.Payout) error {
	entity := toPayoutEntity(payout)
	entity.Items = nil
	result := r.Write(ctx).Model(entity).Select("*").Omit("id", "created_at", "Items").Updates(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrPayoutNotFound
	}
	payout.UpdatedAt = entity.UpdatedAt
	return nil
}

func (r *PayoutRepository) List(ctx context.Context, filter model.PayoutFilter) ([]*model.Payout, error) {
	q := r.Read(ctx).Model(&PayoutEntity{})
	if filter.TransportID != nil {
		q = q.Where("transport_id = ?", *filter.TransportID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		q = q.Where("status IN ?", statuses)
	}
	if filter.CreatedFrom != nil {
		q = q.Where("created_at >= ?", filter.CreatedFrom.UTC())
	}
	if filter.CreatedTo != nil {
		q = q.Where("created_at < ?", filter.CreatedTo.UTC())
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var entities []*PayoutEntity
	if err := q.Order("id DESC").Limit(limit).Offset(filter.Offset).Find(&entities).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Payout, len(entities))
	for i, e := range entities {
		out[i] = toPayoutModel(e)
	}
	return out, nil
}

// ListByTransport returns every payout of the transport, used by reconciliation.
func (r *PayoutRepository) ListByTransport(ctx context.Context, transportID int64) ([]*model.Payout, error) {
	var entities []*PayoutEntity
	if err := r.Read(ctx).Where("transport_id = ?", transportID).Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Payout, len(entities))
	for i, e := range entities {
		out[i] = toPayoutModel(e)
	}
	return out, nil
}
