package repository

import (
	"context"
	"errors"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/pg"
	"gorm.io/gorm"
)

var ErrSettlementNotFound = errors.New("settlement not found")

type SettlementRepository struct {
	*pg.DB
}

func NewSettlementRepository(db *pg.DB) *SettlementRepository {
	return &SettlementRepository{
		db,
	}
}

// TransportReadyTotal aggregates the claimable settlements of one transport.
type TransportReadyTotal struct {
	TransportID int64
	Total       int64
	Count       int64
}

func (r *SettlementRepository) Create(ctx context.Context, s *model.Settlement) (*model.Settlement, error) {
	entity := toSettlementEntity(s)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toSettlementModel(entity), nil
}

func (r *SettlementRepository) FindByID(ctx context.Context, id int64) (*model.Settlement, error) {
	return r.first(r.Read(ctx).Where("id = ?", id))
}

func (r *SettlementRepository) FindByBookingID(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	return r.first(r.Read(ctx).Where("booking_id = ?", bookingID))
}

func (r *SettlementRepository) FindByBookingIDForUpdate(ctx context.Context, bookingID int64) (*model.Settlement, error) {
	return r.first(r.ForUpdate(ctx).Where("booking_id = ?", bookingID))
}

func (r *SettlementRepository) first(db *gorm.DB) (*model.Settlement, error) {
	var entity SettlementEntity
	if err := db.First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSettlementNotFound
		}
		return nil, err
	}
	return toSettlementModel(&entity), nil
}

func (r *SettlementRepository) Update(ctx context.Context, s *model.Settlement) error {
	entity := toSettlementEntity(s)
	result := r.Write(ctx).Model(entity).Select("*").Omit("id", "created_at").Updates(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSettlementNotFound
	}
	s.UpdatedAt = entity.UpdatedAt
	return nil
}

// ListClaimable locks the transport's READY, unclaimed, positive settlements.
func (r *SettlementRepository) ListClaimable(ctx context.Context, transportID int64) ([]*model.Settlement, error) {
	var entities []*SettlementEntity
	err := r.ForUpdate(ctx).
		Where("transport_id = ? AND status = ? AND payout_id IS NULL AND net_to_transport > 0",
			transportID, string(model.SettlementStatusReady)).
		Order("id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toSettlementModels(entities), nil
}

func (r *SettlementRepository) ListByPayoutID(ctx context.Context, payoutID int64) ([]*model.Settlement, error) {
	var entities []*SettlementEntity
	err := r.ForUpdate(ctx).Where("payout_id = ?", payoutID).Order("id ASC").Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toSettlementModels(entities), nil
}

func (r *SettlementRepository) FindByIDs(ctx context.Context, ids []int64) ([]*model.Settlement, error) {
	var entities []*SettlementEntity
	if len(ids) == 0 {
		return nil, nil
	}
	err := r.ForUpdate(ctx).Where("id IN ?", ids).Order("id ASC").Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toSettlementModels(entities), nil
}

func (r *SettlementRepository) ListByTransport(ctx context.Context, transportID int64, statuses ...model.SettlementStatus) ([]*model.Settlement, error) {
	q := r.Read(ctx).Where("transport_id = ?", transportID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", settlementStatusStrings(statuses))
	}
	var entities []*SettlementEntity
	if err := q.Order("id ASC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toSettlementModels(entities), nil
}

// ReadyTotals sums claimable net amounts per transport.
func (r *SettlementRepository) ReadyTotals(ctx context.Context) ([]TransportReadyTotal, error) {
	var rows []TransportReadyTotal
	err := r.Read(ctx).Model(&SettlementEntity{}).
		Select("transport_id, SUM(net_to_transport) AS total, COUNT(*) AS count").
		Where("status = ? AND payout_id IS NULL AND net_to_transport > 0", string(model.SettlementStatusReady)).
		Group("transport_id").
		Order("transport_id ASC").
		Scan(&rows).Error
	return rows, err
}

// ListAutoSettleCandidates returns PENDING settlements whose booking was
// confirmed by the customer, or completed before cutoff. Held settlements wait
// for a person or for their incidents to close.
func (r *SettlementRepository) ListAutoSettleCandidates(ctx context.Context, cutoff time.Time, limit int) ([]*model.Settlement, error) {
	var entities []*SettlementEntity
	q := r.Read(ctx).
		Table(SettlementEntity{}.TableName()+" AS s").
		Select("s.*").
		Joins("JOIN "+BookingEntity{}.TableName()+" AS b ON b.id = s.booking_id").
		Where("s.status = ?", string(model.SettlementStatusPending)).
		Where("b.status = ? OR (b.status = ? AND b.actual_end_at IS NOT NULL AND b.actual_end_at <= ?)",
			string(model.BookingStatusConfirmedByCustomer), string(model.BookingStatusCompleted), cutoff).
		Order("s.id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&entities).Error; err != nil {
		return nil, err
	}
	return toSettlementModels(entities), nil
}

func settlementStatusStrings(statuses []model.SettlementStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
