package repository

import (
	"context"
	"errors"
	"time"

	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/pkg/pg"
	"gorm.io/gorm"
)

var (
	ErrBookingNotFound  = errors.New("booking not found")
	ErrIncidentNotFound = errors.New("incident not found")
)

type BookingRepository struct {
	*pg.DB
}

func NewBookingRepository(db *pg.DB) *BookingRepository {
	return &BookingRepository{
		db,
	}
}

func (r *BookingRepository) Create(ctx context.Context, booking *model.Booking) (*model.Booking, error) {
	entity := toBookingEntity(booking)
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toBookingModel(entity), nil
}

func (r *BookingRepository) FindByID(ctx context.Context, id int64) (*model.Booking, error) {
	return r.find(r.Read(ctx), id)
}

// FindByIDForUpdate locks the booking row for the rest of the transaction.
func (r *BookingRepository) FindByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error) {
	return r.find(r.ForUpdate(ctx), id)
}

func (r *BookingRepository) find(db *gorm.DB, id int64) (*model.Booking, error) {
	var entity BookingEntity
	if err := db.Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return toBookingModel(&entity), nil
}

// Update writes every column of the booking, zero values included.
func (r *BookingRepository) Update(ctx context.Context, booking *model.Booking) error {
	entity := toBookingEntity(booking)
	result := r.Write(ctx).Model(entity).Select("*").Omit("id", "created_at").Updates(entity)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrBookingNotFound
	}
	booking.UpdatedAt = entity.UpdatedAt
	return nil
}

func (r *BookingRepository) AddHistory(ctx context.Context, h *model.BookingStatusHistory) error {
	entity := toHistoryEntity(h)
	if entity.ChangedAt.IsZero() {
		entity.ChangedAt = time.Now().UTC()
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return err
	}
	h.ID = entity.ID
	h.ChangedAt = entity.ChangedAt
	return nil
}

func (r *BookingRepository) ListHistory(ctx context.Context, bookingID int64) ([]*model.BookingStatusHistory, error) {
	var entities []*BookingStatusHistoryEntity
	err := r.Read(ctx).
		Where("booking_id = ?", bookingID).
		Order("changed_at ASC, id ASC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	out := make([]*model.BookingStatusHistory, len(entities))
	for i, e := range entities {
		out[i] = toHistoryModel(e)
	}
	return out, nil
}

// CreateContract is a no-op when the booking already has a contract.
func (r *BookingRepository) CreateContract(ctx context.Context, bookingID int64, signedAt time.Time) (*model.Contract, error) {
	var existing ContractEntity
	err := r.Write(ctx).Where("booking_id = ?", bookingID).First(&existing).Error
	if err == nil {
		return &model.Contract{ID: existing.ID, BookingID: existing.BookingID, SignedAt: existing.SignedAt}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	entity := &ContractEntity{BookingID: bookingID, SignedAt: signedAt}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return &model.Contract{ID: entity.ID, BookingID: entity.BookingID, SignedAt: entity.SignedAt}, nil
}

func (r *BookingRepository) HasContract(ctx context.Context, bookingID int64) (bool, error) {
	var count int64
	err := r.Read(ctx).Model(&ContractEntity{}).Where("booking_id = ?", bookingID).Count(&count).Error
	return count > 0, err
}

func (r *BookingRepository) CreateIncident(ctx context.Context, incident *model.Incident) (*model.Incident, error) {
	entity := &IncidentEntity{
		BookingID:   incident.BookingID,
		Status:      string(incident.Status),
		Description: incident.Description,
		ReportedBy:  incident.ReportedBy,
	}
	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}
	return toIncidentModel(entity), nil
}

func (r *BookingRepository) FindIncident(ctx context.Context, id int64) (*model.Incident, error) {
	var entity IncidentEntity
	if err := r.ForUpdate(ctx).Where("id = ?", id).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIncidentNotFound
		}
		return nil, err
	}
	return toIncidentModel(&entity), nil
}

func (r *BookingRepository) UpdateIncidentStatus(ctx context.Context, id int64, status model.IncidentStatus, resolvedAt *time.Time) error {
	result := r.Write(ctx).Model(&IncidentEntity{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": string(status), "resolved_at": resolvedAt})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrIncidentNotFound
	}
	return nil
}

func (r *BookingRepository) CountOpenIncidents(ctx context.Context, bookingID int64) (int64, error) {
	statuses := make([]string, len(model.OpenIncidentStatuses))
	for i, s := range model.OpenIncidentStatuses {
		statuses[i] = string(s)
	}
	var count int64
	err := r.Read(ctx).Model(&IncidentEntity{}).
		Where("booking_id = ? AND status IN ?", bookingID, statuses).
		Count(&count).Error
	return count, err
}
