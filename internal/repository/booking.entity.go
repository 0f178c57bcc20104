package repository

import (
	"time"

	"github.com/home-express/finance-core/internal/model"
)

type BookingEntity struct {
	ID                  int64      `db:"id"                    gorm:"primaryKey;autoIncrement;column:id"`
	CustomerID          int64      `db:"customer_id"           gorm:"column:customer_id;not null;index"`
	TransportID         *int64     `db:"transport_id"          gorm:"column:transport_id;index"`
	Status              string     `db:"status"                gorm:"column:status;not null;index"`
	FinalPrice          *int64     `db:"final_price"           gorm:"column:final_price"`
	DepositPercentBps   *int64     `db:"deposit_percent_bps"   gorm:"column:deposit_percent_bps"`
	AcceptedQuotationID *int64     `db:"accepted_quotation_id" gorm:"column:accepted_quotation_id"`
	CancelledAt         *time.Time `db:"cancelled_at"          gorm:"column:cancelled_at"`
	ActualEndAt         *time.Time `db:"actual_end_at"         gorm:"column:actual_end_at"`
	CreatedAt           time.Time  `db:"created_at"            gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time  `db:"updated_at"            gorm:"column:updated_at;autoUpdateTime"`
}

func (BookingEntity) TableName() string {
	return "bookings"
}

type BookingStatusHistoryEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	BookingID int64     `db:"booking_id" gorm:"column:booking_id;not null;index"`
	OldStatus *string   `db:"old_status" gorm:"column:old_status"`
	NewStatus string    `db:"new_status" gorm:"column:new_status;not null"`
	ActorID   int64     `db:"actor_id"   gorm:"column:actor_id;not null"`
	ActorRole string    `db:"actor_role" gorm:"column:actor_role;not null"`
	Reason    string    `db:"reason"     gorm:"column:reason"`
	ChangedAt time.Time `db:"changed_at" gorm:"column:changed_at;not null;index"`
}

func (BookingStatusHistoryEntity) TableName() string {
	return "booking_status_history"
}

type ContractEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement;column:id"`
	BookingID int64     `db:"booking_id" gorm:"column:booking_id;not null;uniqueIndex"`
	SignedAt  time.Time `db:"signed_at"  gorm:"column:signed_at;not null"`
}

func (ContractEntity) TableName() string {
	return "contracts"
}

type IncidentEntity struct {
	ID          int64      `db:"id"          gorm:"primaryKey;autoIncrement;column:id"`
	BookingID   int64      `db:"booking_id"  gorm:"column:booking_id;not null;index"`
	Status      string     `db:"status"      gorm:"column:status;not null"`
	Description string     `db:"description" gorm:"column:description"`
	ReportedBy  int64      `db:"reported_by" gorm:"column:reported_by"`
	ResolvedAt  *time.Time `db:"resolved_at" gorm:"column:resolved_at"`
	CreatedAt   time.Time  `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
}

func (IncidentEntity) TableName() string {
	return "incidents"
}

func toBookingEntity(m *model.Booking) *BookingEntity {
	if m == nil {
		return nil
	}
	return &BookingEntity{
		ID:                  m.ID,
		CustomerID:          m.CustomerID,
		TransportID:         m.TransportID,
		Status:              string(m.Status),
		FinalPrice:          m.FinalPrice,
		DepositPercentBps:   m.DepositPercentBps,
		AcceptedQuotationID: m.AcceptedQuotationID,
		CancelledAt:         m.CancelledAt,
		ActualEndAt:         m.ActualEndAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

func toBookingModel(e *BookingEntity) *model.Booking {
	if e == nil {
		return nil
	}
	return &model.Booking{
		ID:                  e.ID,
		CustomerID:          e.CustomerID,
		TransportID:         e.TransportID,
		Status:              model.BookingStatus(e.Status),
		FinalPrice:          e.FinalPrice,
		DepositPercentBps:   e.DepositPercentBps,
		AcceptedQuotationID: e.AcceptedQuotationID,
		CancelledAt:         e.CancelledAt,
		ActualEndAt:         e.ActualEndAt,
		CreatedAt:           e.CreatedAt,
		UpdatedAt:           e.UpdatedAt,
	}
}

func toHistoryEntity(m *model.BookingStatusHistory) *BookingStatusHistoryEntity {
	e := &BookingStatusHistoryEntity{
		ID:        m.ID,
		BookingID: m.BookingID,
		NewStatus: string(m.NewStatus),
		ActorID:   m.ActorID,
		ActorRole: string(m.ActorRole),
		Reason:    m.Reason,
		ChangedAt: m.ChangedAt,
	}
	if m.OldStatus != nil {
		old := string(*m.OldStatus)
		e.OldStatus = &old
	}
	return e
}

func toHistoryModel(e *BookingStatusHistoryEntity) *model.BookingStatusHistory {
	m := &model.BookingStatusHistory{
		ID:        e.ID,
		BookingID: e.BookingID,
		NewStatus: model.BookingStatus(e.NewStatus),
		ActorID:   e.ActorID,
		ActorRole: model.ActorRole(e.ActorRole),
		Reason:    e.Reason,
		ChangedAt: e.ChangedAt,
	}
	if e.OldStatus != nil {
		old := model.BookingStatus(*e.OldStatus)
		m.OldStatus = &old
	}
	return m
}

func toIncidentModel(e *IncidentEntity) *model.Incident {
	if e == nil {
		return nil
	}
	return &model.Incident{
		ID:          e.ID,
		BookingID:   e.BookingID,
		Status:      model.IncidentStatus(e.Status),
		Description: e.Description,
		ReportedBy:  e.ReportedBy,
		ResolvedAt:  e.ResolvedAt,
		CreatedAt:   e.CreatedAt,
	}
}
