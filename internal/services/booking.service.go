package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/home-express/finance-core/internal/config"
	"github.com/home-express/finance-core/internal/model"
	"github.com/home-express/finance-core/internal/repository"
	"github.com/home-express/finance-core/pkg/logger"
)

type BookingRepository interface {
	Create(ctx context.Context, booking *model.Booking) (*model.Booking, error)
	FindByID(ctx context.Context, id int64) (*model.Booking, error)
	FindByIDForUpdate(ctx context.Context, id int64) (*model.Booking, error)
	Update(ctx context.Context, booking *model.Booking) error
	AddHistory(ctx context.Context, h *model.BookingStatusHistory) error
	ListHistory(ctx context.Context, bookingID int64) ([]*model.BookingStatusHistory, error)
	CreateContract(ctx context.Context, bookingID int64, signedAt time.Time) (*model.Contract, error)
	HasContract(ctx context.Context, bookingID int64) (bool, error)
	CreateIncident(ctx context.Context, incident *model.Incident) (*model.Incident, error)
	FindIncident(ctx context.Context, id int64) (*model.Incident, error)
	UpdateIncidentStatus(ctx context.Context, id int64, status model.IncidentStatus, resolvedAt *time.Time) error
	CountOpenIncidents(ctx context.Context, bookingID int64) (int64, error)
}

type OpenPaymentCanceller interface {
	FailOpen(ctx context.Context, bookingID int64, reason string) ([]*model.Payment, error)
}

type SettlementProcessor interface {
	ProcessSettlement(ctx context.Context, bookingID int64) (*model.Settlement, error)
	CancelForBooking(ctx context.Context, bookingID int64, reason string) error
	GetByBooking(ctx context.Context, bookingID int64) (*model.Settlement, error)
}

// BookingService owns the booking lifecycle. Every status change writes a history row.
type BookingService struct {
	uow         unitOfWork
	bookings    BookingRepository
	payments    OpenPaymentCanceller
	settlements SettlementProcessor
	depositBps  int64
	now         func() time.Time
}

func NewBookingService(tx Transactor, bookings BookingRepository, payments OpenPaymentCanceller,
	settlements SettlementProcessor, notifier Notifier, cfg *config.Config) *BookingService {
	return &BookingService{
		uow:         newUnitOfWork(tx, notifier),
		bookings:    bookings,
		payments:    payments,
		settlements: settlements,
		depositBps:  cfg.DepositPercentBps,
		now:         time.Now,
	}
}

func (s *BookingService) CreateBooking(ctx context.Context, customerID int64) (*model.Booking, error) {
	if customerID == 0 {
		return nil, model.NewValidationError(model.CodeValidationFailed, "customer_id is required")
	}
	var booking *model.Booking
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.bookings.Create(ctx, &model.Booking{
			CustomerID: customerID,
			Status:     model.BookingStatusPending,
		})
		if err != nil {
			return fmt.Errorf("create booking: %w", err)
		}
		return s.record(ctx, booking, nil, model.Actor{ID: customerID, Role: model.ActorCustomer}, "booking created")
	})
	if err != nil {
		return nil, err
	}
	logger.Info("booking created", "booking_id", booking.ID, "customer_id", customerID)
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, bookingID int64) (*model.Booking, error) {
	b, err := s.bookings.FindByID(ctx, bookingID)
	if err != nil {
		return nil, bookingLookupError(err, bookingID)
	}
	return b, nil
}

// LockBooking loads the booking with a row lock held until the transaction ends.
func (s *BookingService) LockBooking(ctx context.Context, bookingID int64) (*model.Booking, error) {
	return s.lock(ctx, bookingID)
}

// DepositPercent returns the booking's deposit percentage snapshot, storing the
// configured value first when the booking has none.
func (s *BookingService) DepositPercent(ctx context.Context, bookingID int64) (int64, error) {
	var bps int64
	err := s.uow.run(ctx, func(ctx context.Context) error {
		booking, err := s.lock(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.DepositPercentBps != nil {
			bps = *booking.DepositPercentBps
			return nil
		}
		bps = s.depositBps
		booking.DepositPercentBps = &bps
		if err := s.bookings.Update(ctx, booking); err != nil {
			return fmt.Errorf("snapshot deposit percent: %w", err)
		}
		logger.Info("deposit percent snapshotted", "booking_id", bookingID, "deposit_percent_bps", bps)
		return nil
	})
	return bps, err
}

// UpdateStatus is the generic path; only the explicit transition table applies.
func (s *BookingService) UpdateStatus(ctx context.Context, bookingID int64, to model.BookingStatus, actor model.Actor, reason string) (*model.Booking, error) {
	if to == model.BookingStatusCancelled {
		return s.Cancel(ctx, bookingID, actor, reason)
	}
	var booking *model.Booking
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.lock(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := model.ValidateBookingTransition(booking.Status, to); err != nil {
			return err
		}
		return s.changeStatus(ctx, booking, to, actor, reason)
	})
	return booking, err
}

// AcceptQuotation fixes the final price, assigns the transport and snapshots the deposit percentage.
func (s *BookingService) AcceptQuotation(ctx context.Context, req model.AcceptQuotationRequest) (*model.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var booking *model.Booking
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.lock(ctx, req.BookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingStatusPending && booking.Status != model.BookingStatusQuoted {
			return model.NewStateError(model.CodeInvalidStatus, "quotation can only be accepted on a PENDING or QUOTED booking, booking is %s", booking.Status)
		}
		if booking.TransportID != nil && *booking.TransportID != req.TransportID {
			return model.NewStateError(model.CodeTransportConflict, "booking %d is already assigned to transport %d", booking.ID, *booking.TransportID)
		}

		transportID, price, quotationID := req.TransportID, req.FinalPrice, req.QuotationID
		booking.TransportID = &transportID
		booking.FinalPrice = &price
		booking.AcceptedQuotationID = &quotationID
		if booking.DepositPercentBps == nil {
			bps := s.depositBps
			booking.DepositPercentBps = &bps
		}

		if booking.Status == model.BookingStatusPending {
			return s.changeStatus(ctx, booking, model.BookingStatusQuoted, req.Actor, fmt.Sprintf("quotation %d accepted", quotationID))
		}
		if err := s.bookings.Update(ctx, booking); err != nil {
			return fmt.Errorf("update booking: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("quotation accepted",
		"booking_id", booking.ID, "quotation_id", req.QuotationID,
		"transport_id", req.TransportID, "final_price", req.FinalPrice,
		"deposit_percent_bps", *booking.DepositPercentBps)
	return booking, nil
}

func (s *BookingService) SignContract(ctx context.Context, bookingID int64) (*model.Contract, error) {
	var contract *model.Contract
	err := s.uow.run(ctx, func(ctx context.Context) error {
		booking, err := s.lock(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == model.BookingStatusCancelled {
			return model.NewStateError(model.CodeInvalidStatus, "booking %d is CANCELLED", bookingID)
		}
		if booking.AcceptedQuotationID == nil {
			return model.NewStateError(model.CodeInvalidStatus, "booking %d has no accepted quotation", bookingID)
		}
		contract, err = s.bookings.CreateContract(ctx, bookingID, s.now().UTC())
		if err != nil {
			return fmt.Errorf("create contract: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Info("contract signed", "booking_id", bookingID, "contract_id", contract.ID)
	return contract, nil
}

// AdvanceOnDeposit moves a PENDING or QUOTED booking to CONFIRMED once the
// deposit is paid. Without an accepted quotation and a contract it is skipped.
func (s *BookingService) AdvanceOnDeposit(ctx context.Context, bookingID int64) (bool, error) {
	advanced := false
	err := s.uow.run(ctx, func(ctx context.Context) error {
		booking, err := s.lock(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != model.BookingStatusPending && booking.Status != model.BookingStatusQuoted {
			return nil
		}
		if booking.AcceptedQuotationID == nil {
			logger.Info("deposit paid, booking not confirmed: no accepted quotation", "booking_id", bookingID)
			return nil
		}
		ok, err := s.bookings.HasContract(ctx, bookingID)
		if err != nil {
			return fmt.Errorf("check contract: %w", err)
		}
		if !ok {
			logger.Info("deposit paid, booking not confirmed: no contract", "booking_id", bookingID)
			return nil
		}
		if err := s.advance(ctx, booking, model.BookingStatusConfirmed, model.SystemActor, "deposit paid"); err != nil {
			return err
		}
		advanced = true
		return nil
	})
	return advanced, err
}

func (s *BookingService) StartJob(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error) {
	return s.step(ctx, bookingID, model.BookingStatusConfirmed, model.BookingStatusInProgress, actor, "job started", nil)
}

func (s *BookingService) CompleteJob(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error) {
	return s.step(ctx, bookingID, model.BookingStatusInProgress, model.BookingStatusCompleted, actor, "job completed",
		func(b *model.Booking) {
			now := s.now().UTC()
			b.ActualEndAt = &now
		})
}

// ConfirmCompletion records the customer's confirmation and then tries to
// settle. A booking that is not yet eligible still gets confirmed.
func (s *BookingService) ConfirmCompletion(ctx context.Context, bookingID int64, actor model.Actor) (*model.Booking, error) {
	booking, err := s.step(ctx, bookingID, model.BookingStatusCompleted, model.BookingStatusConfirmedByCustomer, actor, "completion confirmed by customer", nil)
	if err != nil {
		return nil, err
	}

	if _, err := s.settlements.ProcessSettlement(ctx, bookingID); err != nil {
		if !model.IsBusinessError(err) {
			return nil, fmt.Errorf("process settlement: %w", err)
		}
		logger.Info("settlement not yet eligible", "booking_id", bookingID, "reason", err.Error())
	}
	return booking, nil
}

func (s *BookingService) step(ctx context.Context, bookingID int64, from, to model.BookingStatus, actor model.Actor,
	reason string, mutate func(*model.Booking)) (*model.Booking, error) {
	var booking *model.Booking
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.lock(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status != from {
			return model.NewStateError(model.CodeInvalidTransition, "booking must be %s to move to %s, it is %s", from, to, booking.Status)
		}
		if to == model.BookingStatusConfirmedByCustomer && actor.Role == model.ActorCustomer && actor.ID != booking.CustomerID {
			return model.NewValidationError(model.CodeValidationFailed, "only the booking's customer can confirm completion")
		}
		if mutate != nil {
			mutate(booking)
		}
		return s.advance(ctx, booking, to, actor, reason)
	})
	return booking, err
}

// Cancel is allowed from PENDING or QUOTED. Open payments fail and an unpaid settlement is cancelled.
func (s *BookingService) Cancel(ctx context.Context, bookingID int64, actor model.Actor, reason string) (*model.Booking, error) {
	if strings.TrimSpace(reason) == "" {
		reason = "booking cancelled"
	}
	var booking *model.Booking
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		booking, err = s.lock(ctx, bookingID)
		if err != nil {
			return err
		}
		if booking.Status == model.BookingStatusCancelled {
			return nil
		}
		if err := model.ValidateBookingTransition(booking.Status, model.BookingStatusCancelled); err != nil {
			return err
		}

		now := s.now().UTC()
		booking.CancelledAt = &now
		if err := s.changeStatus(ctx, booking, model.BookingStatusCancelled, actor, reason); err != nil {
			return err
		}

		failed, err := s.payments.FailOpen(ctx, bookingID, reason)
		if err != nil {
			return fmt.Errorf("fail open payments: %w", err)
		}
		for _, p := range failed {
			logger.Info("payment failed by cancellation", "payment_id", p.ID, "booking_id", bookingID)
			emit(ctx, model.Event{
				Type:       model.EventPaymentFailed,
				EntityType: "payment",
				EntityID:   p.ID,
				BookingID:  bookingID,
				Status:     string(p.Status),
				Amount:     p.Amount,
				Reason:     reason,
			})
		}
		return s.settlements.CancelForBooking(ctx, bookingID, reason)
	})
	return booking, err
}

func (s *BookingService) ReportIncident(ctx context.Context, bookingID, reportedBy int64, description string) (*model.Incident, error) {
	if strings.TrimSpace(description) == "" {
		return nil, model.NewValidationError(model.CodeValidationFailed, "incident description is required")
	}
	var incident *model.Incident
	err := s.uow.run(ctx, func(ctx context.Context) error {
		if _, err := s.lock(ctx, bookingID); err != nil {
			return err
		}
		var err error
		incident, err = s.bookings.CreateIncident(ctx, &model.Incident{
			BookingID:   bookingID,
			Status:      model.IncidentReported,
			Description: description,
			ReportedBy:  reportedBy,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Warn("incident reported", "incident_id", incident.ID, "booking_id", bookingID, "reported_by", reportedBy)
	return incident, nil
}

// ResolveIncident closes an open incident. When it was the last one and the
// settlement is on hold, settlement is attempted again.
func (s *BookingService) ResolveIncident(ctx context.Context, incidentID int64, dismiss bool) (*model.Incident, error) {
	var (
		incident *model.Incident
		open     int64
	)
	err := s.uow.run(ctx, func(ctx context.Context) error {
		var err error
		incident, err = s.bookings.FindIncident(ctx, incidentID)
		if errors.Is(err, repository.ErrIncidentNotFound) {
			return model.NewNotFoundError("incident", incidentID)
		}
		if err != nil {
			return err
		}
		if incident.Status != model.IncidentReported && incident.Status != model.IncidentUnderInvestigation {
			return model.NewStateError(model.CodeInvalidStatus, "incident %d is already %s", incidentID, incident.Status)
		}

		status := model.IncidentResolved
		if dismiss {
			status = model.IncidentDismissed
		}
		now := s.now().UTC()
		if err := s.bookings.UpdateIncidentStatus(ctx, incidentID, status, &now); err != nil {
			return err
		}
		incident.Status = status
		incident.ResolvedAt = &now

		open, err = s.bookings.CountOpenIncidents(ctx, incident.BookingID)
		return err
	})
	if err != nil {
		return nil, err
	}
	logger.Info("incident closed", "incident_id", incidentID, "booking_id", incident.BookingID, "status", incident.Status, "open_left", open)

	if open == 0 {
		s.retryHeldSettlement(ctx, incident.BookingID)
	}
	return incident, nil
}

func (s *BookingService) retryHeldSettlement(ctx context.Context, bookingID int64) {
	st, err := s.settlements.GetByBooking(ctx, bookingID)
	if err != nil || st.Status != model.SettlementStatusOnHold {
		return
	}
	if _, err := s.settlements.ProcessSettlement(ctx, bookingID); err != nil {
		logger.Info("held settlement still not eligible", "booking_id", bookingID, "reason", err.Error())
	}
}

// Timeline returns the status history oldest first.
func (s *BookingService) Timeline(ctx context.Context, bookingID int64) ([]*model.BookingStatusHistory, error) {
	if _, err := s.GetBooking(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.bookings.ListHistory(ctx, bookingID)
}

func (s *BookingService) lock(ctx context.Context, bookingID int64) (*model.Booking, error) {
	b, err := s.bookings.FindByIDForUpdate(ctx, bookingID)
	if err != nil {
		return nil, bookingLookupError(err, bookingID)
	}
	return b, nil
}

// advance is the path of the dedicated operations: the ordinal must strictly grow.
func (s *BookingService) advance(ctx context.Context, b *model.Booking, to model.BookingStatus, actor model.Actor, reason string) error {
	if err := model.ValidateBookingAdvance(b.Status, to); err != nil {
		return err
	}
	return s.changeStatus(ctx, b, to, actor, reason)
}

func (s *BookingService) changeStatus(ctx context.Context, b *model.Booking, to model.BookingStatus, actor model.Actor, reason string) error {
	from := b.Status
	b.Status = to
	if err := s.bookings.Update(ctx, b); err != nil {
		b.Status = from
		return fmt.Errorf("update booking: %w", err)
	}
	if err := s.record(ctx, b, &from, actor, reason); err != nil {
		return err
	}
	logger.Info("booking status changed", "booking_id", b.ID, "from", from, "to", to, "actor_id", actor.ID, "actor_role", actor.Role)
	return nil
}

func (s *BookingService) record(ctx context.Context, b *model.Booking, from *model.BookingStatus, actor model.Actor, reason string) error {
	h := &model.BookingStatusHistory{
		BookingID: b.ID,
		OldStatus: from,
		NewStatus: b.Status,
		ActorID:   actor.ID,
		ActorRole: actor.Role,
		Reason:    reason,
		ChangedAt: s.now().UTC(),
	}
	if err := s.bookings.AddHistory(ctx, h); err != nil {
		return fmt.Errorf("add status history: %w", err)
	}
	var transportID int64
	if b.TransportID != nil {
		transportID = *b.TransportID
	}
	emit(ctx, model.Event{
		Type:        model.EventBookingStatusChanged,
		EntityType:  "booking",
		EntityID:    b.ID,
		BookingID:   b.ID,
		TransportID: transportID,
		Status:      string(b.Status),
		Reason:      reason,
		OccurredAt:  h.ChangedAt,
	})
	return nil
}
