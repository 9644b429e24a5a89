package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/config"
	"cuebook/internal/domain"
	"cuebook/internal/events"
	"cuebook/internal/logging"
	"cuebook/internal/metrics"
	"cuebook/internal/models"
	"cuebook/internal/pricing"

	"github.com/rs/zerolog"
)

type BookingService struct {
	repo     domain.Repository
	eventBus domain.EventPublisher
	store    domain.BookingStore
	clock    models.Clock
	loc      *time.Location

	minDuration    time.Duration
	maxAdvanceDays int
	promoPolicy    string
	idempotencyTTL time.Duration
	maxAttempts    int
	attemptWindow  time.Duration

	logger *zerolog.Logger
}

var _ domain.BookingService = (*BookingService)(nil)

// NewBookingService wires the engine. store may be nil: idempotency keys are then checked
// under the table lock and by the database index, and attempt limiting is off.
func NewBookingService(
	repo domain.Repository,
	eventBus domain.EventPublisher,
	store domain.BookingStore,
	cfg config.BookingConfig,
	logger *zerolog.Logger,
) (*BookingService, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid booking timezone: %w", err)
	}

	minMinutes := cfg.MinDurationMinutes
	if minMinutes < models.MinReservationMinutes {
		minMinutes = models.MinReservationMinutes
	}
	maxDays := cfg.MaxAdvanceDays
	if maxDays <= 0 {
		maxDays = models.DefaultMaxAdvanceDays
	}
	ttl := cfg.IdempotencyTTL
	if ttl <= 0 {
		ttl = models.DefaultIdempotencyTTL
	}
	policy := cfg.PromoExhaustedPolicy
	if policy == "" {
		policy = config.PromoPolicyFullPrice
	}

	return &BookingService{
		repo:           repo,
		eventBus:       eventBus,
		store:          store,
		clock:          models.SystemClock{},
		loc:            loc,
		minDuration:    time.Duration(minMinutes) * time.Minute,
		maxAdvanceDays: maxDays,
		promoPolicy:    policy,
		idempotencyTTL: time.Duration(ttl) * time.Second,
		maxAttempts:    cfg.MaxAttempts,
		attemptWindow:  config.ParseDuration(cfg.AttemptWindow, time.Minute),
		logger:         logging.Component(logger, "booking"),
	}, nil
}

// WithClock replaces the wall clock, mostly for tests.
func (s *BookingService) WithClock(c models.Clock) *BookingService {
	s.clock = c
	return s
}

// validateInterval rejects malformed and out-of-window requests before any transaction opens.
func (s *BookingService) validateInterval(start, end time.Time) error {
	if !end.After(start) || end.Sub(start) < s.minDuration {
		return domain.ErrInvalidDuration
	}
	// стоимость и duration_minutes считаются в целых минутах
	if end.Sub(start)%time.Minute != 0 {
		return fmt.Errorf("%w: duration must be a whole number of minutes", domain.ErrInvalidDuration)
	}

	now := s.clock.Now()
	// Проверяем, что начало не в прошлом
	if start.Before(now) {
		return fmt.Errorf("%w: start is in the past", domain.ErrBookingWindow)
	}
	// Проверяем максимальную дату
	if start.After(now.AddDate(0, 0, s.maxAdvanceDays)) {
		return fmt.Errorf("%w: more than %d days ahead", domain.ErrBookingWindow, s.maxAdvanceDays)
	}
	return nil
}

// lookupTable resolves the table and its rate; a table that exists but is not bookable is reported separately.
func (s *BookingService) lookupTable(ctx context.Context, tableID int64) (*models.Table, *models.TableType, error) {
	table, err := s.repo.GetTable(ctx, tableID)
	if err != nil {
		return nil, nil, err
	}
	tableType, err := s.repo.GetTableType(ctx, table.TableTypeID)
	if err != nil {
		return nil, nil, err
	}
	return table, tableType, nil
}

func (s *BookingService) CreateReservation(ctx context.Context, req domain.CreateReservationRequest) (*models.ReservationView, error) {
	start := req.Start.Truncate(time.Second)
	end := req.End.Truncate(time.Second)

	if err := s.validateInterval(start, end); err != nil {
		s.reject(err)
		return nil, err
	}

	if err := s.checkAttempts(ctx, req.CustomerID); err != nil {
		s.reject(err)
		return nil, err
	}

	var claimKey string
	if req.IdempotencyKey != "" {
		view, key, err := s.claimIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
		if err != nil || view != nil {
			return view, err
		}
		claimKey = key
	}

	view, replayed, err := s.createReservation(ctx, req, start, end)
	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// гонка с другим запросом, который уже сохранил бронь с тем же ключом
		view, err = s.replayIdempotent(ctx, req.CustomerID, req.IdempotencyKey)
		replayed = err == nil
	}

	if claimKey != "" {
		s.releaseIdempotencyKey(ctx, claimKey, view, err)
	}
	if err != nil {
		s.reject(err)
		return nil, err
	}

	if replayed {
		s.logger.Info().Int64("reservation_id", view.Reservation.ID).Int64("customer_id", req.CustomerID).Msg("Idempotent request replayed")
		return view, nil
	}

	metrics.IncReservationCreated(view.PromoApplied)
	s.publishEvent(events.EventReservationCreated, view.Reservation, view.Payment, view.Promo, bookingActor(req))

	s.logger.Info().
		Int64("reservation_id", view.Reservation.ID).
		Int64("table_id", view.Reservation.TableID).
		Int64("customer_id", view.Reservation.CustomerID).
		Int64("final_cost", int64(view.Reservation.FinalCost)).
		Bool("promo_applied", view.PromoApplied).
		Msg("Reservation created")

	return view, nil
}

// bookingActor is the caller recorded on the created event.
func bookingActor(req domain.CreateReservationRequest) models.Actor {
	if req.Actor.Role == "" {
		return models.Actor{CustomerID: req.CustomerID, Role: models.RoleCustomer}
	}
	return req.Actor
}

// createReservation reports replayed=true when the idempotency key already belongs to a stored reservation.
func (s *BookingService) createReservation(ctx context.Context, req domain.CreateReservationRequest, start, end time.Time) (*models.ReservationView, bool, error) {
	table, tableType, err := s.lookupTable(ctx, req.TableID)
	if err != nil {
		return nil, false, err
	}
	if !table.Bookable() {
		return nil, false, domain.ErrTableNotBookable
	}

	now := s.clock.Now()
	minutes := models.NewTimeRange(start, end).Minutes()
	code := models.NormalizePromoCode(req.PromoCode)

	var (
		reservation *models.Reservation
		payment     *models.Payment
		promo       *models.Promo
		quote       pricing.Quote
		existing    *models.Reservation
	)

	txStart := time.Now()
	err = s.repo.InTableTx(ctx, req.TableID, func(tx domain.BookingTx) error {
		if req.IdempotencyKey != "" {
			// повтор ждал блокировку стола, пока первый запрос сохранял ту же бронь
			found, err := tx.FindReservationByIdempotencyKey(ctx, req.CustomerID, req.IdempotencyKey)
			if err != nil {
				return err
			}
			if found != nil {
				existing = found
				return nil
			}
		}

		overlapping, err := tx.IsOverlapping(ctx, req.TableID, start, end, 0)
		if err != nil {
			return err
		}
		if overlapping {
			return domain.ErrSlotUnavailable
		}

		promo = nil
		if code != "" {
			promo, err = tx.GetPromoByCode(ctx, code)
			if err != nil {
				return err
			}
		}

		quote = pricing.Calculate(tableType.HourlyRate, minutes, promo, now, s.loc)
		if code != "" && promo == nil {
			quote.PromoReason = domain.ErrPromoUnknown
		}
		if quote.PromoReason != nil {
			if err := s.promoFailure(req, quote.PromoReason); err != nil {
				return err
			}
			promo = nil
		}

		if quote.PromoApplied {
			err := tx.ConsumePromo(ctx, promo.ID, pricing.CalendarDate(now, s.loc), minutes)
			switch {
			case errors.Is(err, domain.ErrPromoExhausted):
				metrics.IncPromoConsumption("lost_race")
				if err := s.promoFailure(req, err); err != nil {
					return err
				}
				quote = quote.WithoutPromo(err)
				promo = nil
			case err != nil:
				return err
			default:
				metrics.IncPromoConsumption("consumed")
			}
		}

		reservation = &models.Reservation{
			TableID:         req.TableID,
			CustomerID:      req.CustomerID,
			StartAt:         start.UTC(),
			EndAt:           end.UTC(),
			DurationMinutes: quote.DurationMinutes,
			BaseCost:        quote.BaseCost,
			Discount:        quote.Discount,
			FinalCost:       quote.FinalCost,
			Status:          models.StatusPending,
			Notes:           req.Notes,
			IdempotencyKey:  req.IdempotencyKey,
		}
		if promo != nil {
			id := promo.ID
			reservation.PromoID = &id
		}
		if err := tx.InsertReservation(ctx, reservation); err != nil {
			return err
		}

		payment = &models.Payment{
			ReservationID: reservation.ID,
			Amount:        quote.FinalCost,
			Status:        models.PaymentPending,
		}
		return tx.InsertPayment(ctx, payment)
	})
	metrics.ObserveBookingTx(txStart)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		view, err := s.buildView(ctx, existing)
		return view, err == nil, err
	}

	if promo != nil {
		// счетчик в снимке отстает на одно использование
		promo.CurrentUses++
	}

	view := &models.ReservationView{
		Reservation:  reservation,
		Payment:      payment,
		Table:        table,
		TableType:    tableType,
		Promo:        promo,
		PromoApplied: quote.PromoApplied,
	}
	if quote.PromoReason != nil {
		view.PromoReason = quote.PromoReason.Error()
	}
	return view, false, nil
}

// promoFailure decides whether an unusable promo aborts the booking. Nil means book at full price.
func (s *BookingService) promoFailure(req domain.CreateReservationRequest, reason error) error {
	if req.RequirePromo {
		return reason
	}
	if errors.Is(reason, domain.ErrPromoExhausted) && s.promoPolicy == config.PromoPolicyAbort {
		return reason
	}
	s.logger.Debug().Err(reason).Str("promo_code", req.PromoCode).Int64("customer_id", req.CustomerID).Msg("Promo not applied, booking at full price")
	return nil
}

func (s *BookingService) checkAttempts(ctx context.Context, customerID int64) error {
	if s.store == nil || s.maxAttempts <= 0 {
		return nil
	}
	allowed, err := s.store.CheckRateLimit(ctx, customerID, s.maxAttempts, s.attemptWindow)
	if err != nil {
		s.logger.Warn().Err(err).Int64("customer_id", customerID).Msg("Attempt limiter unavailable, allowing request")
		return nil
	}
	if !allowed {
		return domain.ErrRateLimited
	}
	return nil
}

func idempotencyClaimKey(customerID int64, key string) string {
	return fmt.Sprintf("%d:%s", customerID, key)
}

// claimIdempotencyKey returns a view when the key was already used, or the claim key to release later.
func (s *BookingService) claimIdempotencyKey(ctx context.Context, customerID int64, key string) (*models.ReservationView, string, error) {
	existing, err := s.repo.FindReservationByIdempotencyKey(ctx, customerID, key)
	if err != nil {
		return nil, "", err
	}
	if existing != nil {
		view, err := s.buildView(ctx, existing)
		return view, "", err
	}

	if s.store == nil {
		return nil, "", nil
	}

	claimKey := idempotencyClaimKey(customerID, key)
	reservationID, started, err := s.store.Begin(ctx, claimKey, s.idempotencyTTL)
	if err != nil {
		// уникальный индекс в БД все равно не даст создать дубль
		s.logger.Warn().Err(err).Int64("customer_id", customerID).Msg("Idempotency store unavailable")
		return nil, "", nil
	}
	if started {
		return nil, claimKey, nil
	}
	if reservationID == 0 {
		return nil, "", domain.ErrIdempotencyInFlight
	}

	r, err := s.repo.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, "", err
	}
	view, err := s.buildView(ctx, r)
	return view, "", err
}

func (s *BookingService) releaseIdempotencyKey(ctx context.Context, claimKey string, view *models.ReservationView, createErr error) {
	var err error
	if createErr != nil || view == nil {
		err = s.store.Abort(ctx, claimKey)
	} else {
		err = s.store.Finish(ctx, claimKey, view.Reservation.ID, s.idempotencyTTL)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("key", claimKey).Msg("Failed to release idempotency key")
	}
}

func (s *BookingService) replayIdempotent(ctx context.Context, customerID int64, key string) (*models.ReservationView, error) {
	existing, err := s.repo.FindReservationByIdempotencyKey(ctx, customerID, key)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, domain.ErrIdempotencyInFlight
	}
	return s.buildView(ctx, existing)
}

// reject counts expected booking failures; unexpected errors are left to the caller's logs.
func (s *BookingService) reject(err error) {
	if reason := rejectReason(err); reason != "" {
		metrics.IncBookingRejected(reason)
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, domain.ErrPromoExhausted):
		return "promo_exhausted"
	case errors.Is(err, domain.ErrPromoInvalid):
		return "promo_invalid"
	case errors.Is(err, domain.ErrInvalidDuration):
		return "invalid_duration"
	case errors.Is(err, domain.ErrBookingWindow):
		return "booking_window"
	case errors.Is(err, domain.ErrTableNotFound):
		return "table_not_found"
	case errors.Is(err, domain.ErrTableNotBookable):
		return "table_not_bookable"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrIdempotencyInFlight):
		return "idempotency_in_flight"
	default:
		return ""
	}
}

func (s *BookingService) publishEvent(eventType string, r *models.Reservation, p *models.Payment, promo *models.Promo, actor models.Actor) {
	if s.eventBus == nil || r == nil {
		return
	}

	payload := events.NewReservationEventPayload()
	payload.ReservationID = r.ID
	payload.TableID = r.TableID
	payload.CustomerID = r.CustomerID
	payload.Status = string(r.Status)
	payload.StartAt = r.StartAt
	payload.EndAt = r.EndAt
	payload.FinalCost = int64(r.FinalCost)
	payload.ChangedBy = actor.Role
	payload.ChangedByID = actor.CustomerID
	if p != nil {
		payload.PaymentStatus = string(p.Status)
		payload.PaymentMethod = p.Method
	}
	if promo != nil {
		payload.PromoCode = promo.Code
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("reservation_id", r.ID).Msg("publish event error")
	}
}
