package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cuebook/internal/domain"
	"cuebook/internal/models"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createReservationRequest struct {
	TableID int64     `json:"table_id"`
	StartAt time.Time `json:"start_at"`
	EndAt   time.Time `json:"end_at"`
	// CustomerID lets staff book on behalf of a customer.
	CustomerID   int64  `json:"customer_id,omitempty"`
	PromoCode    string `json:"promo_code,omitempty"`
	RequirePromo bool   `json:"require_promo,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

type paymentRequest struct {
	Method string `json:"method"`
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	start, err := parseTimeParam(q.Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid start; expected RFC3339")
		return
	}
	end, err := parseTimeParam(q.Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid end; expected RFC3339")
		return
	}

	result, err := s.service.CheckAvailability(r.Context(), tableID, start, end, q.Get("promo_code"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleTableReservations(w http.ResponseWriter, r *http.Request) {
	tableID, ok := pathID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	from, err := parseTimeParam(q.Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from; expected RFC3339")
		return
	}
	to, err := parseTimeParam(q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to; expected RFC3339")
		return
	}

	list, err := s.service.ListTableReservations(r.Context(), tableID, from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": nonNil(list)})
}

func (s *HTTPServer) handleCreateReservation(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	var body createReservationRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.TableID <= 0 {
		writeError(w, http.StatusBadRequest, "table_id is required")
		return
	}
	if body.StartAt.IsZero() || body.EndAt.IsZero() {
		writeError(w, http.StatusBadRequest, "start_at and end_at are required")
		return
	}

	customerID := actor.CustomerID
	if body.CustomerID != 0 && body.CustomerID != actor.CustomerID {
		if !actor.Privileged() {
			s.writeServiceError(w, r, domain.ErrUnauthorized)
			return
		}
		customerID = body.CustomerID
	}
	if customerID <= 0 {
		writeError(w, http.StatusBadRequest, "customer is required")
		return
	}

	view, err := s.service.CreateReservation(r.Context(), domain.CreateReservationRequest{
		TableID:        body.TableID,
		CustomerID:     customerID,
		Start:          body.StartAt,
		End:            body.EndAt,
		PromoCode:      body.PromoCode,
		Notes:          body.Notes,
		RequirePromo:   body.RequirePromo,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(idempotencyKeyHeader)),
		Actor:          actor,
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *HTTPServer) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := reservationTarget(w, r)
	if !ok {
		return
	}

	view, err := s.service.GetReservation(r.Context(), id, actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleProcessPayment(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := reservationTarget(w, r)
	if !ok {
		return
	}

	var body paymentRequest
	if !decodeBody(w, r, &body) {
		return
	}

	payment, err := s.service.ProcessPayment(r.Context(), id, strings.TrimSpace(body.Method), actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, payment)
}

func (s *HTTPServer) handleCancelReservation(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := reservationTarget(w, r)
	if !ok {
		return
	}

	reservation, err := s.service.CancelReservation(r.Context(), id, actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *HTTPServer) handleCompleteReservation(w http.ResponseWriter, r *http.Request) {
	id, actor, ok := reservationTarget(w, r)
	if !ok {
		return
	}

	reservation, err := s.service.CompleteReservation(r.Context(), id, actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reservation)
}

func (s *HTTPServer) handleMyReservations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}

	list, err := s.service.ListCustomerReservations(r.Context(), actor)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reservations": nonNil(list)})
}

// writeServiceError maps domain errors to status codes. Unknown errors are logged and hidden.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Str("request_id", RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidDuration),
		errors.Is(err, domain.ErrBookingWindow),
		errors.Is(err, domain.ErrInvalidPaymentMethod):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTableNotFound),
		errors.Is(err, domain.ErrReservationNotFound),
		errors.Is(err, domain.ErrPaymentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSlotUnavailable),
		errors.Is(err, domain.ErrAlreadyPaid),
		errors.Is(err, domain.ErrAlreadyCancelled),
		errors.Is(err, domain.ErrCannotCancelCompleted),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification),
		errors.Is(err, domain.ErrIdempotencyInFlight),
		errors.Is(err, domain.ErrDuplicateIdempotencyKey):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTableNotBookable),
		errors.Is(err, domain.ErrPromoExhausted),
		errors.Is(err, domain.ErrPromoInvalid):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func requestActor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return actor, false
	}
	return actor, true
}

func reservationTarget(w http.ResponseWriter, r *http.Request) (int64, models.Actor, bool) {
	id, ok := pathID(w, r)
	if !ok {
		return 0, models.Actor{}, false
	}
	actor, ok := requestActor(w, r)
	return id, actor, ok
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, errors.New("empty time")
	}
	return time.Parse(time.RFC3339, raw)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func nonNil(list []*models.Reservation) []*models.Reservation {
	if list == nil {
		return []*models.Reservation{}
	}
	return list
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}
