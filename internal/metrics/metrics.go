package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "cuebook"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	reservationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_created_total",
			Help:      "Reservations created, by whether a promo was applied.",
		},
		[]string{"promo"},
	)

	bookingRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_rejections_total",
			Help:      "Rejected booking attempts by reason.",
		},
		[]string{"reason"},
	)

	promoConsumptions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "promo_consumptions_total",
			Help:      "Promo uses taken, by outcome.",
		},
		[]string{"outcome"},
	)

	paymentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_processed_total",
			Help:      "Payments marked as paid, by method.",
		},
		[]string{"method"},
	)

	reservationsCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reservations_cancelled_total",
			Help:      "Cancelled reservations, by whether a refund was issued.",
		},
		[]string{"refunded"},
	)

	notificationsDelivered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification delivery outcomes.",
		},
		[]string{"outcome"},
	)

	bookingTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "booking_tx_duration_seconds",
			Help:      "Duration of the booking unit of work, lock wait included.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			reservationsCreated,
			bookingRejections,
			promoConsumptions,
			paymentsProcessed,
			reservationsCancelled,
			notificationsDelivered,
			bookingTxDuration,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncReservationCreated(promoApplied bool) {
	reservationsCreated.WithLabelValues(boolLabel(promoApplied)).Inc()
}

// IncBookingRejected counts an expected booking failure (slot taken, promo exhausted...).
func IncBookingRejected(reason string) {
	bookingRejections.WithLabelValues(reason).Inc()
}

func IncPromoConsumption(outcome string) {
	promoConsumptions.WithLabelValues(outcome).Inc()
}

func IncPayment(method string) {
	paymentsProcessed.WithLabelValues(method).Inc()
}

func IncCancellation(refunded bool) {
	reservationsCancelled.WithLabelValues(boolLabel(refunded)).Inc()
}

func IncNotification(outcome string) {
	notificationsDelivered.WithLabelValues(outcome).Inc()
}

// ObserveBookingTx records how long a booking transaction took since start.
func ObserveBookingTx(start time.Time) {
	bookingTxDuration.Observe(time.Since(start).Seconds())
}

func boolLabel(v bool) string {
	if v {
		return "true"
	}
	return "false"
}
