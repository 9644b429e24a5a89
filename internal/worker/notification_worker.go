package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cuebook/internal/database"
	"cuebook/internal/events"
	"cuebook/internal/logging"
	"cuebook/internal/metrics"
	"cuebook/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Publisher delivers one notification outside the process.
type Publisher interface {
	Publish(ctx context.Context, eventType string, body []byte) error
}

// NotificationWorker forwards booking events to a Publisher. Every event is first written
// to activity_log, so nothing is lost when the queue is full or the broker is down.
type NotificationWorker struct {
	db            *database.DB
	publisher     Publisher
	redis         *redis.Client
	retryPolicy   RetryPolicy
	queue         chan models.ActivityRecord
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	logger        *zerolog.Logger
}

// NewNotificationWorker builds a worker with sane defaults. redisClient may be nil.
func NewNotificationWorker(db *database.DB, publisher Publisher, redisClient *redis.Client, retry RetryPolicy, queueSize int, logger *zerolog.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = models.NotificationQueueSize
	}

	return &NotificationWorker{
		db:            db,
		publisher:     publisher,
		redis:         redisClient,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.ActivityRecord, queueSize),
		redisQueueKey: "notifications:queue",
		deadLetterKey: "notifications:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		logger:        logging.Component(logger, "notification_worker"),
	}
}

// WithPollInterval overrides how often the activity log is polled when the queues are empty.
func (w *NotificationWorker) WithPollInterval(d time.Duration) *NotificationWorker {
	if d > 0 {
		w.pollInterval = d
	}
	return w
}

// Subscribe attaches the worker to every reservation event on the bus.
// Handlers only persist and enqueue; delivery happens in Start.
func (w *NotificationWorker) Subscribe(bus *events.EventBus) {
	bus.SubscribeAll(events.ReservationEventTypes(), func(event *events.Event) error {
		payload, err := event.Reservation()
		if err != nil {
			w.logger.Error().Err(err).Str("event_type", event.Type).Msg("Undecodable event skipped")
			return err
		}
		if err := w.Enqueue(context.Background(), event.Type, payload.ReservationID, event.Payload); err != nil {
			w.logger.Error().Err(err).Str("event_type", event.Type).Int64("reservation_id", payload.ReservationID).Msg("Failed to enqueue notification")
			return err
		}
		return nil
	})
}

// Enqueue persists the notification and schedules it via redis or the in-memory queue.
// It never blocks on a full queue: such records are picked up by polling.
func (w *NotificationWorker) Enqueue(ctx context.Context, eventType string, reservationID int64, payload []byte) error {
	if eventType == "" {
		return errors.New("event type is required")
	}
	if reservationID == 0 {
		return errors.New("reservation id is required")
	}

	rec := models.ActivityRecord{
		EventType:     eventType,
		ReservationID: reservationID,
		Payload:       string(payload),
		Status:        models.ActivityPending,
	}
	if err := w.db.InsertActivity(ctx, &rec); err != nil {
		return fmt.Errorf("persist activity: %w", err)
	}

	// Try redis first for durability.
	if w.redis != nil {
		if err := w.pushRedis(ctx, w.redisQueueKey, rec); err != nil {
			w.logger.Warn().Err(err).Msg("redis push failed, fallback to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- rec:
	default:
		metrics.IncNotification("dropped_to_polling")
		w.logger.Warn().Int64("activity_id", rec.ID).Msg("in-memory queue full, notification left to polling")
	}
	return nil
}

// Start launches main loop; stops when ctx is done.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.logger.Info().Msg("Notification worker started")
	defer w.logger.Info().Msg("Notification worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if rec, ok := w.tryLocalQueue(); ok {
			w.processRecord(ctx, &rec)
			continue
		}

		if rec, ok := w.tryRedis(ctx); ok {
			w.processRecord(ctx, &rec)
			continue
		}

		recs, err := w.db.GetPendingActivity(ctx, w.batchSize)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error().Err(err).Msg("fetch pending notifications")
			}
			w.sleep(ctx)
			continue
		}
		if len(recs) == 0 {
			w.sleep(ctx)
			continue
		}

		for i := range recs {
			w.processRecord(ctx, &recs[i])
		}
	}
}

func (w *NotificationWorker) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(w.pollInterval):
	}
}

func (w *NotificationWorker) tryLocalQueue() (models.ActivityRecord, bool) {
	select {
	case rec := <-w.queue:
		return rec, true
	default:
		return models.ActivityRecord{}, false
	}
}

func (w *NotificationWorker) tryRedis(ctx context.Context) (models.ActivityRecord, bool) {
	if w.redis == nil {
		return models.ActivityRecord{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, redis.Nil) {
			return models.ActivityRecord{}, false
		}
		w.logger.Error().Err(err).Msg("redis BRPOP error")
		return models.ActivityRecord{}, false
	}
	if len(res) != 2 {
		return models.ActivityRecord{}, false
	}
	var rec models.ActivityRecord
	if err := json.Unmarshal([]byte(res[1]), &rec); err != nil {
		w.logger.Error().Err(err).Msg("decode redis notification")
		return models.ActivityRecord{}, false
	}
	return rec, true
}

func (w *NotificationWorker) processRecord(ctx context.Context, rec *models.ActivityRecord) {
	// запись могла уже уйти через другой путь (очередь и опрос пересекаются)
	if current, err := w.db.GetActivity(ctx, rec.ID); err == nil {
		if current.Status == models.ActivityDelivered || current.Status == models.ActivityFailed {
			return
		}
		rec = current
	}

	if !json.Valid([]byte(rec.Payload)) {
		w.failRecord(ctx, rec, errors.New("payload is not valid JSON"))
		return
	}

	if err := w.publisher.Publish(ctx, rec.EventType, []byte(rec.Payload)); err != nil {
		w.retryOrFail(ctx, rec, err)
		return
	}

	metrics.IncNotification("delivered")
	if err := w.db.UpdateActivityStatus(ctx, rec.ID, models.ActivityDelivered, "", nil); err != nil {
		w.logger.Error().Err(err).Int64("activity_id", rec.ID).Msg("mark delivered")
	}
}

func (w *NotificationWorker) retryOrFail(ctx context.Context, rec *models.ActivityRecord, cause error) {
	attempt := rec.RetryCount + 1
	if w.retryPolicy.Exhausted(attempt) {
		w.failRecord(ctx, rec, cause)
		return
	}

	metrics.IncNotification("retry")
	nextTime := w.retryPolicy.NextAttemptAt(time.Now(), attempt)
	if err := w.db.UpdateActivityStatus(ctx, rec.ID, models.ActivityRetry, cause.Error(), &nextTime); err != nil {
		w.logger.Error().Err(err).Int64("activity_id", rec.ID).Msg("mark retry")
	}
	w.logger.Warn().Err(cause).Int64("activity_id", rec.ID).Int("attempt", attempt).Time("next_retry_at", nextTime).Msg("Notification delivery failed, will retry")
}

func (w *NotificationWorker) failRecord(ctx context.Context, rec *models.ActivityRecord, cause error) {
	metrics.IncNotification("failed")
	if err := w.db.UpdateActivityStatus(ctx, rec.ID, models.ActivityFailed, cause.Error(), nil); err != nil {
		w.logger.Error().Err(err).Int64("activity_id", rec.ID).Msg("mark failed")
	}
	w.logger.Error().Err(cause).Int64("activity_id", rec.ID).Str("event_type", rec.EventType).Msg("Notification failed permanently")

	if w.redis == nil {
		return
	}
	if err := w.pushRedis(ctx, w.deadLetterKey, *rec); err != nil {
		w.logger.Error().Err(err).Int64("activity_id", rec.ID).Msg("deadletter push")
	}
}

func (w *NotificationWorker) pushRedis(ctx context.Context, key string, rec models.ActivityRecord) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, key, data).Err()
}
