package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/amanah-kas/amanah-kas/internal/events"
	jobmetrics "github.com/amanah-kas/amanah-kas/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// rupiah renders user-facing amounts with Indonesian digit grouping.
var rupiah = message.NewPrinter(language.Indonesian)

func formatRupiah(amount float64) string {
	return rupiah.Sprintf("Rp%v", number.Decimal(amount, number.MaxFractionDigits(2)))
}

// ReportCache invalidates cached reports once an event changed their inputs.
type ReportCache interface {
	Bump(ctx context.Context) error
}

// Notifier enqueues the notifications produced while dispatching events.
type Notifier interface {
	EnqueueNotify(ctx context.Context, payload NotifyPayload) (*asynq.TaskInfo, error)
}

// EventDispatchJob fans one domain event out to its consumers: the report
// cache version and per-user notifications.
type EventDispatchJob struct {
	Cache    ReportCache
	Notifier Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewEventDispatchJob constructs the dispatch handler.
func NewEventDispatchJob(cache ReportCache, notifier Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *EventDispatchJob {
	return &EventDispatchJob{
		Cache:    cache,
		Notifier: notifier,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one dispatch. Delivery is at-least-once, so every consumer
// tolerates replays: the cache bump is a plain version increment and a
// duplicated notification is accepted.
func (j *EventDispatchJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("event dispatch: handler not configured")
	}
	var event events.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil {
		return asynq.SkipRetry
	}
	if event.Type == "" {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(events.TaskTypeDispatch)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("type", string(event.Type)),
		slog.Int64("entity_id", event.EntityID),
	)

	if j.Cache != nil {
		if err := j.Cache.Bump(ctx); err != nil {
			resultErr = err
			logger.Error("bump report cache", slog.Any("error", err))
			return resultErr
		}
	}

	payload, ok := composeNotification(event)
	if ok && j.Notifier != nil {
		if _, err := j.Notifier.EnqueueNotify(ctx, payload); err != nil {
			resultErr = err
			logger.Error("enqueue notification", slog.Int64("user_id", payload.UserID), slog.Any("error", err))
			return resultErr
		}
	}

	logger.Info("dispatched event",
		slog.Bool("notified", ok && j.Notifier != nil),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

// composeNotification maps an event to the notification it produces, if any.
// Custody lifecycle events change report data but address nobody.
func composeNotification(event events.Event) (NotifyPayload, bool) {
	switch event.Type {
	case events.CashHandoverInitiated:
		userID := metaInt64(event.Meta, "to_user_id")
		if userID <= 0 {
			return NotifyPayload{}, false
		}
		return NotifyPayload{
			UserID:  userID,
			Kind:    "handover_incoming",
			Message: fmt.Sprintf("Serah terima kas %s sebesar %s menunggu konfirmasi Anda.", event.Number, formatRupiah(event.Amount)),
		}, true
	case events.CashHandoverAcknowledged:
		userID := metaInt64(event.Meta, "from_user_id")
		if userID <= 0 {
			return NotifyPayload{}, false
		}
		return NotifyPayload{
			UserID:  userID,
			Kind:    "handover_acknowledged",
			Message: fmt.Sprintf("Serah terima kas %s sebesar %s telah dikonfirmasi penerima.", event.Number, formatRupiah(event.Amount)),
		}, true
	case events.CashDepositedToBank:
		userID := metaInt64(event.Meta, "from_user_id")
		if userID <= 0 {
			return NotifyPayload{}, false
		}
		return NotifyPayload{
			UserID:  userID,
			Kind:    "deposit_confirmed",
			Message: fmt.Sprintf("Setoran kas %s sebesar %s telah diterima bank.", event.Number, formatRupiah(event.Amount)),
		}, true
	case events.CashHandoverRejected:
		userID := metaInt64(event.Meta, "from_user_id")
		if userID <= 0 {
			return NotifyPayload{}, false
		}
		text := fmt.Sprintf("Serah terima kas %s ditolak oleh penerima.", event.Number)
		if reason := metaString(event.Meta, "reason"); reason != "" {
			text = fmt.Sprintf("Serah terima kas %s ditolak: %s", event.Number, reason)
		}
		return NotifyPayload{UserID: userID, Kind: "handover_rejected", Message: text}, true
	case events.CashHandoverCancelled:
		userID := metaInt64(event.Meta, "to_user_id")
		if userID <= 0 {
			return NotifyPayload{}, false
		}
		return NotifyPayload{
			UserID:  userID,
			Kind:    "handover_cancelled",
			Message: fmt.Sprintf("Serah terima kas %s dibatalkan oleh pengirim.", event.Number),
		}, true
	default:
		return NotifyPayload{}, false
	}
}

// metaInt64 reads a numeric meta value. Numbers arrive as float64 after the
// JSON round trip through the queue.
func metaInt64(meta map[string]any, key string) int64 {
	switch v := meta[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func metaString(meta map[string]any, key string) string {
	if v, ok := meta[key].(string); ok {
		return v
	}
	return ""
}

func (j *EventDispatchJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", events.TaskTypeDispatch))
	}
	return slog.Default().With(slog.String("job", events.TaskTypeDispatch))
}

func (j *EventDispatchJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *EventDispatchJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
