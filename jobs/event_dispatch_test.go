package jobs

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/amanah-kas/amanah-kas/internal/events"
)

type captureNotifier struct {
	sent []NotifyPayload
}

func (c *captureNotifier) EnqueueNotify(ctx context.Context, payload NotifyPayload) (*asynq.TaskInfo, error) {
	c.sent = append(c.sent, payload)
	return &asynq.TaskInfo{}, nil
}

type countingCache struct {
	bumps int
}

func (c *countingCache) Bump(ctx context.Context) error {
	c.bumps++
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// dispatchTask routes the event through a real JSON round trip, the same one
// the queue applies between publisher and worker.
func dispatchTask(t *testing.T, event events.Event) *asynq.Task {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return asynq.NewTask(events.TaskTypeDispatch, payload)
}

func TestDispatchBumpsCacheAndNotifiesReceiver(t *testing.T) {
	cache := &countingCache{}
	notifier := &captureNotifier{}
	job := NewEventDispatchJob(cache, notifier, discardLogger(), nil)

	event := events.Event{
		Type:        events.CashHandoverInitiated,
		EntityID:    7,
		Number:      "CHO-2025-00007",
		Amount:      1500000,
		ActorUserID: 101,
		OccurredAt:  time.Date(2025, 7, 14, 10, 0, 0, 0, time.UTC),
		Meta:        map[string]any{"to_user_id": int64(200), "to_role": "UNIT_ADMIN"},
	}

	require.NoError(t, job.Handle(context.Background(), dispatchTask(t, event)))

	require.Equal(t, 1, cache.bumps)
	require.Len(t, notifier.sent, 1)
	require.Equal(t, int64(200), notifier.sent[0].UserID)
	require.Equal(t, "handover_incoming", notifier.sent[0].Kind)
	require.Equal(t, "Serah terima kas CHO-2025-00007 sebesar Rp1.500.000 menunggu konfirmasi Anda.", notifier.sent[0].Message)
}

func TestDispatchRoutesPerEventType(t *testing.T) {
	cases := []struct {
		name     string
		event    events.Event
		wantUser int64
		wantKind string
		wantText string
	}{
		{
			name: "acknowledged notifies sender",
			event: events.Event{
				Type:   events.CashHandoverAcknowledged,
				Number: "CHO-2025-00010",
				Amount: 250000,
				Meta:   map[string]any{"from_user_id": int64(101), "to_user_id": int64(200)},
			},
			wantUser: 101,
			wantKind: "handover_acknowledged",
			wantText: "Serah terima kas CHO-2025-00010 sebesar Rp250.000 telah dikonfirmasi penerima.",
		},
		{
			name: "bank deposit confirms to depositor",
			event: events.Event{
				Type:   events.CashDepositedToBank,
				Number: "CHO-2025-00011",
				Amount: 5000000,
				Meta:   map[string]any{"from_user_id": int64(400), "to_user_id": int64(900)},
			},
			wantUser: 400,
			wantKind: "deposit_confirmed",
			wantText: "Setoran kas CHO-2025-00011 sebesar Rp5.000.000 telah diterima bank.",
		},
		{
			name: "rejection carries the reason",
			event: events.Event{
				Type:   events.CashHandoverRejected,
				Number: "CHO-2025-00012",
				Amount: 100000,
				Meta:   map[string]any{"from_user_id": int64(102), "reason": "jumlah tidak sesuai"},
			},
			wantUser: 102,
			wantKind: "handover_rejected",
			wantText: "Serah terima kas CHO-2025-00012 ditolak: jumlah tidak sesuai",
		},
		{
			name: "cancellation notifies the named receiver",
			event: events.Event{
				Type:   events.CashHandoverCancelled,
				Number: "CHO-2025-00013",
				Amount: 75000,
				Meta:   map[string]any{"to_user_id": int64(300)},
			},
			wantUser: 300,
			wantKind: "handover_cancelled",
			wantText: "Serah terima kas CHO-2025-00013 dibatalkan oleh pengirim.",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cache := &countingCache{}
			notifier := &captureNotifier{}
			job := NewEventDispatchJob(cache, notifier, discardLogger(), nil)

			require.NoError(t, job.Handle(context.Background(), dispatchTask(t, tc.event)))

			require.Equal(t, 1, cache.bumps)
			require.Len(t, notifier.sent, 1)
			require.Equal(t, tc.wantUser, notifier.sent[0].UserID)
			require.Equal(t, tc.wantKind, notifier.sent[0].Kind)
			require.Equal(t, tc.wantText, notifier.sent[0].Message)
		})
	}
}

func TestDispatchCustodyEventsBumpWithoutNotifying(t *testing.T) {
	cache := &countingCache{}
	notifier := &captureNotifier{}
	job := NewEventDispatchJob(cache, notifier, discardLogger(), nil)

	event := events.Event{
		Type:     events.CashCustodyIncreased,
		EntityID: 3,
		Amount:   50000,
	}

	require.NoError(t, job.Handle(context.Background(), dispatchTask(t, event)))

	require.Equal(t, 1, cache.bumps)
	require.Empty(t, notifier.sent)
}

func TestDispatchSkipsMalformedPayload(t *testing.T) {
	job := NewEventDispatchJob(&countingCache{}, &captureNotifier{}, discardLogger(), nil)

	err := job.Handle(context.Background(), asynq.NewTask(events.TaskTypeDispatch, []byte("not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(events.TaskTypeDispatch, []byte(`{"entity_id":1}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestFormatRupiah(t *testing.T) {
	require.Equal(t, "Rp1.500.000", formatRupiah(1500000))
	require.Equal(t, "Rp2.500,5", formatRupiah(2500.5))
	require.Equal(t, "Rp0", formatRupiah(0))
}
