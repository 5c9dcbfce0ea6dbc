package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubTimelineRepo struct {
	windowRows []TimelineRow
	allRows    []TimelineRow
	total      int
	windowErr  error

	lastWindow TimelineQuery
	lastAll    TimelineQuery
	lastCount  TimelineQuery
}

func (s *stubTimelineRepo) TimelineWindow(_ context.Context, q TimelineQuery) ([]TimelineRow, error) {
	s.lastWindow = q
	if s.windowErr != nil {
		return nil, s.windowErr
	}
	return s.windowRows, nil
}

func (s *stubTimelineRepo) TimelineAll(_ context.Context, q TimelineQuery) ([]TimelineRow, error) {
	s.lastAll = q
	return s.allRows, nil
}

func (s *stubTimelineRepo) CountTimeline(_ context.Context, q TimelineQuery) (int, error) {
	s.lastCount = q
	return s.total, nil
}

func sampleRow(ts string, actor int64, action string) TimelineRow {
	at, _ := time.Parse(time.RFC3339, ts)
	return TimelineRow{At: at, ActorID: actor, Action: action, Entity: "cash_handover", EntityID: "42"}
}

func TestTimelinePagingComputesOffsetAndTotals(t *testing.T) {
	repo := &stubTimelineRepo{
		windowRows: []TimelineRow{sampleRow("2025-07-10T10:00:00Z", 301, "handover.acknowledge")},
		total:      35,
	}
	svc := NewService(repo)

	result, err := svc.Timeline(context.Background(), TimelineFilters{Page: 3, PageSize: 10})
	require.NoError(t, err)

	require.Equal(t, 10, repo.lastWindow.Limit)
	require.Equal(t, 20, repo.lastWindow.Offset)
	require.Equal(t, 3, result.Paging.Page)
	require.Equal(t, 35, result.Paging.Total)
	require.Equal(t, 4, result.Paging.TotalPages)
	require.Len(t, result.Rows, 1)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Equal(t, maxPageSize, repo.lastWindow.Limit)

	_, err = svc.Timeline(context.Background(), TimelineFilters{})
	require.NoError(t, err)
	require.Equal(t, defaultPageSize, repo.lastWindow.Limit)
	require.Equal(t, 0, repo.lastWindow.Offset)
}

func TestTimelinePassesFiltersThrough(t *testing.T) {
	repo := &stubTimelineRepo{}
	svc := NewService(repo)

	from := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC)
	_, err := svc.Timeline(context.Background(), TimelineFilters{
		From:    from,
		To:      to,
		ActorID: 301,
		Entity:  "cash_handover",
		Action:  "handover.initiate",
	})
	require.NoError(t, err)

	require.Equal(t, from, repo.lastCount.From)
	require.Equal(t, to, repo.lastCount.To)
	require.Equal(t, int64(301), repo.lastWindow.ActorID)
	require.Equal(t, "cash_handover", repo.lastWindow.Entity)
	require.Equal(t, "handover.initiate", repo.lastWindow.Action)
}

func TestTimelinePropagatesRepoError(t *testing.T) {
	repo := &stubTimelineRepo{windowErr: errors.New("connection lost")}
	svc := NewService(repo)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.ErrorContains(t, err, "connection lost")
}

func TestExportReturnsAllRowsWithoutPaging(t *testing.T) {
	repo := &stubTimelineRepo{
		allRows: []TimelineRow{
			sampleRow("2025-07-09T09:00:00Z", 101, "handover.initiate"),
			sampleRow("2025-07-10T10:00:00Z", 301, "handover.acknowledge"),
		},
	}
	svc := NewService(repo)

	rows, err := svc.Export(context.Background(), TimelineFilters{Page: 9, PageSize: 1})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Zero(t, repo.lastAll.Limit)
	require.Zero(t, repo.lastAll.Offset)
}

func TestServiceRequiresRepository(t *testing.T) {
	svc := NewService(nil)

	_, err := svc.Timeline(context.Background(), TimelineFilters{})
	require.Error(t, err)

	_, err = svc.Export(context.Background(), TimelineFilters{})
	require.Error(t, err)
}
