package postmonitor

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_RingKeepsNewest(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	m := New(3, 0, clock)

	for _, id := range []string{"a", "b", "c", "d"} {
		m.Record(Event{PostID: id, Status: StatusOK})
		clock.Advance(time.Second)
	}

	stats := m.GetStats()
	require.Len(t, stats.RecentEvents, 3)
	assert.Equal(t, "b", stats.RecentEvents[0].PostID)
	assert.Equal(t, "d", stats.RecentEvents[2].PostID)
	assert.Equal(t, int64(4), stats.TotalPublished)
}

func TestMonitor_CountsFailuresAndLateness(t *testing.T) {
	at := time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(at.Add(1500 * time.Millisecond))
	m := New(10, 0, clock)

	m.Record(Event{PostID: "p1", ScheduledFor: at, Status: StatusError, Error: "rate limited"})

	stats := m.GetStats()
	assert.Equal(t, int64(0), stats.TotalPublished)
	assert.Equal(t, int64(1), stats.TotalFailed)
	require.Len(t, stats.RecentEvents, 1)
	assert.Equal(t, int64(1500), stats.RecentEvents[0].LateByMs)
}

func TestMonitor_TTLHidesOldEvents(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC))
	m := New(10, time.Hour, clock)

	m.Record(Event{PostID: "old", Status: StatusOK})
	clock.Advance(2 * time.Hour)
	m.Record(Event{PostID: "new", Status: StatusOK})

	stats := m.GetStats()
	require.Len(t, stats.RecentEvents, 1)
	assert.Equal(t, "new", stats.RecentEvents[0].PostID)
	assert.Equal(t, int64(2), stats.TotalPublished)
}
