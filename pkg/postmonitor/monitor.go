package postmonitor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Event is one executed occurrence of a scheduled post.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	PostID       string    `json:"postId"`
	GroupID      string    `json:"groupId"`
	GroupName    string    `json:"groupName"`
	Title        string    `json:"title"`
	Recurring    bool      `json:"recurring"`
	ScheduledFor time.Time `json:"scheduledFor"`
	LateByMs     int64     `json:"lateByMs"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
}

type Stats struct {
	TotalPublished int64   `json:"totalPublished"`
	TotalFailed    int64   `json:"totalFailed"`
	RecentEvents   []Event `json:"recentEvents"`
}

// Monitor keeps counters and a fixed ring of the latest events, newest last.
type Monitor struct {
	clock clockwork.Clock
	ttl   time.Duration

	eventsMu sync.Mutex
	events   []Event
	idx      int
	count    int

	totalPublished int64
	totalFailed    int64
}

// New returns a monitor keeping size events. Events older than ttl are
// hidden from Stats; a zero ttl keeps them until overwritten.
func New(size int, ttl time.Duration, clock clockwork.Clock) *Monitor {
	if size <= 0 {
		size = 200
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{clock: clock, ttl: ttl, events: make([]Event, size)}
}

func (m *Monitor) Record(e Event) {
	e.Timestamp = m.clock.Now().UTC()
	if !e.ScheduledFor.IsZero() {
		if late := e.Timestamp.Sub(e.ScheduledFor); late > 0 {
			e.LateByMs = late.Milliseconds()
		}
	}

	if e.Status == StatusOK {
		atomic.AddInt64(&m.totalPublished, 1)
	} else {
		atomic.AddInt64(&m.totalFailed, 1)
	}

	m.eventsMu.Lock()
	m.events[m.idx] = e
	m.idx = (m.idx + 1) % len(m.events)
	if m.count < len(m.events) {
		m.count++
	}
	m.eventsMu.Unlock()
}

func (m *Monitor) GetStats() Stats {
	m.eventsMu.Lock()
	defer m.eventsMu.Unlock()

	var cutoff time.Time
	if m.ttl > 0 {
		cutoff = m.clock.Now().UTC().Add(-m.ttl)
	}

	res := make([]Event, 0, m.count)
	start := (m.idx - m.count) % len(m.events)
	if start < 0 {
		start += len(m.events)
	}
	for i := 0; i < m.count; i++ {
		e := m.events[(start+i)%len(m.events)]
		if !cutoff.IsZero() && e.Timestamp.Before(cutoff) {
			continue
		}
		res = append(res, e)
	}

	return Stats{
		TotalPublished: atomic.LoadInt64(&m.totalPublished),
		TotalFailed:    atomic.LoadInt64(&m.totalFailed),
		RecentEvents:   res,
	}
}
