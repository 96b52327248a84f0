package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	"github.com/AzielCF/az-grouppost/infrastructure/storage"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/pkg/msgworker"
	"github.com/AzielCF/az-grouppost/pkg/timeutils"
)

const postsDocument = "posts"

const (
	errMissedAtStartup = "the application was not running at the scheduled time"
	errMissedOnCreate  = "scheduled time had already passed when the post was created"
)

// lateFireGrace bounds how far behind its scheduled time a timer may fire
// and still publish. Later occurrences are recorded as missed.
const lateFireGrace = 5 * time.Minute

var (
	errQueueFull = errors.New("post worker queue is full")
	errFiredLate = errors.New("the scheduled time passed while the application was suspended")
)

type armedTimer struct {
	timer clockwork.Timer
	post  domainPost.Post
	at    time.Time
	seq   uint64
}

// Scheduler owns the posts document and the timers that fire its active
// records. Fires run on the worker pool keyed by post id.
//
// Only a started scheduler arms timers. One that is never started still
// writes posts, which the started one picks up on its next Sync.
type Scheduler struct {
	store     storage.Store
	publisher domainPost.Publisher
	pool      *msgworker.Pool
	clock     clockwork.Clock
	loc       *time.Location

	// docMu serializes read-modify-write cycles on the posts document.
	docMu sync.Mutex

	timerMu sync.Mutex
	timers  map[string]*armedTimer
	seq     uint64
	running bool
	stopped bool
	// known holds every post id this process has armed, so Sync never
	// re-arms an occurrence that already fired.
	known    map[string]struct{}
	syncDone chan struct{}

	// SyncInterval, when positive, makes Start re-read the posts document
	// periodically.
	SyncInterval time.Duration

	// OnOutcome, when set, is called once per executed occurrence.
	OnOutcome func(p domainPost.Post, at time.Time, status domainPost.Status, err error)
}

var _ domainPost.IPostUsecase = (*Scheduler)(nil)

func NewScheduler(store storage.Store, publisher domainPost.Publisher, pool *msgworker.Pool, clock clockwork.Clock, loc *time.Location) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		store:     store,
		publisher: publisher,
		pool:      pool,
		clock:     clock,
		loc:       loc,
		timers:    make(map[string]*armedTimer),
		known:     make(map[string]struct{}),
	}
}

func (s *Scheduler) load(ctx context.Context) []domainPost.Post {
	posts := []domainPost.Post{}
	s.store.Read(ctx, postsDocument, &posts)
	if posts == nil {
		posts = []domainPost.Post{}
	}
	return posts
}

func (s *Scheduler) save(ctx context.Context, posts []domainPost.Post) error {
	return s.store.Write(ctx, postsDocument, posts)
}

// Start starts the worker pool and reconciles the stored posts: one-shots
// whose time passed while the process was down become missed, everything
// else still active is armed.
func (s *Scheduler) Start(ctx context.Context) error {
	s.pool.Start(ctx)
	now := s.clock.Now()

	s.docMu.Lock()
	posts := s.load(ctx)
	var toArm []domainPost.Post
	missed := 0
	for i, p := range posts {
		if !p.IsActive() {
			continue
		}
		if !p.IsRecurring() && !p.ScheduledAt.After(now) {
			posts[i].Status = domainPost.StatusMissed
			posts[i].Error = errMissedAtStartup
			posts[i].UpdatedAt = now.UTC()
			missed++
			continue
		}
		toArm = append(toArm, p)
	}
	var err error
	if missed > 0 {
		err = s.save(ctx, posts)
	}
	s.docMu.Unlock()
	if err != nil {
		return fmt.Errorf("persist missed posts: %w", err)
	}

	s.timerMu.Lock()
	s.running = true
	for _, p := range toArm {
		s.armLocked(p, now)
	}
	s.timerMu.Unlock()
	logrus.Infof("[SCHEDULER] started: %d armed, %d marked missed", len(toArm), missed)

	if s.SyncInterval > 0 {
		s.syncDone = make(chan struct{})
		go s.syncLoop(s.SyncInterval, s.syncDone)
	}
	return nil
}

func (s *Scheduler) syncLoop(interval time.Duration, done chan struct{}) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.Chan():
			s.Sync(context.Background())
		}
	}
}

// Sync reconciles the timers with the stored posts: active records this
// process has never armed are armed, and timers whose record is gone or no
// longer active are stopped. It returns how many posts were armed.
func (s *Scheduler) Sync(ctx context.Context) int {
	// docMu is held throughout so every armed post is already in the
	// document that was read.
	s.docMu.Lock()
	defer s.docMu.Unlock()
	var posts []domainPost.Post
	if !s.store.Read(ctx, postsDocument, &posts) {
		// Unreadable is not the same as empty; keep the current timers.
		return 0
	}

	now := s.clock.Now()
	active := make(map[string]struct{}, len(posts))
	armed := 0

	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if !s.running || s.stopped {
		return 0
	}
	for _, p := range posts {
		if !p.IsActive() {
			continue
		}
		active[p.ID] = struct{}{}
		if _, seen := s.known[p.ID]; seen {
			continue
		}
		if !p.IsRecurring() && !p.ScheduledAt.After(now.Add(-lateFireGrace)) {
			// Too old to publish; the next Start records it as missed.
			continue
		}
		s.armLocked(p, now)
		armed++
	}
	for id, t := range s.timers {
		if _, ok := active[id]; !ok {
			t.timer.Stop()
			delete(s.timers, id)
			logrus.Infof("[SCHEDULER] post %s is no longer active in storage, disarmed", id)
		}
	}
	if armed > 0 {
		logrus.Infof("[SCHEDULER] sync armed %d post(s) written elsewhere", armed)
	}
	return armed
}

// Stop disarms every timer and drains the worker pool.
func (s *Scheduler) Stop() {
	s.timerMu.Lock()
	if s.syncDone != nil {
		close(s.syncDone)
		s.syncDone = nil
	}
	s.stopped = true
	for id, t := range s.timers {
		t.timer.Stop()
		delete(s.timers, id)
	}
	s.timerMu.Unlock()
	s.pool.Stop()
	logrus.Info("[SCHEDULER] stopped")
}

func (s *Scheduler) AddPost(ctx context.Context, data domainPost.Post, skipSchedule bool) (domainPost.Post, error) {
	now := s.clock.Now().UTC()

	p := data
	p.ID = uuid.NewString()
	if p.Status == "" {
		p.Status = domainPost.StatusPending
		if p.IsRecurring() {
			p.Status = domainPost.StatusRecurring
		}
	}
	if p.Visibility == "" {
		p.Visibility = domainPost.VisibilityPublic
	}
	p.CreatedAt = now
	p.UpdatedAt = now

	if !skipSchedule && !p.IsRecurring() && p.Status == domainPost.StatusPending && !p.ScheduledAt.After(now) {
		p.Status = domainPost.StatusMissed
		p.Error = errMissedOnCreate
	}

	s.docMu.Lock()
	posts := append(s.load(ctx), p)
	err := s.save(ctx, posts)
	s.docMu.Unlock()
	if err != nil {
		return domainPost.Post{}, fmt.Errorf("persist post: %w", err)
	}

	if !skipSchedule && p.IsActive() {
		s.arm(p, now)
	}
	logrus.Debugf("[SCHEDULER] added post %s (%s) for group %s", p.ID, p.Status, p.GroupID)
	return p, nil
}

// DeletePost disarms the post before touching the record, so no later fire
// can start for it. A fire already running is not interrupted.
func (s *Scheduler) DeletePost(ctx context.Context, id string, force bool) error {
	s.disarm(id)

	s.docMu.Lock()
	defer s.docMu.Unlock()

	posts := s.load(ctx)
	idx := indexOfPost(posts, id)
	if idx < 0 {
		return pkgError.NotFoundError(fmt.Sprintf("post %s not found", id))
	}
	if force {
		posts = append(posts[:idx], posts[idx+1:]...)
	} else {
		posts[idx].Status = domainPost.StatusDeleted
		posts[idx].UpdatedAt = s.clock.Now().UTC()
	}
	if err := s.save(ctx, posts); err != nil {
		return fmt.Errorf("persist delete: %w", err)
	}
	logrus.Infof("[SCHEDULER] deleted post %s (force=%v)", id, force)
	return nil
}

// GetPosts filters by status when one is given; otherwise soft-deleted
// records are only returned with includeDeleted.
func (s *Scheduler) GetPosts(ctx context.Context, includeDeleted bool, status domainPost.Status) ([]domainPost.Post, error) {
	s.docMu.Lock()
	posts := s.load(ctx)
	s.docMu.Unlock()

	out := make([]domainPost.Post, 0, len(posts))
	for _, p := range posts {
		switch {
		case status != "":
			if p.Status != status {
				continue
			}
		case !includeDeleted && p.Status == domainPost.StatusDeleted:
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	t, ok := s.timers[id]
	if !ok {
		return time.Time{}, false
	}
	return t.at, true
}

func (s *Scheduler) Stats() domainPost.SchedulerStats {
	s.timerMu.Lock()
	armed := len(s.timers)
	s.timerMu.Unlock()
	return domainPost.SchedulerStats{Armed: armed, Pool: s.pool.Stats()}
}

// nextFire returns when p should fire next, strictly after from for
// recurring posts.
func (s *Scheduler) nextFire(p domainPost.Post, from time.Time) (time.Time, bool) {
	if !p.IsRecurring() {
		return p.ScheduledAt, true
	}
	at, err := timeutils.NextOccurrence(string(p.Recurrence.Type), p.Recurrence.Days, p.ScheduledAt, from, s.loc)
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] cannot compute next run for %s", p.ID)
		return time.Time{}, false
	}
	return at, true
}

func (s *Scheduler) arm(p domainPost.Post, from time.Time) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.armLocked(p, from)
}

func (s *Scheduler) armLocked(p domainPost.Post, from time.Time) {
	if !s.running || s.stopped {
		return
	}
	at, ok := s.nextFire(p, from)
	if !ok {
		return
	}
	if old, exists := s.timers[p.ID]; exists {
		old.timer.Stop()
	}
	s.seq++
	seq := s.seq
	delay := at.Sub(s.clock.Now())
	t := s.clock.AfterFunc(delay, func() { s.fire(p.ID, seq) })
	s.timers[p.ID] = &armedTimer{timer: t, post: p, at: at, seq: seq}
	s.known[p.ID] = struct{}{}
	logrus.Debugf("[SCHEDULER] armed %s for %s (%s)", p.ID, at.In(s.loc).Format(time.RFC3339), humanize.Time(at))
}

func (s *Scheduler) disarm(id string) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if t, ok := s.timers[id]; ok {
		t.timer.Stop()
		delete(s.timers, id)
	}
}

// fire runs on the timer goroutine. Recurring posts are re-armed from the
// later of the scheduled instant and now, under the same lock that checks the
// timer is still current.
func (s *Scheduler) fire(id string, seq uint64) {
	s.timerMu.Lock()
	cur, ok := s.timers[id]
	if !ok || cur.seq != seq {
		s.timerMu.Unlock()
		return
	}
	delete(s.timers, id)
	now := s.clock.Now()
	if cur.post.IsRecurring() {
		from := cur.at
		if now.After(from) {
			from = now
		}
		s.armLocked(cur.post, from)
	}
	s.timerMu.Unlock()

	at := cur.at
	if late := now.Sub(at); late > lateFireGrace {
		logrus.Warnf("[SCHEDULER] post %s fired %s late, recording as missed", id, humanize.RelTime(at, now, "", ""))
		ctx := context.Background()
		if p, found := s.find(ctx, id); found && p.IsActive() {
			_ = s.recordOutcome(ctx, p, at, errFiredLate)
		}
		return
	}
	logrus.Infof("[SCHEDULER] firing post %s for group %s", id, cur.post.GroupName)
	job := msgworker.Job{
		Key:     id,
		Handler: func(ctx context.Context) error { return s.execute(ctx, id, at) },
	}
	if !s.pool.TryDispatch(job) {
		ctx := context.Background()
		if p, found := s.find(ctx, id); found {
			_ = s.recordOutcome(ctx, p, at, errQueueFull)
		}
	}
}

func (s *Scheduler) find(ctx context.Context, id string) (domainPost.Post, bool) {
	s.docMu.Lock()
	defer s.docMu.Unlock()
	posts := s.load(ctx)
	if idx := indexOfPost(posts, id); idx >= 0 {
		return posts[idx], true
	}
	return domainPost.Post{}, false
}

// execute publishes one occurrence. The record is re-read first so a post
// deleted after its timer fired is skipped.
func (s *Scheduler) execute(ctx context.Context, id string, at time.Time) error {
	p, ok := s.find(ctx, id)
	if !ok || !p.IsActive() {
		logrus.Infof("[SCHEDULER] post %s is no longer active, skipping", id)
		return nil
	}

	_, err := s.publisher.CreateGroupPost(ctx, p.GroupID, domainPost.PublishRequest{
		Title:            p.Title,
		Text:             p.Text,
		ImageID:          p.ImageID,
		SendNotification: p.SendNotification,
		Visibility:       p.Visibility,
	})
	if err != nil && ctx.Err() != nil && errors.Is(err, context.Canceled) {
		// Shutdown interrupted the attempt; the record stays as it was.
		logrus.Warnf("[SCHEDULER] publishing post %s interrupted by shutdown", id)
		return nil
	}
	if err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] publishing post %s failed", id)
	}
	return s.recordOutcome(context.WithoutCancel(ctx), p, at, err)
}

// recordOutcome writes the result of one occurrence. Recurring templates get
// a new history record and are otherwise left alone.
func (s *Scheduler) recordOutcome(ctx context.Context, p domainPost.Post, at time.Time, pubErr error) error {
	status := domainPost.StatusPosted
	msg := ""
	if pubErr != nil {
		status = domainPost.StatusFailed
		if errors.Is(pubErr, errFiredLate) {
			status = domainPost.StatusMissed
		}
		msg = pubErr.Error()
	}
	if s.OnOutcome != nil {
		s.OnOutcome(p, at, status, pubErr)
	}

	if p.IsRecurring() {
		_, err := s.AddPost(ctx, domainPost.Post{
			GroupID:          p.GroupID,
			GroupName:        p.GroupName,
			Title:            p.Title,
			Text:             p.Text,
			ImageID:          p.ImageID,
			SendNotification: p.SendNotification,
			Visibility:       p.Visibility,
			ScheduledAt:      at.UTC(),
			Status:           status,
			ParentID:         p.ID,
			Error:            msg,
		}, true)
		if err != nil {
			logrus.WithError(err).Errorf("[SCHEDULER] failed to record history for %s", p.ID)
		}
		return err
	}

	s.docMu.Lock()
	defer s.docMu.Unlock()
	posts := s.load(ctx)
	idx := indexOfPost(posts, p.ID)
	if idx < 0 {
		logrus.Warnf("[SCHEDULER] post %s was removed while publishing, outcome %s dropped", p.ID, status)
		return nil
	}
	posts[idx].Status = status
	posts[idx].Error = msg
	posts[idx].UpdatedAt = s.clock.Now().UTC()
	if err := s.save(ctx, posts); err != nil {
		logrus.WithError(err).Errorf("[SCHEDULER] failed to record outcome for %s", p.ID)
		return err
	}
	logrus.Infof("[SCHEDULER] post %s %s", p.ID, status)
	return nil
}

func indexOfPost(posts []domainPost.Post, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}
