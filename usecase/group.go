package usecase

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	domainCache "github.com/AzielCF/az-grouppost/domains/cache"
	domainGroup "github.com/AzielCF/az-grouppost/domains/group"
	"github.com/AzielCF/az-grouppost/infrastructure/storage"
	"github.com/AzielCF/az-grouppost/infrastructure/vrchat"
)

type GroupSettings struct {
	CacheTTL        time.Duration
	RefreshCooldown time.Duration
	EphemeralTTL    time.Duration
}

type serviceGroup struct {
	api       domainGroup.GroupAPI
	store     storage.Store
	ephemeral domainCache.EphemeralStore
	clock     clockwork.Clock
	settings  GroupSettings

	observerMu sync.RWMutex
	observer   domainGroup.ProgressObserver

	userLocks sync.Map // userID -> *sync.Mutex
}

func NewGroupService(api domainGroup.GroupAPI, store storage.Store, ephemeral domainCache.EphemeralStore, clock clockwork.Clock, settings GroupSettings) domainGroup.IGroupUsecase {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if settings.CacheTTL <= 0 {
		settings.CacheTTL = 30 * time.Minute
	}
	if settings.RefreshCooldown <= 0 {
		settings.RefreshCooldown = 5 * time.Minute
	}
	if settings.EphemeralTTL <= 0 {
		settings.EphemeralTTL = 5 * time.Minute
	}
	return &serviceGroup{
		api:       api,
		store:     store,
		ephemeral: ephemeral,
		clock:     clock,
		settings:  settings,
		observer:  domainGroup.NopProgress,
	}
}

func (s *serviceGroup) SetProgressObserver(o domainGroup.ProgressObserver) {
	if o == nil {
		o = domainGroup.NopProgress
	}
	s.observerMu.Lock()
	s.observer = o
	s.observerMu.Unlock()
}

func (s *serviceGroup) notify(p domainGroup.Progress) {
	s.observerMu.RLock()
	o := s.observer
	s.observerMu.RUnlock()
	o.OnProgress(p)
}

func (s *serviceGroup) lockUser(userID string) func() {
	v, _ := s.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func cacheDocumentName(userID string) string {
	return "groups_" + userID
}

func (s *serviceGroup) loadCache(ctx context.Context, userID string) (domainGroup.GroupCacheDocument, bool) {
	doc := domainGroup.GroupCacheDocument{Groups: map[string]domainGroup.GroupPermissionEntry{}}
	found := s.store.Read(ctx, cacheDocumentName(userID), &doc)
	if doc.Groups == nil {
		doc.Groups = map[string]domainGroup.GroupPermissionEntry{}
	}
	return doc, found
}

func (s *serviceGroup) GetUserGroups(ctx context.Context, userID string) (domainGroup.GetGroupsResponse, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	doc, found := s.loadCache(ctx, userID)
	now := s.clock.Now()

	if !found || doc.LastFullCheck.IsZero() {
		logrus.Debugf("[GROUPS] no scan on record for %s", userID)
		return domainGroup.GetGroupsResponse{Groups: []domainGroup.PermittedGroup{}, NeedsScan: true}, nil
	}
	if now.Sub(doc.LastFullCheck) < s.settings.CacheTTL {
		return domainGroup.GetGroupsResponse{Groups: permitted(doc)}, nil
	}

	logrus.Infof("[GROUPS] cache for %s is stale (checked %s), smart refresh", userID, humanize.Time(doc.LastFullCheck))
	next, err := s.scan(ctx, userID, doc, false)
	if err != nil {
		return domainGroup.GetGroupsResponse{}, err
	}
	return domainGroup.GetGroupsResponse{Groups: permitted(next)}, nil
}

func (s *serviceGroup) RefreshUserGroups(ctx context.Context, userID string) (domainGroup.RefreshGroupsResponse, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	doc, _ := s.loadCache(ctx, userID)
	now := s.clock.Now()

	if !doc.LastRefresh.IsZero() {
		if elapsed := now.Sub(doc.LastRefresh); elapsed < s.settings.RefreshCooldown {
			remaining := int(math.Ceil((s.settings.RefreshCooldown - elapsed).Seconds()))
			logrus.Infof("[GROUPS] refresh for %s on cooldown, %ds left", userID, remaining)
			return domainGroup.RefreshGroupsResponse{
				Groups:            permitted(doc),
				CooldownRemaining: remaining,
			}, nil
		}
	}

	next, err := s.scan(ctx, userID, doc, true)
	if err != nil {
		return domainGroup.RefreshGroupsResponse{}, err
	}
	return domainGroup.RefreshGroupsResponse{Groups: permitted(next), Refreshed: true}, nil
}

// scan fetches the live group list and builds a new cache document. Unless
// force is set, groups with a recorded verdict keep it.
func (s *serviceGroup) scan(ctx context.Context, userID string, prev domainGroup.GroupCacheDocument, force bool) (domainGroup.GroupCacheDocument, error) {
	groups, err := s.api.ListUserGroups(ctx, userID)
	if err != nil {
		logrus.WithError(err).Errorf("[GROUPS] failed to list groups for %s", userID)
		return domainGroup.GroupCacheDocument{}, err
	}

	next := domainGroup.GroupCacheDocument{
		LastRefresh: prev.LastRefresh,
		Groups:      make(map[string]domainGroup.GroupPermissionEntry, len(groups)),
	}

	total := len(groups)
	checked, reused := 0, 0
	for i, g := range groups {
		progress := domainGroup.Progress{UserID: userID, Current: i + 1, Total: total, GroupName: g.Name, Phase: domainGroup.PhaseFetching}
		s.notify(progress)

		if cached, ok := prev.Groups[g.ID]; ok && !force && cached.CheckedAt != nil && (g.OwnerID == userID) == cached.IsOwner {
			cached.Name = g.Name
			cached.ShortCode = g.ShortCode
			cached.GroupData = g
			next.Groups[g.ID] = cached
			reused++
			continue
		}

		waitCtx := vrchat.WithWaitObserver(ctx, func(_ vrchat.WaitReason, _ time.Duration) {
			waiting := progress
			waiting.Phase = domainGroup.PhaseWaiting
			s.notify(waiting)
		})
		next.Groups[g.ID] = s.checkGroup(waitCtx, userID, g)
		checked++
	}

	now := s.clock.Now().UTC()
	next.LastFullCheck = now
	if force {
		next.LastRefresh = now
	}
	s.notify(domainGroup.Progress{UserID: userID, Current: total, Total: total, Phase: domainGroup.PhaseDone})

	if err := s.store.Write(ctx, cacheDocumentName(userID), next); err != nil {
		logrus.WithError(err).Errorf("[GROUPS] failed to persist group cache for %s", userID)
	}
	logrus.Infof("[GROUPS] scanned %d groups for %s (%d checked, %d reused, force=%v)", total, userID, checked, reused, force)
	return next, nil
}

// checkGroup produces a verdict. A failed lookup is recorded with Error and
// no CheckedAt, so the next smart refresh tries it again.
func (s *serviceGroup) checkGroup(ctx context.Context, userID string, g domainGroup.GroupInfo) domainGroup.GroupPermissionEntry {
	entry := domainGroup.GroupPermissionEntry{
		GroupID:   g.ID,
		Name:      g.Name,
		ShortCode: g.ShortCode,
		GroupData: g,
	}

	if g.OwnerID != "" && g.OwnerID == userID {
		now := s.clock.Now().UTC()
		entry.IsOwner = true
		entry.HasPermission = true
		entry.CheckedAt = &now
		return entry
	}

	ok, err := s.hasAnnouncementRole(ctx, g.ID)
	if err != nil {
		logrus.WithError(err).Warnf("[GROUPS] permission check failed for %s (%s)", g.Name, g.ID)
		entry.Error = err.Error()
		return entry
	}
	now := s.clock.Now().UTC()
	entry.HasPermission = ok
	entry.CheckedAt = &now
	return entry
}

func (s *serviceGroup) hasAnnouncementRole(ctx context.Context, groupID string) (bool, error) {
	detail, err := s.groupDetail(ctx, groupID)
	if err != nil {
		return false, err
	}
	if detail == nil || len(detail.MyRoleIDs) == 0 {
		return false, nil
	}

	roles, err := s.groupRoles(ctx, groupID)
	if err != nil {
		return false, err
	}
	mine := make(map[string]bool, len(detail.MyRoleIDs))
	for _, id := range detail.MyRoleIDs {
		mine[id] = true
	}
	for _, r := range roles {
		if mine[r.ID] && r.GrantsAnnouncements() {
			return true, nil
		}
	}
	return false, nil
}

func (s *serviceGroup) groupDetail(ctx context.Context, groupID string) (*domainGroup.GroupDetail, error) {
	key := "group:" + groupID
	var cached domainGroup.GroupDetail
	if ok, err := s.ephemeral.Get(ctx, key, &cached); err != nil {
		logrus.WithError(err).Debugf("[GROUPS] ephemeral read %s failed", key)
	} else if ok {
		return &cached, nil
	}

	detail, err := s.api.GetGroup(ctx, groupID)
	if err != nil || detail == nil {
		return detail, err
	}
	if err := s.ephemeral.Set(ctx, key, detail, s.settings.EphemeralTTL); err != nil {
		logrus.WithError(err).Debugf("[GROUPS] ephemeral write %s failed", key)
	}
	return detail, nil
}

func (s *serviceGroup) groupRoles(ctx context.Context, groupID string) ([]domainGroup.GroupRole, error) {
	key := "roles:" + groupID
	var cached []domainGroup.GroupRole
	if ok, err := s.ephemeral.Get(ctx, key, &cached); err != nil {
		logrus.WithError(err).Debugf("[GROUPS] ephemeral read %s failed", key)
	} else if ok {
		return cached, nil
	}

	roles, err := s.api.ListGroupRoles(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.ephemeral.Set(ctx, key, roles, s.settings.EphemeralTTL); err != nil {
		logrus.WithError(err).Debugf("[GROUPS] ephemeral write %s failed", key)
	}
	return roles, nil
}

// permitted lists the groups carrying posting rights, sorted by name.
func permitted(doc domainGroup.GroupCacheDocument) []domainGroup.PermittedGroup {
	out := make([]domainGroup.PermittedGroup, 0, len(doc.Groups))
	for id, e := range doc.Groups {
		if !e.HasPermission {
			continue
		}
		info := e.GroupData
		if info.ID == "" {
			info.ID = id
			info.Name = e.Name
			info.ShortCode = e.ShortCode
		}
		out = append(out, domainGroup.PermittedGroup{GroupInfo: info, IsOwner: e.IsOwner, HasPermission: true})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}
