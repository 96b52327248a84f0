package group

import (
	"context"
	"time"
)

const (
	PermissionAnnouncementManage = "group-announcement-manage"
	PermissionAll                = "*"
)

// GroupInfo is the remote group payload, kept opaque by the permission cache.
type GroupInfo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ShortCode     string `json:"shortCode"`
	Discriminator string `json:"discriminator,omitempty"`
	OwnerID       string `json:"ownerId"`
	IconURL       string `json:"iconUrl,omitempty"`
	BannerURL     string `json:"bannerUrl,omitempty"`
	MemberCount   int    `json:"memberCount,omitempty"`
	Privacy       string `json:"privacy,omitempty"`
}

// GroupDetail is a single group as seen by the authenticated user.
type GroupDetail struct {
	GroupInfo
	MyRoleIDs []string `json:"myRoleIds"`
}

type GroupRole struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Permissions []string `json:"permissions"`
}

// GrantsAnnouncements reports whether the role may manage group announcements.
func (r GroupRole) GrantsAnnouncements() bool {
	for _, p := range r.Permissions {
		if p == PermissionAnnouncementManage || p == PermissionAll {
			return true
		}
	}
	return false
}

// GroupAPI is the slice of the remote service the permission cache needs.
type GroupAPI interface {
	ListUserGroups(ctx context.Context, userID string) ([]GroupInfo, error)
	// GetGroup returns nil, nil when the group does not exist.
	GetGroup(ctx context.Context, groupID string) (*GroupDetail, error)
	ListGroupRoles(ctx context.Context, groupID string) ([]GroupRole, error)
}

// GroupPermissionEntry is the cached verdict for one group. A nil CheckedAt
// marks a group that still has to be checked.
type GroupPermissionEntry struct {
	GroupID       string     `json:"groupId"`
	Name          string     `json:"name"`
	ShortCode     string     `json:"shortCode"`
	IsOwner       bool       `json:"isOwner"`
	HasPermission bool       `json:"hasPermission"`
	CheckedAt     *time.Time `json:"checkedAt,omitempty"`
	GroupData     GroupInfo  `json:"groupData"`
	Error         string     `json:"error,omitempty"`
}

type GroupCacheDocument struct {
	LastFullCheck time.Time                       `json:"lastFullCheck"`
	LastRefresh   time.Time                       `json:"lastRefresh"`
	Groups        map[string]GroupPermissionEntry `json:"groups"`
}

// PermittedGroup is a group the user may post to.
type PermittedGroup struct {
	GroupInfo
	IsOwner       bool `json:"isOwner"`
	HasPermission bool `json:"hasPermission"`
}

type GetGroupsResponse struct {
	Groups    []PermittedGroup `json:"groups"`
	NeedsScan bool             `json:"needsScan"`
}

type RefreshGroupsResponse struct {
	Groups            []PermittedGroup `json:"groups"`
	CooldownRemaining int              `json:"cooldownRemaining"`
	Refreshed         bool             `json:"refreshed"`
}

type ProgressPhase string

const (
	PhaseFetching ProgressPhase = "fetching"
	PhaseWaiting  ProgressPhase = "waiting"
	PhaseDone     ProgressPhase = "done"
)

type Progress struct {
	UserID    string        `json:"userId"`
	Current   int           `json:"current"`
	Total     int           `json:"total"`
	GroupName string        `json:"groupName"`
	Phase     ProgressPhase `json:"phase"`
}

// ProgressObserver receives scan progress. Implementations must not block.
type ProgressObserver interface {
	OnProgress(p Progress)
}

type ProgressFunc func(p Progress)

func (f ProgressFunc) OnProgress(p Progress) { f(p) }

// NopProgress discards every notification.
var NopProgress ProgressObserver = ProgressFunc(func(Progress) {})

type IGroupUsecase interface {
	GetUserGroups(ctx context.Context, userID string) (GetGroupsResponse, error)
	RefreshUserGroups(ctx context.Context, userID string) (RefreshGroupsResponse, error)
	SetProgressObserver(o ProgressObserver)
}
