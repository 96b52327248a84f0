package post

import (
	"context"
	"time"

	"github.com/AzielCF/az-grouppost/pkg/msgworker"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusRecurring Status = "recurring"
	StatusPosted    Status = "posted"
	StatusFailed    Status = "failed"
	StatusMissed    Status = "missed"
	StatusDeleted   Status = "deleted"
)

type RecurrenceType string

const (
	RecurrenceDaily   RecurrenceType = "daily"
	RecurrenceWeekly  RecurrenceType = "weekly"
	RecurrenceMonthly RecurrenceType = "monthly"
)

const (
	VisibilityPublic = "public"
	VisibilityGroup  = "group"
)

// Recurrence is a repeating time-of-day rule. Days (0=Sunday..6=Saturday)
// only matter for weekly rules.
type Recurrence struct {
	Type RecurrenceType `json:"type"`
	Days []int          `json:"days,omitempty"`
}

// Post is a schedulable announcement. For recurring templates ScheduledAt is
// only a template for the time of day (and day of month for monthly rules).
type Post struct {
	ID               string      `json:"id"`
	GroupID          string      `json:"groupId"`
	GroupName        string      `json:"groupName"`
	Title            string      `json:"title"`
	Text             string      `json:"text"`
	ImageID          string      `json:"imageId,omitempty"`
	SendNotification bool        `json:"sendNotification"`
	Visibility       string      `json:"visibility"`
	ScheduledAt      time.Time   `json:"scheduledAt"`
	Recurrence       *Recurrence `json:"recurrence"`
	Status           Status      `json:"status"`
	ParentID         string      `json:"parentId,omitempty"`
	Error            string      `json:"error,omitempty"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

func (p Post) IsRecurring() bool {
	return p.Recurrence != nil
}

// IsActive reports whether the post still has future executions.
func (p Post) IsActive() bool {
	return p.Status == StatusPending || p.Status == StatusRecurring
}

type CreatePostRequest struct {
	GroupID          string      `json:"groupId"`
	GroupName        string      `json:"groupName"`
	Title            string      `json:"title"`
	Text             string      `json:"text"`
	ImageID          string      `json:"imageId,omitempty"`
	SendNotification bool        `json:"sendNotification"`
	Visibility       string      `json:"visibility"`
	ScheduledAt      time.Time   `json:"scheduledAt"`
	Recurrence       *Recurrence `json:"recurrence"`
}

func (r CreatePostRequest) ToPost() Post {
	return Post{
		GroupID:          r.GroupID,
		GroupName:        r.GroupName,
		Title:            r.Title,
		Text:             r.Text,
		ImageID:          r.ImageID,
		SendNotification: r.SendNotification,
		Visibility:       r.Visibility,
		ScheduledAt:      r.ScheduledAt,
		Recurrence:       r.Recurrence,
	}
}

// PublishRequest is what reaches the remote create-post operation.
type PublishRequest struct {
	Title            string `json:"title"`
	Text             string `json:"text"`
	ImageID          string `json:"imageId,omitempty"`
	SendNotification bool   `json:"sendNotification"`
	Visibility       string `json:"visibility"`
}

type PublishedPost struct {
	ID        string    `json:"id"`
	GroupID   string    `json:"groupId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Publisher creates a group announcement on the remote service.
type Publisher interface {
	CreateGroupPost(ctx context.Context, groupID string, req PublishRequest) (PublishedPost, error)
}

type SchedulerStats struct {
	Armed int                 `json:"armed"`
	Pool  msgworker.PoolStats `json:"pool"`
}

type IPostUsecase interface {
	// AddPost persists a new post and, unless skipSchedule, arms its next execution.
	AddPost(ctx context.Context, data Post, skipSchedule bool) (Post, error)
	DeletePost(ctx context.Context, id string, force bool) error
	GetPosts(ctx context.Context, includeDeleted bool, status Status) ([]Post, error)
	NextRun(id string) (time.Time, bool)
	Stats() SchedulerStats
}
