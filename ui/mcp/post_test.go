package mcp

import (
	"context"
	"testing"
	"time"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	domainGroup "github.com/AzielCF/az-grouppost/domains/group"
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var mcpNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type stubPosts struct {
	mock.Mock
}

func (m *stubPosts) AddPost(ctx context.Context, data domainPost.Post, skipSchedule bool) (domainPost.Post, error) {
	args := m.Called(ctx, data, skipSchedule)
	return args.Get(0).(domainPost.Post), args.Error(1)
}

func (m *stubPosts) DeletePost(ctx context.Context, id string, force bool) error {
	return m.Called(ctx, id, force).Error(0)
}

func (m *stubPosts) GetPosts(ctx context.Context, includeDeleted bool, status domainPost.Status) ([]domainPost.Post, error) {
	args := m.Called(ctx, includeDeleted, status)
	return args.Get(0).([]domainPost.Post), args.Error(1)
}

func (m *stubPosts) NextRun(id string) (time.Time, bool) {
	args := m.Called(id)
	return args.Get(0).(time.Time), args.Bool(1)
}

func (m *stubPosts) Stats() domainPost.SchedulerStats { return domainPost.SchedulerStats{} }

type stubGroups struct {
	mock.Mock
}

func (m *stubGroups) GetUserGroups(ctx context.Context, userID string) (domainGroup.GetGroupsResponse, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domainGroup.GetGroupsResponse), args.Error(1)
}

func (m *stubGroups) RefreshUserGroups(ctx context.Context, userID string) (domainGroup.RefreshGroupsResponse, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).(domainGroup.RefreshGroupsResponse), args.Error(1)
}

func (m *stubGroups) SetProgressObserver(domainGroup.ProgressObserver) {}

type stubAuth struct {
	domainAuth.IAuthUsecase
	user *domainAuth.CurrentUser
}

func (s stubAuth) CurrentUser(context.Context) (*domainAuth.CurrentUser, error) {
	return s.user, nil
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func TestSchedulePost_Weekly(t *testing.T) {
	posts := new(stubPosts)
	h := InitMcpPost(stubAuth{}, new(stubGroups), posts, clockwork.NewFakeClockAt(mcpNow), time.UTC)

	next := time.Date(2024, 6, 5, 9, 0, 0, 0, time.UTC)
	posts.On("AddPost", mock.Anything, mock.MatchedBy(func(p domainPost.Post) bool {
		return p.Recurrence != nil &&
			p.Recurrence.Type == domainPost.RecurrenceWeekly &&
			assert.ObjectsAreEqual([]int{1, 3}, p.Recurrence.Days) &&
			p.ScheduledAt.Equal(time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC)) &&
			p.SendNotification
	}), false).Return(domainPost.Post{ID: "p1", Status: domainPost.StatusRecurring}, nil)
	posts.On("NextRun", "p1").Return(next, true)

	res, err := h.handleSchedulePost(context.Background(), callRequest(map[string]any{
		"group_id":          "grp_1",
		"title":             "Weekly meetup",
		"text":              "See you there",
		"scheduled_at":      "2024-06-03 09:00",
		"recurrence":        "weekly",
		"days":              "1, 3",
		"send_notification": "true",
	}))

	require.NoError(t, err)
	require.NotNil(t, res)
	result, ok := res.StructuredContent.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, next, result["nextRun"])
	posts.AssertExpectations(t)
}

func TestSchedulePost_RejectsPastOneShot(t *testing.T) {
	posts := new(stubPosts)
	h := InitMcpPost(stubAuth{}, new(stubGroups), posts, clockwork.NewFakeClockAt(mcpNow), time.UTC)

	_, err := h.handleSchedulePost(context.Background(), callRequest(map[string]any{
		"group_id":     "grp_1",
		"title":        "Late",
		"text":         "body",
		"scheduled_at": "2024-06-03T11:00:00Z",
	}))

	var verr pkgError.ValidationError
	require.ErrorAs(t, err, &verr)
	posts.AssertNotCalled(t, "AddPost", mock.Anything, mock.Anything, mock.Anything)
}

func TestSchedulePost_BadDays(t *testing.T) {
	h := InitMcpPost(stubAuth{}, new(stubGroups), new(stubPosts), clockwork.NewFakeClockAt(mcpNow), time.UTC)

	_, err := h.handleSchedulePost(context.Background(), callRequest(map[string]any{
		"group_id":     "grp_1",
		"title":        "Weekly",
		"text":         "body",
		"scheduled_at": "2024-06-03 09:00",
		"recurrence":   "weekly",
		"days":         "mon",
	}))

	require.Error(t, err)
}

func TestListGroups_DefaultsToCurrentUser(t *testing.T) {
	groups := new(stubGroups)
	h := InitMcpPost(stubAuth{user: &domainAuth.CurrentUser{ID: "usr_me"}}, groups, new(stubPosts), nil, nil)

	groups.On("RefreshUserGroups", mock.Anything, "usr_me").
		Return(domainGroup.RefreshGroupsResponse{Refreshed: true}, nil)

	res, err := h.handleListGroups(context.Background(), callRequest(map[string]any{"refresh": true}))

	require.NoError(t, err)
	require.NotNil(t, res)
	groups.AssertExpectations(t)
}

func TestListGroups_RequiresLogin(t *testing.T) {
	h := InitMcpPost(stubAuth{}, new(stubGroups), new(stubPosts), nil, nil)

	_, err := h.handleListGroups(context.Background(), callRequest(nil))

	var unauth pkgError.UnauthorizedError
	require.ErrorAs(t, err, &unauth)
}

func TestDeleteScheduledPost(t *testing.T) {
	posts := new(stubPosts)
	h := InitMcpPost(stubAuth{}, new(stubGroups), posts, nil, nil)
	posts.On("DeletePost", mock.Anything, "p1", false).Return(nil)

	_, err := h.handleDeletePost(context.Background(), callRequest(map[string]any{"post_id": "p1"}))

	require.NoError(t, err)
	posts.AssertExpectations(t)
}

func TestToBool(t *testing.T) {
	for _, tc := range []struct {
		in   any
		want bool
	}{
		{true, true}, {"false", false}, {float64(1), true}, {0, false},
	} {
		got, err := toBool(tc.in)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got)
	}
	_, err := toBool("maybe")
	assert.Error(t, err)
}
