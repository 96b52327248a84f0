package mcp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	domainAuth "github.com/AzielCF/az-grouppost/domains/auth"
	domainGroup "github.com/AzielCF/az-grouppost/domains/group"
	domainPost "github.com/AzielCF/az-grouppost/domains/post"
	pkgError "github.com/AzielCF/az-grouppost/pkg/error"
	"github.com/AzielCF/az-grouppost/pkg/timeutils"
	"github.com/AzielCF/az-grouppost/validations"
	"github.com/jonboulle/clockwork"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type PostHandler struct {
	authService  domainAuth.IAuthUsecase
	groupService domainGroup.IGroupUsecase
	postService  domainPost.IPostUsecase
	clock        clockwork.Clock
	loc          *time.Location
}

func InitMcpPost(authService domainAuth.IAuthUsecase, groupService domainGroup.IGroupUsecase, postService domainPost.IPostUsecase, clock clockwork.Clock, loc *time.Location) *PostHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if loc == nil {
		loc = time.Local
	}
	return &PostHandler{
		authService:  authService,
		groupService: groupService,
		postService:  postService,
		clock:        clock,
		loc:          loc,
	}
}

func (h *PostHandler) AddPostTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(h.toolListGroups(), h.handleListGroups)
	mcpServer.AddTool(h.toolListPosts(), h.handleListPosts)
	mcpServer.AddTool(h.toolSchedulePost(), h.handleSchedulePost)
	mcpServer.AddTool(h.toolDeletePost(), h.handleDeletePost)
}

func (h *PostHandler) toolListGroups() mcp.Tool {
	return mcp.NewTool(
		"list_postable_groups",
		mcp.WithDescription("List the groups where the logged-in account may publish announcements. Set refresh to rescan permissions (rate limited)."),
		mcp.WithTitleAnnotation("List Postable Groups"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("user_id",
			mcp.Description("User id to scan. Defaults to the logged-in account."),
		),
		mcp.WithBoolean("refresh",
			mcp.Description("Force a permission rescan, subject to the refresh cooldown."),
		),
	)
}

func (h *PostHandler) handleListGroups(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	if userID == "" {
		user, err := h.authService.CurrentUser(ctx)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, pkgError.UnauthorizedError("not logged in")
		}
		userID = user.ID
	}

	refresh, err := boolArg(request, "refresh")
	if err != nil {
		return nil, err
	}

	if refresh {
		resp, err := h.groupService.RefreshUserGroups(ctx, userID)
		if err != nil {
			return nil, err
		}
		fallback := fmt.Sprintf("Found %d postable groups", len(resp.Groups))
		if !resp.Refreshed {
			fallback = fmt.Sprintf("%s (refresh available in %ds)", fallback, resp.CooldownRemaining)
		}
		return mcp.NewToolResultStructured(resp, fallback), nil
	}

	resp, err := h.groupService.GetUserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	fallback := fmt.Sprintf("Found %d postable groups", len(resp.Groups))
	if resp.NeedsScan {
		fallback = "No permission scan yet, call again with refresh=true"
	}
	return mcp.NewToolResultStructured(resp, fallback), nil
}

func (h *PostHandler) toolListPosts() mcp.Tool {
	return mcp.NewTool(
		"list_scheduled_posts",
		mcp.WithDescription("List scheduled announcement posts and their execution history."),
		mcp.WithTitleAnnotation("List Scheduled Posts"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("status",
			mcp.Description("Only return posts with this status."),
			mcp.Enum("pending", "recurring", "posted", "failed", "missed", "deleted"),
		),
		mcp.WithBoolean("include_deleted",
			mcp.Description("Include cancelled posts."),
		),
	)
}

func (h *PostHandler) handleListPosts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeDeleted, err := boolArg(request, "include_deleted")
	if err != nil {
		return nil, err
	}
	status := domainPost.Status(request.GetString("status", ""))

	posts, err := h.postService.GetPosts(ctx, includeDeleted, status)
	if err != nil {
		return nil, err
	}

	return mcp.NewToolResultStructured(map[string]any{"posts": posts}, fmt.Sprintf("Found %d posts", len(posts))), nil
}

func (h *PostHandler) toolSchedulePost() mcp.Tool {
	return mcp.NewTool(
		"schedule_post",
		mcp.WithDescription("Schedule a group announcement, once or on a daily, weekly or monthly recurrence."),
		mcp.WithTitleAnnotation("Schedule Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("group_id", mcp.Description("Target group id (grp_...)."), mcp.Required()),
		mcp.WithString("group_name", mcp.Description("Display name of the group.")),
		mcp.WithString("title", mcp.Description("Announcement title."), mcp.Required()),
		mcp.WithString("text", mcp.Description("Announcement body."), mcp.Required()),
		mcp.WithString("scheduled_at",
			mcp.Description("RFC3339 time, or 2006-01-02 15:04 in the server time zone. For recurring posts only the time of day is used."),
			mcp.Required(),
		),
		mcp.WithString("recurrence",
			mcp.Description("Leave empty for a one-shot post."),
			mcp.Enum("daily", "weekly", "monthly"),
		),
		mcp.WithString("days",
			mcp.Description("Comma separated weekdays for weekly posts, 0 = Sunday."),
		),
		mcp.WithString("visibility",
			mcp.Description("public (default) or group."),
			mcp.Enum(domainPost.VisibilityPublic, domainPost.VisibilityGroup),
		),
		mcp.WithString("image_id", mcp.Description("Optional uploaded image id.")),
		mcp.WithBoolean("send_notification", mcp.Description("Notify group members.")),
	)
}

func (h *PostHandler) handleSchedulePost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	groupID, err := request.RequireString("group_id")
	if err != nil {
		return nil, err
	}
	title, err := request.RequireString("title")
	if err != nil {
		return nil, err
	}
	text, err := request.RequireString("text")
	if err != nil {
		return nil, err
	}
	rawAt, err := request.RequireString("scheduled_at")
	if err != nil {
		return nil, err
	}
	scheduledAt, err := h.parseTime(rawAt)
	if err != nil {
		return nil, err
	}
	notify, err := boolArg(request, "send_notification")
	if err != nil {
		return nil, err
	}

	req := domainPost.CreatePostRequest{
		GroupID:          groupID,
		GroupName:        request.GetString("group_name", ""),
		Title:            title,
		Text:             text,
		ImageID:          request.GetString("image_id", ""),
		SendNotification: notify,
		Visibility:       request.GetString("visibility", domainPost.VisibilityPublic),
		ScheduledAt:      scheduledAt,
	}
	if kind := request.GetString("recurrence", ""); kind != "" {
		days, err := timeutils.ParseRecurrenceDays(request.GetString("days", ""))
		if err != nil {
			return nil, pkgError.ValidationError(err.Error())
		}
		req.Recurrence = &domainPost.Recurrence{Type: domainPost.RecurrenceType(kind), Days: days}
	}

	if err := validations.ValidateCreatePost(ctx, req, h.clock.Now()); err != nil {
		return nil, err
	}

	post, err := h.postService.AddPost(ctx, req.ToPost(), false)
	if err != nil {
		return nil, err
	}

	fallback := fmt.Sprintf("Post %s created with status %s", post.ID, post.Status)
	result := map[string]any{"post": post}
	if next, ok := h.postService.NextRun(post.ID); ok {
		result["nextRun"] = next
		fallback = fmt.Sprintf("%s, next run %s", fallback, next.In(h.loc).Format(time.RFC1123))
	}
	return mcp.NewToolResultStructured(result, fallback), nil
}

func (h *PostHandler) toolDeletePost() mcp.Tool {
	return mcp.NewTool(
		"delete_scheduled_post",
		mcp.WithDescription("Cancel a scheduled post. With force the record is removed from history as well."),
		mcp.WithTitleAnnotation("Delete Scheduled Post"),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(true),
		mcp.WithIdempotentHintAnnotation(false),
		mcp.WithString("post_id", mcp.Description("Id of the post to cancel."), mcp.Required()),
		mcp.WithBoolean("force", mcp.Description("Remove the record entirely.")),
	)
}

func (h *PostHandler) handleDeletePost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("post_id")
	if err != nil {
		return nil, err
	}
	force, err := boolArg(request, "force")
	if err != nil {
		return nil, err
	}

	if err := h.postService.DeletePost(ctx, id, force); err != nil {
		return nil, err
	}

	return mcp.NewToolResultStructured(map[string]any{"id": id, "removed": force}, fmt.Sprintf("Post %s deleted", id)), nil
}

func (h *PostHandler) parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", raw, h.loc); err == nil {
		return t, nil
	}
	return time.Time{}, pkgError.ValidationError(fmt.Sprintf("scheduled_at: unrecognised time %q", raw))
}

func boolArg(request mcp.CallToolRequest, key string) (bool, error) {
	value, ok := request.GetArguments()[key]
	if !ok || value == nil {
		return false, nil
	}
	return toBool(value)
}

func toBool(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case string:
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			return false, fmt.Errorf("unable to parse boolean value %q", v)
		}
		return parsed, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	default:
		return false, fmt.Errorf("unsupported boolean value type %T", value)
	}
}
