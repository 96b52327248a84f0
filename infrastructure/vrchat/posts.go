package vrchat

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/AzielCF/az-grouppost/domains/post"
)

var _ post.Publisher = (*Client)(nil)

type createPostBody struct {
	Title            string   `json:"title"`
	Text             string   `json:"text"`
	ImageID          string   `json:"imageId,omitempty"`
	SendNotification bool     `json:"sendNotification"`
	Visibility       string   `json:"visibility"`
	RoleIDs          []string `json:"roleIds"`
}

func (c *Client) CreateGroupPost(ctx context.Context, groupID string, req post.PublishRequest) (post.PublishedPost, error) {
	visibility := req.Visibility
	if visibility == "" {
		visibility = post.VisibilityPublic
	}
	body := createPostBody{
		Title:            req.Title,
		Text:             req.Text,
		ImageID:          req.ImageID,
		SendNotification: req.SendNotification,
		Visibility:       visibility,
		RoleIDs:          []string{},
	}

	var out post.PublishedPost
	if err := c.call(ctx, http.MethodPost, "/groups/"+url.PathEscape(groupID)+"/posts", body, &out); err != nil {
		return post.PublishedPost{}, err
	}
	if out.GroupID == "" {
		out.GroupID = groupID
	}
	logrus.Infof("[VRCHAT] created post %s in group %s", out.ID, groupID)
	return out, nil
}
