package vrchat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/AzielCF/az-grouppost/domains/group"
)

var _ group.GroupAPI = (*Client)(nil)

// userGroupPayload is a membership row; GroupID is the group, ID the membership.
type userGroupPayload struct {
	ID            string `json:"id"`
	GroupID       string `json:"groupId"`
	Name          string `json:"name"`
	ShortCode     string `json:"shortCode"`
	Discriminator string `json:"discriminator"`
	OwnerID       string `json:"ownerId"`
	IconURL       string `json:"iconUrl"`
	BannerURL     string `json:"bannerUrl"`
	MemberCount   int    `json:"memberCount"`
	Privacy       string `json:"privacy"`
}

type groupPayload struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	ShortCode     string `json:"shortCode"`
	Discriminator string `json:"discriminator"`
	OwnerID       string `json:"ownerId"`
	IconURL       string `json:"iconUrl"`
	BannerURL     string `json:"bannerUrl"`
	MemberCount   int    `json:"memberCount"`
	Privacy       string `json:"privacy"`
	MyMember      *struct {
		RoleIDs []string `json:"roleIds"`
	} `json:"myMember"`
}

func (c *Client) ListUserGroups(ctx context.Context, userID string) ([]group.GroupInfo, error) {
	var rows []userGroupPayload
	if err := c.call(ctx, http.MethodGet, "/users/"+url.PathEscape(userID)+"/groups", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]group.GroupInfo, 0, len(rows))
	for _, r := range rows {
		id := r.GroupID
		if id == "" {
			id = r.ID
		}
		out = append(out, group.GroupInfo{
			ID:            id,
			Name:          r.Name,
			ShortCode:     r.ShortCode,
			Discriminator: r.Discriminator,
			OwnerID:       r.OwnerID,
			IconURL:       r.IconURL,
			BannerURL:     r.BannerURL,
			MemberCount:   r.MemberCount,
			Privacy:       r.Privacy,
		})
	}
	return out, nil
}

// GetGroup returns nil, nil on 404.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*group.GroupDetail, error) {
	path := "/groups/" + url.PathEscape(groupID)
	resp, data, err := c.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, decodeAPIError(resp.StatusCode, data)
	}
	var p groupPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode group %s: %w", groupID, err)
	}
	detail := &group.GroupDetail{
		GroupInfo: group.GroupInfo{
			ID:            p.ID,
			Name:          p.Name,
			ShortCode:     p.ShortCode,
			Discriminator: p.Discriminator,
			OwnerID:       p.OwnerID,
			IconURL:       p.IconURL,
			BannerURL:     p.BannerURL,
			MemberCount:   p.MemberCount,
			Privacy:       p.Privacy,
		},
	}
	if p.MyMember != nil {
		detail.MyRoleIDs = p.MyMember.RoleIDs
	}
	return detail, nil
}

func (c *Client) ListGroupRoles(ctx context.Context, groupID string) ([]group.GroupRole, error) {
	var roles []group.GroupRole
	if err := c.call(ctx, http.MethodGet, "/groups/"+url.PathEscape(groupID)+"/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}
