package vk

import (
	"context"
	"net/url"
	"strconv"
)

// WallPost publishes a post on a wall. With a negative OwnerID the post lands
// on a community wall; a non-zero PublishDate schedules it for the future.
func (c *Client) WallPost(ctx context.Context, params WallPostParams) (int64, error) {
	form := url.Values{}
	form.Set("owner_id", strconv.FormatInt(params.OwnerID, 10))
	form.Set("message", params.Message)
	form.Set("from_group", boolParam(params.FromGroup))
	if params.PublishDate > 0 {
		form.Set("publish_date", strconv.FormatInt(params.PublishDate, 10))
	}

	var resp struct {
		PostID int64 `json:"post_id"`
	}
	if err := c.callInto(ctx, "wall.post", form, &resp); err != nil {
		return 0, err
	}
	return resp.PostID, nil
}
