package vk

import (
	"context"
	"net/url"
	"strconv"
)

// AddBoardTopic opens a discussion topic in a community.
func (c *Client) AddBoardTopic(ctx context.Context, groupID int64, title, text string) (int64, error) {
	form := url.Values{}
	form.Set("group_id", strconv.FormatInt(groupID, 10))
	form.Set("title", title)
	form.Set("text", text)
	form.Set("from_group", "1")

	var resp struct {
		TopicID int64 `json:"topic_id"`
	}
	if err := c.callInto(ctx, "board.addTopic", form, &resp); err != nil {
		return 0, err
	}
	return resp.TopicID, nil
}
