package vk

import (
	"context"
	"net/url"
	"strconv"
)

// CreateGroup creates a community and returns its numeric id.
func (c *Client) CreateGroup(ctx context.Context, params CreateGroupParams) (int64, error) {
	form := url.Values{}
	form.Set("title", params.Title)
	if params.Type != "" {
		form.Set("type", params.Type)
	}
	if params.Subtype != "" {
		form.Set("subtype", params.Subtype)
	}
	if params.PublicCategory > 0 {
		form.Set("public_category", strconv.Itoa(params.PublicCategory))
	}
	if params.PublicSubcategory > 0 {
		form.Set("public_subcategory", strconv.Itoa(params.PublicSubcategory))
	}

	var resp struct {
		ID int64 `json:"id"`
	}
	if err := c.callInto(ctx, "groups.create", form, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// EditGroup sets the description, website and enabled sections of a community.
func (c *Client) EditGroup(ctx context.Context, params EditGroupParams) error {
	form := url.Values{}
	form.Set("group_id", strconv.FormatInt(params.GroupID, 10))
	form.Set("description", params.Description)
	form.Set("website", params.Website)
	form.Set("wall", strconv.Itoa(params.Wall))
	form.Set("topics", strconv.Itoa(params.Topics))
	form.Set("photos", strconv.Itoa(params.Photos))
	form.Set("market", strconv.Itoa(params.Market))
	form.Set("messages", strconv.Itoa(params.Messages))

	_, err := c.Call(ctx, "groups.edit", form)
	return err
}

// ToggleMarket enables or disables the community marketplace.
func (c *Client) ToggleMarket(ctx context.Context, groupID int64, enabled bool, currencyID int) error {
	form := url.Values{}
	form.Set("group_id", strconv.FormatInt(groupID, 10))
	form.Set("enabled", boolParam(enabled))
	if currencyID > 0 {
		form.Set("currency", strconv.Itoa(currencyID))
	}

	_, err := c.Call(ctx, "groups.toggleMarket", form)
	return err
}

// SetLongPollSettings enables long-poll message events for the community,
// which backs the message auto-responder.
func (c *Client) SetLongPollSettings(ctx context.Context, groupID int64, enabled, messageNew bool) error {
	form := url.Values{}
	form.Set("group_id", strconv.FormatInt(groupID, 10))
	form.Set("enabled", boolParam(enabled))
	form.Set("message_new", boolParam(messageNew))

	_, err := c.Call(ctx, "groups.setLongPollSettings", form)
	return err
}

func boolParam(v bool) string {
	if v {
		return "1"
	}
	return "0"
}
