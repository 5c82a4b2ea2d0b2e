package vk

import (
	"context"
	"net/url"
	"strconv"
)

// MarketAdd adds an item to a community marketplace.
func (c *Client) MarketAdd(ctx context.Context, params MarketItemParams) (int64, error) {
	form := url.Values{}
	form.Set("owner_id", strconv.FormatInt(params.OwnerID, 10))
	form.Set("name", params.Name)
	form.Set("description", params.Description)
	form.Set("category_id", strconv.Itoa(params.CategoryID))
	form.Set("price", strconv.Itoa(params.Price))
	if params.CurrencyID > 0 {
		form.Set("currency_id", strconv.Itoa(params.CurrencyID))
	}

	var resp struct {
		MarketItemID int64 `json:"market_item_id"`
	}
	if err := c.callInto(ctx, "market.add", form, &resp); err != nil {
		return 0, err
	}
	return resp.MarketItemID, nil
}
