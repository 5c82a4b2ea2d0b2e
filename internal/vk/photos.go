package vk

import (
	"context"
	"net/url"
	"strconv"
)

// GetOwnerPhotoUploadServer negotiates an upload URL for the owner photo
// (the community avatar when called with a group token).
func (c *Client) GetOwnerPhotoUploadServer(ctx context.Context) (*UploadServer, error) {
	var resp UploadServer
	if err := c.callInto(ctx, "photos.getOwnerPhotoUploadServer", url.Values{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveOwnerPhoto commits an uploaded owner photo.
func (c *Client) SaveOwnerPhoto(ctx context.Context, ticket *PhotoUpload) error {
	form := url.Values{}
	form.Set("photo", ticket.Photo)
	form.Set("server", strconv.Itoa(ticket.Server))
	form.Set("hash", ticket.Hash)

	_, err := c.Call(ctx, "photos.saveOwnerPhoto", form)
	return err
}

// GetOwnerCoverPhotoUploadServer negotiates an upload URL for a community
// cover. Crop coordinates cover the full 1200x300 canvas.
func (c *Client) GetOwnerCoverPhotoUploadServer(ctx context.Context, groupID int64, cropX2, cropY2 int) (*UploadServer, error) {
	form := url.Values{}
	form.Set("group_id", strconv.FormatInt(groupID, 10))
	form.Set("crop_x", "0")
	form.Set("crop_y", "0")
	form.Set("crop_x2", strconv.Itoa(cropX2))
	form.Set("crop_y2", strconv.Itoa(cropY2))

	var resp UploadServer
	if err := c.callInto(ctx, "photos.getOwnerCoverPhotoUploadServer", form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SaveOwnerCoverPhoto commits an uploaded community cover.
func (c *Client) SaveOwnerCoverPhoto(ctx context.Context, ticket *PhotoUpload) error {
	form := url.Values{}
	form.Set("photo", ticket.Photo)
	form.Set("hash", ticket.Hash)

	_, err := c.Call(ctx, "photos.saveOwnerCoverPhoto", form)
	return err
}
