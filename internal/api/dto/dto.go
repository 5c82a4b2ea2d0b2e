package dto

import "encoding/json"

// PricingItemRequest is one service row of the intake form.
type PricingItemRequest struct {
	Title string `json:"title" binding:"required"`
	Price int    `json:"price" binding:"required,gt=0"`
}

// ProfileRequest is the intake form submitted to start the OAuth flow.
type ProfileRequest struct {
	Name        string               `json:"name" binding:"required"`
	City        string               `json:"city" binding:"required"`
	Area        string               `json:"area" binding:"required"`
	Phone       string               `json:"phone" binding:"required"`
	Telegram    string               `json:"telegram"`
	Techniques  []string             `json:"techniques" binding:"required,min=1"`
	Pricing     []PricingItemRequest `json:"pricing" binding:"required,min=1,dive"`
	IsHomeVisit bool                 `json:"is_home_visit"`
	Address     string               `json:"address"`
}

// OAuthInitResponse carries the provider authorization URL the client
// redirects the browser to.
type OAuthInitResponse struct {
	AuthURL string `json:"auth_url"`
	State   string `json:"state"`
}

// OAuthCallbackResponse is returned after the code-for-token exchange.
type OAuthCallbackResponse struct {
	Success   bool   `json:"success"`
	StudentID string `json:"student_id"`
	JobID     string `json:"job_id"`
	Message   string `json:"message"`
}

// StatusResponse is the polled job status. Progress and Result pass through
// as stored JSON so the API never lags behind worker-side schema additions.
type StatusResponse struct {
	ID        string          `json:"id"`
	Status    string          `json:"status"`
	Progress  json.RawMessage `json:"progress,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt string          `json:"created_at"`
	UpdatedAt string          `json:"updated_at"`
}

// GroupDTO is one provisioned community in a listing.
type GroupDTO struct {
	ID         string `json:"id"`
	VKGroupID  int64  `json:"vk_group_id"`
	ScreenName string `json:"screen_name"`
	URL        string `json:"url"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

// ListGroupsRequest are the query parameters of the student group listing.
type ListGroupsRequest struct {
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

// ListGroupsResponse is a page of a student's groups.
type ListGroupsResponse struct {
	Groups     []GroupDTO `json:"groups"`
	NextCursor string     `json:"next_cursor,omitempty"`
}
