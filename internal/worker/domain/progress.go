package domain

// Progress is the step-by-step state of one provisioning run. Flags are
// monotonic within an execution; counters never decrease and never exceed
// their totals. GroupID is captured after the create step so a retried job
// can resume instead of creating a duplicate group.
type Progress struct {
	GroupCreated         bool   `json:"group_created"`
	AvatarUploaded       bool   `json:"avatar_uploaded"`
	CoverUploaded        bool   `json:"cover_uploaded"`
	PostsPublished       int    `json:"posts_published"`
	TotalPosts           int    `json:"total_posts"`
	ReviewsTopicCreated  bool   `json:"reviews_topic_created"`
	MarketEnabled        bool   `json:"market_enabled"`
	ServicesAdded        int    `json:"services_added"`
	TotalServices        int    `json:"total_services"`
	AddressAdded         bool   `json:"address_added"`
	AutoResponderEnabled bool   `json:"auto_responder_enabled"`
	Step                 string `json:"step,omitempty"`
	GroupID              int64  `json:"group_id,omitempty"`
}

// Result is set exactly once, on successful completion.
type Result struct {
	GroupID    int64  `json:"group_id"`
	ScreenName string `json:"screen_name"`
	URL        string `json:"url"`
}
