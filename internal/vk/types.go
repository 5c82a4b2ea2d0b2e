package vk

// UploadServer is the response of the photo upload-server negotiation calls.
type UploadServer struct {
	UploadURL string `json:"upload_url"`
}

// PhotoUpload is the ticket returned by the upload endpoint itself, passed
// back verbatim to the corresponding save call.
type PhotoUpload struct {
	Server int    `json:"server"`
	Photo  string `json:"photo"`
	Hash   string `json:"hash"`
}

// CreateGroupParams are the parameters of groups.create.
type CreateGroupParams struct {
	Title             string
	Type              string // group, page, event
	Subtype           string // place, company, organization, group, event
	PublicCategory    int
	PublicSubcategory int
}

// EditGroupParams are the parameters of groups.edit the workflow uses.
type EditGroupParams struct {
	GroupID     int64
	Description string
	Website     string
	Wall        int
	Topics      int
	Photos      int
	Market      int
	Messages    int
}

// WallPostParams are the parameters of wall.post. PublishDate, when non-zero,
// is a unix timestamp for a time-shifted publication.
type WallPostParams struct {
	OwnerID     int64
	Message     string
	FromGroup   bool
	PublishDate int64
}

// MarketItemParams are the parameters of market.add.
type MarketItemParams struct {
	OwnerID     int64
	Name        string
	Description string
	CategoryID  int
	Price       int
	CurrencyID  int
}
