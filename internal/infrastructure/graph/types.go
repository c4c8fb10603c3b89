package graph

// Token is a Graph access token as returned by the token endpoints.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// Page is a Facebook page the user manages, with its page-scoped token.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

type pagesResponse struct {
	Data   []Page `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

type pageAccountResponse struct {
	ID                       string `json:"id"`
	InstagramBusinessAccount *struct {
		ID string `json:"id"`
	} `json:"instagram_business_account"`
}

// AccountProfile is the public part of an Instagram business account.
type AccountProfile struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

type MediaKind string

const (
	MediaImage MediaKind = "IMAGE"
	MediaVideo MediaKind = "VIDEO"
)

// MediaParams describes the media container to create.
type MediaParams struct {
	MediaURL string
	Caption  string
	Kind     MediaKind
}

// ContainerStatus is the processing state of a media container.
type ContainerStatus string

const (
	ContainerFinished   ContainerStatus = "FINISHED"
	ContainerInProgress ContainerStatus = "IN_PROGRESS"
	ContainerError      ContainerStatus = "ERROR"
	ContainerExpired    ContainerStatus = "EXPIRED"
	ContainerPublished  ContainerStatus = "PUBLISHED"
)

type containerStatusResponse struct {
	ID         string          `json:"id"`
	StatusCode ContainerStatus `json:"status_code"`
	Status     string          `json:"status"`
}

type idResponse struct {
	ID string `json:"id"`
}
