package graph

import "context"

// ClientInterface is the subset of the Graph API the connect and publish flows use.
type ClientInterface interface {
	ExchangeLongLivedToken(ctx context.Context, shortLived string) (*Token, error)
	ListPages(ctx context.Context, userToken string) ([]Page, error)
	GetPageBusinessAccount(ctx context.Context, pageID, pageToken string) (string, error)
	GetAccountProfile(ctx context.Context, igUserID, pageToken string) (*AccountProfile, error)
	CreateMediaContainer(ctx context.Context, igUserID, token string, params MediaParams) (string, error)
	GetContainerStatus(ctx context.Context, containerID, token string) (ContainerStatus, string, error)
	PublishContainer(ctx context.Context, igUserID, token, containerID string) (string, error)
}
