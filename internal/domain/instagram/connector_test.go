package instagram

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/graph"
	"codenetic/internal/shared/apperr"
	"codenetic/internal/shared/auth"
	"codenetic/internal/shared/config"
)

const testUser = "7c9e6679-7425-40de-944b-e07fc1f90ae7"

var testMeta = config.MetaConfig{AppID: "app", AppSecret: "secret", RedirectURI: "https://app.example.com/callback"}

func newTestConnector(oauth *MockOAuthProvider, client *MockGraphClient, repo *memoryRepository) *Connector {
	return NewConnector(oauth, client, linkedaccount.NewService(repo), testMeta, zap.NewNop())
}

// twoPages returns a graph client exposing page-a and page-b, each linked to ig-a and ig-b.
func twoPages() *MockGraphClient {
	return &MockGraphClient{
		ListPagesFunc: func(ctx context.Context, userToken string) ([]graph.Page, error) {
			return []graph.Page{
				{ID: "page-a", Name: "Page A", AccessToken: "token-a"},
				{ID: "page-b", Name: "Page B", AccessToken: "token-b"},
			}, nil
		},
		GetPageBusinessAccountFunc: func(ctx context.Context, pageID, pageToken string) (string, error) {
			return "ig-" + strings.TrimPrefix(pageID, "page-"), nil
		},
		GetAccountProfileFunc: func(ctx context.Context, igUserID, pageToken string) (*graph.AccountProfile, error) {
			return &graph.AccountProfile{ID: igUserID, Username: "handle_" + igUserID, ProfilePictureURL: "https://cdn.example.com/" + igUserID}, nil
		},
	}
}

func TestConnector_Connect_RejectsBeforeNetwork(t *testing.T) {
	tests := []struct {
		name     string
		userID   string
		code     string
		state    string
		meta     config.MetaConfig
		wantKind apperr.Kind
	}{
		{"no session", "", "code", StatePrefix + "1", testMeta, apperr.Unauthenticated},
		{"empty code", testUser, "", StatePrefix + "1", testMeta, apperr.InvalidRequest},
		{"foreign state", testUser, "code", "github_oauth_1", testMeta, apperr.InvalidRequest},
		{"missing state", testUser, "code", "", testMeta, apperr.InvalidRequest},
		{"app not configured", testUser, "code", StatePrefix + "1", config.MetaConfig{AppID: "app"}, apperr.Configuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oauth := &MockOAuthProvider{}
			client := twoPages()
			repo := newMemoryRepository()
			c := NewConnector(oauth, client, linkedaccount.NewService(repo), tt.meta, zap.NewNop())

			result, err := c.Connect(context.Background(), tt.userID, tt.code, tt.state)

			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, tt.wantKind, apperr.KindOf(err))
			assert.Zero(t, oauth.ExchangeCalls, "token endpoint must not be called")
			assert.Zero(t, client.TotalCalls(), "graph API must not be called")
			assert.Zero(t, repo.count(testUser))
		})
	}
}

func TestConnector_Connect_ConfigurationMessage(t *testing.T) {
	c := NewConnector(&MockOAuthProvider{}, twoPages(), linkedaccount.NewService(newMemoryRepository()), config.MetaConfig{}, zap.NewNop())

	_, err := c.Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.Error(t, err)
	assert.Equal(t, "Meta app credentials not configured", err.Error())
}

func TestConnector_Connect_LinksEveryBusinessAccount(t *testing.T) {
	oauth := &MockOAuthProvider{}
	client := twoPages()
	repo := newMemoryRepository()
	c := newTestConnector(oauth, client, repo)

	var longLivedInput, pagesToken string
	client.ExchangeLongLivedTokenFunc = func(ctx context.Context, shortLived string) (*graph.Token, error) {
		longLivedInput = shortLived
		return &graph.Token{AccessToken: "long-lived"}, nil
	}
	listPages := client.ListPagesFunc
	client.ListPagesFunc = func(ctx context.Context, userToken string) ([]graph.Page, error) {
		pagesToken = userToken
		return listPages(ctx, userToken)
	}

	result, err := c.Connect(context.Background(), testUser, "auth-code", StatePrefix+"1700000000000")

	require.NoError(t, err)
	assert.Equal(t, "Connected 2 Instagram account(s)", result.Message)
	assert.Empty(t, result.Failures)
	assert.Equal(t, []ConnectedAccount{
		{IGUserID: "ig-a", Username: "handle_ig-a", ProfilePic: "https://cdn.example.com/ig-a", PageName: "Page A"},
		{IGUserID: "ig-b", Username: "handle_ig-b", ProfilePic: "https://cdn.example.com/ig-b", PageName: "Page B"},
	}, result.Accounts)

	assert.Equal(t, "short-lived", longLivedInput)
	assert.Equal(t, "long-lived", pagesToken)

	stored, err := repo.Get(context.Background(), linkedaccount.Key{UserID: testUser, ExternalID: "ig-b"})
	require.NoError(t, err)
	assert.Equal(t, "token-b", stored.AccessToken, "page token is stored, not the user token")
	assert.Equal(t, "page-b", stored.PageID)
}

func TestConnector_Connect_UsesPageTokenForLookups(t *testing.T) {
	client := twoPages()
	var seen []string
	client.GetPageBusinessAccountFunc = func(ctx context.Context, pageID, pageToken string) (string, error) {
		seen = append(seen, pageToken)
		return "ig-" + strings.TrimPrefix(pageID, "page-"), nil
	}
	client.GetAccountProfileFunc = func(ctx context.Context, igUserID, pageToken string) (*graph.AccountProfile, error) {
		seen = append(seen, pageToken)
		return &graph.AccountProfile{ID: igUserID}, nil
	}

	_, err := newTestConnector(&MockOAuthProvider{}, client, newMemoryRepository()).
		Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.NoError(t, err)
	assert.Equal(t, []string{"token-a", "token-a", "token-b", "token-b"}, seen)
}

func TestConnector_Connect_PartialFailure(t *testing.T) {
	client := twoPages()
	client.GetPageBusinessAccountFunc = func(ctx context.Context, pageID, pageToken string) (string, error) {
		if pageID == "page-a" {
			return "", &graph.APIError{StatusCode: 400, Message: "Unsupported get request"}
		}
		return "ig-b", nil
	}
	repo := newMemoryRepository()

	result, err := newTestConnector(&MockOAuthProvider{}, client, repo).
		Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.NoError(t, err)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "ig-b", result.Accounts[0].IGUserID)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "page-a", result.Failures[0].PageID)
	assert.Equal(t, "Page A", result.Failures[0].PageName)
	assert.Equal(t, "Connected 1 Instagram account(s)", result.Message)
	assert.Equal(t, 1, repo.count(testUser))
}

func TestConnector_Connect_StoreFailureIsPageFailure(t *testing.T) {
	repo := newMemoryRepository()
	repo.UpsertErr = map[string]error{"ig-a": errors.New("connection reset")}

	result, err := newTestConnector(&MockOAuthProvider{}, twoPages(), repo).
		Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.NoError(t, err)
	require.Len(t, result.Accounts, 1)
	assert.Equal(t, "ig-b", result.Accounts[0].IGUserID)
	require.Len(t, result.Failures, 1)
	assert.ErrorContains(t, result.Failures[0].Err, "connection reset")
}

func TestConnector_Connect_SkipsPagesWithoutBusinessAccount(t *testing.T) {
	client := twoPages()
	client.GetPageBusinessAccountFunc = func(ctx context.Context, pageID, pageToken string) (string, error) {
		if pageID == "page-a" {
			return "", nil
		}
		return "ig-b", nil
	}

	result, err := newTestConnector(&MockOAuthProvider{}, client, newMemoryRepository()).
		Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.NoError(t, err)
	assert.Len(t, result.Accounts, 1)
	assert.Empty(t, result.Failures)
	assert.Equal(t, 1, client.Calls("GetAccountProfile"))
}

func TestConnector_Connect_NoPagesIsSuccess(t *testing.T) {
	client := &MockGraphClient{}

	result, err := newTestConnector(&MockOAuthProvider{}, client, newMemoryRepository()).
		Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.NoError(t, err)
	assert.Equal(t, "Connected 0 Instagram account(s)", result.Message)
	assert.NotNil(t, result.Accounts)
	assert.Empty(t, result.Accounts)
}

func TestConnector_Connect_UsernameFallback(t *testing.T) {
	client := twoPages()
	client.GetAccountProfileFunc = func(ctx context.Context, igUserID, pageToken string) (*graph.AccountProfile, error) {
		return &graph.AccountProfile{ID: igUserID}, nil
	}

	result, err := newTestConnector(&MockOAuthProvider{}, client, newMemoryRepository()).
		Connect(context.Background(), testUser, "code", StatePrefix+"1")

	require.NoError(t, err)
	require.Len(t, result.Accounts, 2)
	assert.Equal(t, "page_page-a", result.Accounts[0].Username)
}

func TestConnector_Connect_ReconnectOverwrites(t *testing.T) {
	client := twoPages()
	repo := newMemoryRepository()
	c := newTestConnector(&MockOAuthProvider{}, client, repo)

	_, err := c.Connect(context.Background(), testUser, "code-1", StatePrefix+"1")
	require.NoError(t, err)

	client.ListPagesFunc = func(ctx context.Context, userToken string) ([]graph.Page, error) {
		return []graph.Page{{ID: "page-a", Name: "Page A", AccessToken: "token-a-2"}}, nil
	}
	_, err = c.Connect(context.Background(), testUser, "code-2", StatePrefix+"2")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.count(testUser))
	stored, err := repo.Get(context.Background(), linkedaccount.Key{UserID: testUser, ExternalID: "ig-a"})
	require.NoError(t, err)
	assert.Equal(t, "token-a-2", stored.AccessToken)
}

func TestConnector_Connect_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name    string
		oauth   *MockOAuthProvider
		client  *MockGraphClient
		wantMsg string
	}{
		{
			name: "code exchange with provider message",
			oauth: &MockOAuthProvider{ExchangeCodeFunc: func(ctx context.Context, code string) (*auth.OAuthToken, error) {
				return nil, &auth.ProviderError{StatusCode: 400, Message: "This authorization code has expired."}
			}},
			client:  twoPages(),
			wantMsg: "This authorization code has expired.",
		},
		{
			name: "code exchange without provider message",
			oauth: &MockOAuthProvider{ExchangeCodeFunc: func(ctx context.Context, code string) (*auth.OAuthToken, error) {
				return nil, errors.New("dial tcp: connection refused")
			}},
			client:  twoPages(),
			wantMsg: "Failed to exchange token",
		},
		{
			name:  "long-lived exchange",
			oauth: &MockOAuthProvider{},
			client: &MockGraphClient{ExchangeLongLivedTokenFunc: func(ctx context.Context, shortLived string) (*graph.Token, error) {
				return nil, &graph.APIError{StatusCode: 400, Message: "Invalid OAuth access token."}
			}},
			wantMsg: "Invalid OAuth access token.",
		},
		{
			name:  "page listing",
			oauth: &MockOAuthProvider{},
			client: &MockGraphClient{ListPagesFunc: func(ctx context.Context, userToken string) ([]graph.Page, error) {
				return nil, errors.New("timeout")
			}},
			wantMsg: "Failed to fetch pages",
		},
		{
			name:  "page listing with empty error envelope",
			oauth: &MockOAuthProvider{},
			client: &MockGraphClient{ListPagesFunc: func(ctx context.Context, userToken string) ([]graph.Page, error) {
				return nil, fmt.Errorf("list pages: %w", &graph.APIError{StatusCode: 500, Code: 2})
			}},
			wantMsg: "Failed to fetch pages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemoryRepository()
			result, err := newTestConnector(tt.oauth, tt.client, repo).
				Connect(context.Background(), testUser, "code", StatePrefix+"1")

			require.Error(t, err)
			assert.Nil(t, result)
			assert.Equal(t, apperr.Upstream, apperr.KindOf(err))
			assert.Equal(t, tt.wantMsg, err.Error())
			assert.Zero(t, repo.count(testUser))
		})
	}
}

func TestConnector_AuthURL(t *testing.T) {
	oauth := &MockOAuthProvider{}
	c := newTestConnector(oauth, &MockGraphClient{}, newMemoryRepository())
	c.now = func() time.Time { return time.UnixMilli(1700000000123) }

	u, err := c.AuthURL()

	require.NoError(t, err)
	assert.Equal(t, "instagram_oauth_1700000000123", oauth.LastState)
	assert.Contains(t, u, "state=instagram_oauth_1700000000123")
}

func TestConnector_AuthURL_NotConfigured(t *testing.T) {
	c := NewConnector(&MockOAuthProvider{}, &MockGraphClient{}, linkedaccount.NewService(newMemoryRepository()), config.MetaConfig{}, zap.NewNop())

	_, err := c.AuthURL()

	assert.Equal(t, apperr.Configuration, apperr.KindOf(err))
}
