package instagram

import (
	"context"
	"sync"
	"time"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/graph"
	"codenetic/internal/shared/auth"
)

// MockGraphClient implements graph.ClientInterface and counts every call.
type MockGraphClient struct {
	ExchangeLongLivedTokenFunc func(ctx context.Context, shortLived string) (*graph.Token, error)
	ListPagesFunc              func(ctx context.Context, userToken string) ([]graph.Page, error)
	GetPageBusinessAccountFunc func(ctx context.Context, pageID, pageToken string) (string, error)
	GetAccountProfileFunc      func(ctx context.Context, igUserID, pageToken string) (*graph.AccountProfile, error)
	CreateMediaContainerFunc   func(ctx context.Context, igUserID, token string, params graph.MediaParams) (string, error)
	GetContainerStatusFunc     func(ctx context.Context, containerID, token string) (graph.ContainerStatus, string, error)
	PublishContainerFunc       func(ctx context.Context, igUserID, token, containerID string) (string, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockGraphClient) count(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

func (m *MockGraphClient) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockGraphClient) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockGraphClient) ExchangeLongLivedToken(ctx context.Context, shortLived string) (*graph.Token, error) {
	m.count("ExchangeLongLivedToken")
	if m.ExchangeLongLivedTokenFunc != nil {
		return m.ExchangeLongLivedTokenFunc(ctx, shortLived)
	}
	return &graph.Token{AccessToken: "long-lived"}, nil
}

func (m *MockGraphClient) ListPages(ctx context.Context, userToken string) ([]graph.Page, error) {
	m.count("ListPages")
	if m.ListPagesFunc != nil {
		return m.ListPagesFunc(ctx, userToken)
	}
	return nil, nil
}

func (m *MockGraphClient) GetPageBusinessAccount(ctx context.Context, pageID, pageToken string) (string, error) {
	m.count("GetPageBusinessAccount")
	if m.GetPageBusinessAccountFunc != nil {
		return m.GetPageBusinessAccountFunc(ctx, pageID, pageToken)
	}
	return "", nil
}

func (m *MockGraphClient) GetAccountProfile(ctx context.Context, igUserID, pageToken string) (*graph.AccountProfile, error) {
	m.count("GetAccountProfile")
	if m.GetAccountProfileFunc != nil {
		return m.GetAccountProfileFunc(ctx, igUserID, pageToken)
	}
	return &graph.AccountProfile{ID: igUserID}, nil
}

func (m *MockGraphClient) CreateMediaContainer(ctx context.Context, igUserID, token string, params graph.MediaParams) (string, error) {
	m.count("CreateMediaContainer")
	if m.CreateMediaContainerFunc != nil {
		return m.CreateMediaContainerFunc(ctx, igUserID, token, params)
	}
	return "container-1", nil
}

func (m *MockGraphClient) GetContainerStatus(ctx context.Context, containerID, token string) (graph.ContainerStatus, string, error) {
	m.count("GetContainerStatus")
	if m.GetContainerStatusFunc != nil {
		return m.GetContainerStatusFunc(ctx, containerID, token)
	}
	return graph.ContainerFinished, "Finished: Media container is ready", nil
}

func (m *MockGraphClient) PublishContainer(ctx context.Context, igUserID, token, containerID string) (string, error) {
	m.count("PublishContainer")
	if m.PublishContainerFunc != nil {
		return m.PublishContainerFunc(ctx, igUserID, token, containerID)
	}
	return "media-1", nil
}

// MockOAuthProvider implements auth.OAuthProvider.
type MockOAuthProvider struct {
	ExchangeCodeFunc func(ctx context.Context, code string) (*auth.OAuthToken, error)
	ExchangeCalls    int
	LastState        string
}

func (m *MockOAuthProvider) GetAuthURL(state string) string {
	m.LastState = state
	return "https://www.facebook.com/v19.0/dialog/oauth?state=" + state
}

func (m *MockOAuthProvider) ExchangeCode(ctx context.Context, code string) (*auth.OAuthToken, error) {
	m.ExchangeCalls++
	if m.ExchangeCodeFunc != nil {
		return m.ExchangeCodeFunc(ctx, code)
	}
	return &auth.OAuthToken{AccessToken: "short-lived", TokenType: "bearer"}, nil
}

// memoryRepository is an in-memory linkedaccount.Repository keyed like the real tables.
type memoryRepository struct {
	mu        sync.Mutex
	rows      map[linkedaccount.Key]*linkedaccount.LinkedAccount
	UpsertErr map[string]error // by ExternalID
}

func newMemoryRepository() *memoryRepository {
	return &memoryRepository{rows: make(map[linkedaccount.Key]*linkedaccount.LinkedAccount)}
}

func (r *memoryRepository) Upsert(ctx context.Context, params linkedaccount.UpsertParams) (*linkedaccount.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.UpsertErr[params.ExternalID]; err != nil {
		return nil, err
	}

	now := time.Now()
	acc, ok := r.rows[params.Key]
	if !ok {
		acc = &linkedaccount.LinkedAccount{ID: "row-" + params.ExternalID, UserID: params.UserID, ExternalID: params.ExternalID}
		r.rows[params.Key] = acc
	}
	acc.PageID = params.PageID
	acc.Username = params.Username
	acc.ProfilePic = params.ProfilePic
	acc.AccessToken = params.AccessToken
	acc.Status = linkedaccount.StatusConnected
	acc.ConnectedAt = now
	acc.DisconnectedAt = time.Time{}
	acc.UpdatedAt = now

	out := *acc
	return &out, nil
}

func (r *memoryRepository) Get(ctx context.Context, key linkedaccount.Key) (*linkedaccount.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.rows[key]
	if !ok {
		return nil, linkedaccount.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

func (r *memoryRepository) ListByUser(ctx context.Context, userID string) ([]*linkedaccount.LinkedAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*linkedaccount.LinkedAccount
	for key, acc := range r.rows {
		if key.UserID == userID && acc.Connected() {
			cp := *acc
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memoryRepository) Disconnect(ctx context.Context, key linkedaccount.Key) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acc, ok := r.rows[key]
	if !ok {
		return linkedaccount.ErrAccountNotFound
	}
	acc.Status = linkedaccount.StatusDisconnected
	acc.DisconnectedAt = time.Now()
	return nil
}

func (r *memoryRepository) count(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for key := range r.rows {
		if key.UserID == userID {
			n++
		}
	}
	return n
}
