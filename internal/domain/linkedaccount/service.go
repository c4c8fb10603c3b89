package linkedaccount

import (
	"context"
	"errors"
)

// Service contains the business rules around linked accounts.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Link stores a freshly discovered account, overwriting any earlier credential
// for the same user and Instagram account.
func (s *Service) Link(ctx context.Context, params UpsertParams) (*LinkedAccount, error) {
	if params.Username == "" {
		params.Username = FallbackUsername(params.PageID)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return s.repo.Upsert(ctx, params)
}

// GetConnected returns the credential to publish with. Disconnected accounts
// are reported as not found so callers cannot tell them apart from foreign ones.
func (s *Service) GetConnected(ctx context.Context, key Key) (*LinkedAccount, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	acc, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !acc.Connected() {
		return nil, ErrAccountNotFound
	}
	return acc, nil
}

func (s *Service) ListConnected(ctx context.Context, userID string) ([]*LinkedAccount, error) {
	if userID == "" {
		return nil, errors.Join(ErrInvalidInput, errors.New("user id is required"))
	}
	return s.repo.ListByUser(ctx, userID)
}

func (s *Service) Disconnect(ctx context.Context, key Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	return s.repo.Disconnect(ctx, key)
}
