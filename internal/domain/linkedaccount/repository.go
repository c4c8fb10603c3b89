package linkedaccount

import "context"

// Repository defines the interface for linked account persistence.
// Implemented by the postgres and sqlite packages.
type Repository interface {
	// Upsert inserts the account or replaces the stored one with the same Key
	// in a single statement, and marks it connected.
	Upsert(ctx context.Context, params UpsertParams) (*LinkedAccount, error)

	// Get returns the account for key regardless of status, or ErrAccountNotFound.
	Get(ctx context.Context, key Key) (*LinkedAccount, error)

	// ListByUser returns the user's connected accounts, newest connection first.
	ListByUser(ctx context.Context, userID string) ([]*LinkedAccount, error)

	// Disconnect flips the account to disconnected, or returns ErrAccountNotFound.
	Disconnect(ctx context.Context, key Key) error
}
