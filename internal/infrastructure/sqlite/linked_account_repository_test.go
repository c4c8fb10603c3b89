package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/crypto"
)

func newTestRepo(t *testing.T) *LinkedAccountRepository {
	t.Helper()
	db, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	enc, err := crypto.NewEncryptor("01234567890123456789012345678901")
	require.NoError(t, err)

	repo := NewLinkedAccountRepository(db, enc)
	clock := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return repo
}

func countRows(t *testing.T, repo *LinkedAccountRepository, key linkedaccount.Key) int {
	t.Helper()
	var n int
	err := repo.db.QueryRow(`SELECT COUNT(*) FROM linked_accounts WHERE user_id = ? AND ig_user_id = ?`,
		key.UserID, key.ExternalID).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestUpsert_ReconnectOverwrites(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	key := linkedaccount.Key{UserID: "user-1", ExternalID: "17841400000000001"}

	first, err := repo.Upsert(ctx, linkedaccount.UpsertParams{
		Key: key, PageID: "page-1", Username: "old_handle", AccessToken: "token-1",
	})
	require.NoError(t, err)

	second, err := repo.Upsert(ctx, linkedaccount.UpsertParams{
		Key: key, PageID: "page-1", Username: "new_handle", ProfilePic: "https://cdn/pic.jpg", AccessToken: "token-2",
	})
	require.NoError(t, err)

	assert.Equal(t, 1, countRows(t, repo, key))
	assert.Equal(t, first.ID, second.ID, "row identity survives a reconnect")
	assert.Equal(t, "new_handle", second.Username)
	assert.Equal(t, "token-2", second.AccessToken)
	assert.Equal(t, "https://cdn/pic.jpg", second.ProfilePic)
	assert.True(t, second.ConnectedAt.After(first.ConnectedAt))
}

func TestUpsert_EncryptsToken(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	key := linkedaccount.Key{UserID: "user-1", ExternalID: "1784"}

	_, err := repo.Upsert(ctx, linkedaccount.UpsertParams{Key: key, PageID: "p", Username: "u", AccessToken: "EAAG-secret"})
	require.NoError(t, err)

	var stored string
	require.NoError(t, repo.db.QueryRow(`SELECT access_token FROM linked_accounts`).Scan(&stored))
	assert.NotEqual(t, "EAAG-secret", stored)

	acc, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "EAAG-secret", acc.AccessToken)
}

func TestDisconnect_ThenReconnect(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	key := linkedaccount.Key{UserID: "user-1", ExternalID: "1784"}

	_, err := repo.Upsert(ctx, linkedaccount.UpsertParams{Key: key, PageID: "p", Username: "u", AccessToken: "t"})
	require.NoError(t, err)

	require.NoError(t, repo.Disconnect(ctx, key))

	acc, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, linkedaccount.StatusDisconnected, acc.Status)
	assert.False(t, acc.DisconnectedAt.IsZero())

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, list)

	acc, err = repo.Upsert(ctx, linkedaccount.UpsertParams{Key: key, PageID: "p", Username: "u", AccessToken: "t2"})
	require.NoError(t, err)
	assert.Equal(t, linkedaccount.StatusConnected, acc.Status)
	assert.True(t, acc.DisconnectedAt.IsZero())
	assert.Equal(t, 1, countRows(t, repo, key))
}

func TestDisconnect_Unknown(t *testing.T) {
	repo := newTestRepo(t)

	err := repo.Disconnect(context.Background(), linkedaccount.Key{UserID: "user-1", ExternalID: "missing"})
	assert.ErrorIs(t, err, linkedaccount.ErrAccountNotFound)
}

func TestGet_ScopedToUser(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.Upsert(ctx, linkedaccount.UpsertParams{
		Key: linkedaccount.Key{UserID: "owner", ExternalID: "1784"}, PageID: "p", Username: "u", AccessToken: "t",
	})
	require.NoError(t, err)

	_, err = repo.Get(ctx, linkedaccount.Key{UserID: "intruder", ExternalID: "1784"})
	assert.ErrorIs(t, err, linkedaccount.ErrAccountNotFound)
}

func TestListByUser_NewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.Upsert(ctx, linkedaccount.UpsertParams{
			Key: linkedaccount.Key{UserID: "user-1", ExternalID: id}, PageID: "p-" + id, Username: id, AccessToken: "t",
		})
		require.NoError(t, err)
	}
	_, err := repo.Upsert(ctx, linkedaccount.UpsertParams{
		Key: linkedaccount.Key{UserID: "user-2", ExternalID: "z"}, PageID: "p", Username: "z", AccessToken: "t",
	})
	require.NoError(t, err)

	list, err := repo.ListByUser(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "c", list[0].ExternalID)
	assert.Equal(t, "a", list[2].ExternalID)
}
