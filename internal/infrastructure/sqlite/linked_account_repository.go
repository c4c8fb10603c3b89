package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/crypto"
)

const columns = `id, user_id, ig_user_id, page_id, username, profile_pic, access_token,
	status, connected_at, disconnected_at, updated_at`

// LinkedAccountRepository implements linkedaccount.Repository on SQLite.
// Timestamps are stored as unix milliseconds.
type LinkedAccountRepository struct {
	db        *sql.DB
	encryptor *crypto.Encryptor
	now       func() time.Time
}

var _ linkedaccount.Repository = (*LinkedAccountRepository)(nil)

func NewLinkedAccountRepository(db *sql.DB, encryptor *crypto.Encryptor) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db, encryptor: encryptor, now: time.Now}
}

func (r *LinkedAccountRepository) Upsert(ctx context.Context, params linkedaccount.UpsertParams) (*linkedaccount.LinkedAccount, error) {
	sealed, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	now := r.now().UnixMilli()
	query := `
	INSERT INTO linked_accounts (id, user_id, ig_user_id, page_id, username, profile_pic, access_token,
	                             status, connected_at, disconnected_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 'connected', ?, NULL, ?)
	ON CONFLICT (user_id, ig_user_id) DO UPDATE SET
	  page_id = excluded.page_id,
	  username = excluded.username,
	  profile_pic = excluded.profile_pic,
	  access_token = excluded.access_token,
	  status = 'connected',
	  connected_at = excluded.connected_at,
	  disconnected_at = NULL,
	  updated_at = excluded.updated_at
	RETURNING ` + columns

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.UserID, params.ExternalID, params.PageID,
		params.Username, nullString(params.ProfilePic), sealed, now, now,
	)
	acc, err := r.scan(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert linked account: %w", err)
	}
	return acc, nil
}

func (r *LinkedAccountRepository) Get(ctx context.Context, key linkedaccount.Key) (*linkedaccount.LinkedAccount, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+columns+` FROM linked_accounts WHERE user_id = ? AND ig_user_id = ?`,
		key.UserID, key.ExternalID)

	acc, err := r.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, linkedaccount.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return acc, nil
}

func (r *LinkedAccountRepository) ListByUser(ctx context.Context, userID string) ([]*linkedaccount.LinkedAccount, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+columns+` FROM linked_accounts WHERE user_id = ? AND status = 'connected' ORDER BY connected_at DESC, rowid DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list linked accounts: %w", err)
	}
	defer rows.Close()

	accounts := make([]*linkedaccount.LinkedAccount, 0)
	for rows.Next() {
		acc, err := r.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan linked account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

func (r *LinkedAccountRepository) Disconnect(ctx context.Context, key linkedaccount.Key) error {
	now := r.now().UnixMilli()
	result, err := r.db.ExecContext(ctx,
		`UPDATE linked_accounts SET status = 'disconnected', disconnected_at = ?, updated_at = ? WHERE user_id = ? AND ig_user_id = ?`,
		now, now, key.UserID, key.ExternalID)
	if err != nil {
		return fmt.Errorf("failed to disconnect linked account: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return linkedaccount.ErrAccountNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *LinkedAccountRepository) scan(s scanner) (*linkedaccount.LinkedAccount, error) {
	var acc linkedaccount.LinkedAccount
	var profilePic sql.NullString
	var sealed, status string
	var connectedAt, updatedAt int64
	var disconnectedAt sql.NullInt64

	err := s.Scan(
		&acc.ID, &acc.UserID, &acc.ExternalID, &acc.PageID, &acc.Username, &profilePic, &sealed,
		&status, &connectedAt, &disconnectedAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	token, err := r.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	acc.AccessToken = token
	acc.Status = linkedaccount.Status(status)
	acc.ProfilePic = profilePic.String
	acc.ConnectedAt = time.UnixMilli(connectedAt).UTC()
	acc.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	if disconnectedAt.Valid {
		acc.DisconnectedAt = time.UnixMilli(disconnectedAt.Int64).UTC()
	}
	return &acc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
