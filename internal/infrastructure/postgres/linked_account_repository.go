package postgres

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

const linkedAccountColumns = `id, user_id, ig_user_id, page_id, username, profile_pic, access_token,
	status, connected_at, disconnected_at, updated_at`

// LinkedAccountRepository implements linkedaccount.Repository for PostgreSQL.
// Access tokens are encrypted before they reach the database.
type LinkedAccountRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

var _ linkedaccount.Repository = (*LinkedAccountRepository)(nil)

func NewLinkedAccountRepository(db *DB, encryptor *crypto.Encryptor) *LinkedAccountRepository {
	return &LinkedAccountRepository{db: db, encryptor: encryptor}
}

// Upsert relies on the (user_id, ig_user_id) unique constraint as its only
// concurrency guard: two racing connects both end up as one row.
func (r *LinkedAccountRepository) Upsert(ctx context.Context, params linkedaccount.UpsertParams) (*linkedaccount.LinkedAccount, error) {
	sealed, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO linked_accounts (id, user_id, ig_user_id, page_id, username, profile_pic, access_token,
		                             status, connected_at, disconnected_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'connected', $8, NULL, $8)
		ON CONFLICT (user_id, ig_user_id) DO UPDATE SET
			page_id         = EXCLUDED.page_id,
			username        = EXCLUDED.username,
			profile_pic     = EXCLUDED.profile_pic,
			access_token    = EXCLUDED.access_token,
			status          = 'connected',
			connected_at    = EXCLUDED.connected_at,
			disconnected_at = NULL,
			updated_at      = EXCLUDED.updated_at
		RETURNING ` + linkedAccountColumns

	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(), params.UserID, params.ExternalID, params.PageID,
		params.Username, nullString(params.ProfilePic), sealed, time.Now().UTC(),
	)

	acc, err := r.scan(row)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert linked account: %w", err)
	}
	return acc, nil
}

func (r *LinkedAccountRepository) Get(ctx context.Context, key linkedaccount.Key) (*linkedaccount.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND ig_user_id = $2`

	acc, err := r.scan(r.db.QueryRowContext(ctx, query, key.UserID, key.ExternalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, linkedaccount.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get linked account: %w", err)
	}
	return acc, nil
}

func (r *LinkedAccountRepository) ListByUser(ctx context.Context, userID string) ([]*linkedaccount.LinkedAccount, error) {
	query := `SELECT ` + linkedAccountColumns + `
		FROM linked_accounts
		WHERE user_id = $1 AND status = 'connected'
		ORDER BY connected_at DESC`

	rows, err := r.db.QueryContext(ctx, query, userID)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate linked accounts: %w", err)
	}
	return accounts, nil
}

func (r *LinkedAccountRepository) Disconnect(ctx context.Context, key linkedaccount.Key) error {
	query := `
		UPDATE linked_accounts
		SET status = 'disconnected', disconnected_at = $3, updated_at = $3
		WHERE user_id = $1 AND ig_user_id = $2`

	result, err := r.db.ExecContext(ctx, query, key.UserID, key.ExternalID, time.Now().UTC())
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
	var disconnectedAt sql.NullTime

	err := s.Scan(
		&acc.ID, &acc.UserID, &acc.ExternalID, &acc.PageID, &acc.Username, &profilePic, &sealed,
		&status, &acc.ConnectedAt, &disconnectedAt, &acc.UpdatedAt,
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
	if profilePic.Valid {
		acc.ProfilePic = profilePic.String
	}
	if disconnectedAt.Valid {
		acc.DisconnectedAt = disconnectedAt.Time
	}
	return &acc, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
