package linkedaccount

import (
	"errors"
	"strings"
	"time"
)

type Status string

const (
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// Domain errors
var (
	ErrAccountNotFound = errors.New("Instagram account not found or not authorized")
	ErrInvalidInput    = errors.New("invalid input")
)

// Key identifies a linked account: one local user, one Instagram business account.
type Key struct {
	UserID     string
	ExternalID string
}

func (k Key) Validate() error {
	if strings.TrimSpace(k.UserID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("user id is required"))
	}
	if strings.TrimSpace(k.ExternalID) == "" {
		return errors.Join(ErrInvalidInput, errors.New("ig_user_id is required"))
	}
	return nil
}

// LinkedAccount is an Instagram business account connected by a local user.
// AccessToken holds the page-scoped token in plaintext; repositories seal it at rest.
type LinkedAccount struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	ExternalID     string    `json:"igUserId"`
	PageID         string    `json:"pageId"`
	Username       string    `json:"username"`
	ProfilePic     string    `json:"profilePic"`
	AccessToken    string    `json:"-"`
	Status         Status    `json:"status"`
	ConnectedAt    time.Time `json:"connectedAt"`
	DisconnectedAt time.Time `json:"disconnectedAt"` // zero while connected
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (a *LinkedAccount) Key() Key {
	return Key{UserID: a.UserID, ExternalID: a.ExternalID}
}

func (a *LinkedAccount) Connected() bool {
	return a.Status == StatusConnected
}

// UpsertParams contains everything written when an account is (re)connected.
type UpsertParams struct {
	Key
	PageID      string
	Username    string
	ProfilePic  string
	AccessToken string
}

func (p UpsertParams) Validate() error {
	if err := p.Key.Validate(); err != nil {
		return err
	}
	if p.PageID == "" {
		return errors.Join(ErrInvalidInput, errors.New("page id is required"))
	}
	if p.AccessToken == "" {
		return errors.Join(ErrInvalidInput, errors.New("access token is required"))
	}
	return nil
}

// FallbackUsername is stored when the account lookup returns no handle.
func FallbackUsername(pageID string) string {
	return "page_" + pageID
}
