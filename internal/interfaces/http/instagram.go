package http

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"codenetic/internal/domain/instagram"
	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/shared/apperr"
	"codenetic/internal/shared/middleware"
)

// InstagramHandler serves account linking, listing and publishing.
type InstagramHandler struct {
	connector *instagram.Connector
	publisher *instagram.Publisher
	accounts  *linkedaccount.Service
	log       *zap.Logger
}

func NewInstagramHandler(connector *instagram.Connector, publisher *instagram.Publisher, accounts *linkedaccount.Service, log *zap.Logger) *InstagramHandler {
	return &InstagramHandler{
		connector: connector,
		publisher: publisher,
		accounts:  accounts,
		log:       log,
	}
}

type ConnectRequest struct {
	Code  string `json:"code" validate:"max=2048"`
	State string `json:"state" validate:"max=256"`
}

type ConnectResponse struct {
	Success  bool                         `json:"success"`
	Message  string                       `json:"message"`
	Accounts []instagram.ConnectedAccount `json:"accounts"`
}

type PublishRequest struct {
	IGUserID  string `json:"ig_user_id"`
	MediaURL  string `json:"media_url" validate:"omitempty,http_url"`
	Caption   string `json:"caption"`
	MediaType string `json:"media_type"`
}

type PublishResponse struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	MediaID    string `json:"media_id"`
	CreationID string `json:"creation_id"`
}

// LinkedAccountResponse never carries the access token.
type LinkedAccountResponse struct {
	IGUserID    string `json:"ig_user_id"`
	PageID      string `json:"page_id"`
	Username    string `json:"username"`
	ProfilePic  string `json:"profile_pic"`
	Status      string `json:"status"`
	ConnectedAt string `json:"connected_at"`
}

// HandleOAuthURL returns the login dialog URL to redirect the browser to.
func (h *InstagramHandler) HandleOAuthURL(w http.ResponseWriter, r *http.Request) {
	u, err := h.connector.AuthURL()
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "url": u})
}

// HandleConnect completes the OAuth callback with the code the browser received.
func (h *InstagramHandler) HandleConnect(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.connector.Connect(r.Context(), userID, req.Code, req.State)
	if err != nil {
		writeError(w, h.log, err)
		return
	}

	writeJSON(w, http.StatusOK, ConnectResponse{
		Success:  true,
		Message:  result.Message,
		Accounts: result.Accounts,
	})
}

// HandlePublish publishes media to one of the caller's linked accounts. The
// call blocks until both publish phases finish.
func (h *InstagramHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())

	var req PublishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, h.log, err)
		return
	}

	result, err := h.publisher.Publish(r.Context(), userID, instagram.PublishRequest{
		IGUserID:  req.IGUserID,
		MediaURL:  req.MediaURL,
		Caption:   req.Caption,
		MediaType: req.MediaType,
	})
	if err != nil {
		body := ErrorResponse{}
		if result != nil {
			body.CreationID = result.CreationID
		}
		writeErrorBody(w, h.log, err, body)
		return
	}

	writeJSON(w, http.StatusOK, PublishResponse{
		Success:    true,
		Message:    "Post published successfully to Instagram",
		MediaID:    result.MediaID,
		CreationID: result.CreationID,
	})
}

// HandleListAccounts returns the caller's connected accounts, newest first.
func (h *InstagramHandler) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.log, apperr.New(apperr.Unauthenticated, "User not authenticated"))
		return
	}

	accounts, err := h.accounts.ListConnected(r.Context(), userID)
	if err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.Internal, "Failed to list Instagram accounts", err))
		return
	}

	response := make([]LinkedAccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, toLinkedAccountResponse(acc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "accounts": response})
}

// HandleDisconnect marks one of the caller's accounts as disconnected.
func (h *InstagramHandler) HandleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, h.log, apperr.New(apperr.Unauthenticated, "User not authenticated"))
		return
	}

	igUserID := r.PathValue("id")
	if err := validate.Var(igUserID, "required,max=64"); err != nil {
		writeError(w, h.log, apperr.Wrap(apperr.InvalidRequest, "Invalid Instagram account id", err))
		return
	}

	err := h.accounts.Disconnect(r.Context(), linkedaccount.Key{UserID: userID, ExternalID: igUserID})
	switch {
	case err == nil:
	case errors.Is(err, linkedaccount.ErrAccountNotFound):
		writeError(w, h.log, apperr.Wrap(apperr.NotFound, linkedaccount.ErrAccountNotFound.Error(), err))
		return
	default:
		writeError(w, h.log, apperr.Wrap(apperr.Internal, "Failed to disconnect Instagram account", err))
		return
	}

	h.log.Info("instagram account disconnected", zap.String("user_id", userID), zap.String("ig_user_id", igUserID))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Instagram account disconnected"})
}

func toLinkedAccountResponse(acc *linkedaccount.LinkedAccount) LinkedAccountResponse {
	return LinkedAccountResponse{
		IGUserID:    acc.ExternalID,
		PageID:      acc.PageID,
		Username:    acc.Username,
		ProfilePic:  acc.ProfilePic,
		Status:      string(acc.Status),
		ConnectedAt: acc.ConnectedAt.UTC().Format(time.RFC3339),
	}
}
