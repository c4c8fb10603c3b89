package instagram

import (
	"errors"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/graph"
	"codenetic/internal/shared/apperr"
	"codenetic/internal/shared/auth"
)

// upstream wraps a provider failure, preferring the provider's own message
// over fallback.
func upstream(err error, fallback string) error {
	msg := fallback
	var providerErr *auth.ProviderError
	if errors.As(err, &providerErr) && providerErr.Message != "" {
		msg = providerErr.Message
	} else if m, ok := graph.ProviderMessage(err); ok {
		msg = m
	}
	return apperr.Wrap(apperr.Upstream, msg, err)
}

// storeError maps credential store failures onto the service error kinds.
func storeError(err error, fallback string) error {
	switch {
	case errors.Is(err, linkedaccount.ErrAccountNotFound):
		return apperr.Wrap(apperr.NotFound, linkedaccount.ErrAccountNotFound.Error(), err)
	case errors.Is(err, linkedaccount.ErrInvalidInput):
		return apperr.Wrap(apperr.InvalidRequest, err.Error(), err)
	default:
		return apperr.Wrap(apperr.Internal, fallback, err)
	}
}
