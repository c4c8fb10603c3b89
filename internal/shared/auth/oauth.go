package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// InstagramScopes are the permissions requested when linking Instagram business accounts.
var InstagramScopes = []string{
	"pages_show_list",
	"instagram_basic",
	"instagram_content_publish",
	"pages_read_engagement",
}

type OAuthProvider interface {
	GetAuthURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*OAuthToken, error)
}

type OAuthToken struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
}

// ProviderError is a failed token exchange, carrying the provider's message when it sent one.
type ProviderError struct {
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("token exchange failed with status %d", e.StatusCode)
}

type FacebookOAuthConfig struct {
	AppID         string
	AppSecret     string
	RedirectURI   string
	GraphBaseURL  string // e.g. https://graph.facebook.com
	DialogBaseURL string // e.g. https://www.facebook.com
	Version       string
}

// FacebookOAuthProvider implements the Facebook Login authorization-code flow.
type FacebookOAuthProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

func NewFacebookOAuthProvider(cfg FacebookOAuthConfig) *FacebookOAuthProvider {
	graphBase := strings.TrimRight(cfg.GraphBaseURL, "/")
	dialogBase := strings.TrimRight(cfg.DialogBaseURL, "/")

	return &FacebookOAuthProvider{
		config: &oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       InstagramScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   dialogBase + "/" + cfg.Version + "/dialog/oauth",
				TokenURL:  graphBase + "/" + cfg.Version + "/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *FacebookOAuthProvider) GetAuthURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a short-lived user token.
func (p *FacebookOAuthProvider) ExchangeCode(ctx context.Context, code string) (*OAuthToken, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, providerError(retrieveErr)
		}
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}

	return &OAuthToken{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
	}, nil
}

// providerError reads the Graph {"error":{"message":...}} envelope out of a
// failed token response, falling back to the standard OAuth error fields.
func providerError(re *oauth2.RetrieveError) *ProviderError {
	pe := &ProviderError{}
	if re.Response != nil {
		pe.StatusCode = re.Response.StatusCode
	}

	var env struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(re.Body, &env); err == nil && env.Error.Message != "" {
		pe.Message = env.Error.Message
		return pe
	}
	if re.ErrorDescription != "" {
		pe.Message = re.ErrorDescription
	} else if re.ErrorCode != "" {
		pe.Message = re.ErrorCode
	}
	return pe
}
