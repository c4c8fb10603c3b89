// Package instagram links Instagram business accounts to local users and
// publishes media to them through the Graph API.
package instagram

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"codenetic/internal/domain/linkedaccount"
	"codenetic/internal/infrastructure/graph"
	"codenetic/internal/shared/apperr"
	"codenetic/internal/shared/auth"
	"codenetic/internal/shared/config"
)

// StatePrefix marks OAuth state values minted for this flow.
const StatePrefix = "instagram_oauth_"

var (
	meter                = otel.Meter("codenetic/instagram")
	connectedAccounts, _ = meter.Int64Counter("instagram.connect.accounts",
		metric.WithDescription("Instagram accounts linked or relinked"),
	)
	pageFailures, _ = meter.Int64Counter("instagram.connect.page_failures",
		metric.WithDescription("Pages skipped because discovery failed"),
	)
)

// ConnectedAccount is the summary returned for each account linked by a connect.
type ConnectedAccount struct {
	IGUserID   string `json:"ig_user_id"`
	Username   string `json:"username"`
	ProfilePic string `json:"profile_pic"`
	PageName   string `json:"page_name"`
}

// PageFailure records a page whose discovery failed. It does not fail the connect.
type PageFailure struct {
	PageID   string
	PageName string
	Err      error
}

type ConnectResult struct {
	Message  string
	Accounts []ConnectedAccount
	Failures []PageFailure
}

// Connector drives the authorization code to linked account pipeline.
type Connector struct {
	oauth    auth.OAuthProvider
	graph    graph.ClientInterface
	accounts *linkedaccount.Service
	meta     config.MetaConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewConnector(
	oauth auth.OAuthProvider,
	graph graph.ClientInterface,
	accounts *linkedaccount.Service,
	meta config.MetaConfig,
	log *zap.Logger,
) *Connector {
	return &Connector{
		oauth:    oauth,
		graph:    graph,
		accounts: accounts,
		meta:     meta,
		log:      log,
		now:      time.Now,
	}
}

// AuthURL returns the login dialog URL the browser is sent to, with a fresh
// state value carrying StatePrefix.
func (c *Connector) AuthURL() (string, error) {
	if err := c.meta.Validate(); err != nil {
		return "", apperr.Wrap(apperr.Configuration, err.Error(), err)
	}
	state := StatePrefix + strconv.FormatInt(c.now().UnixMilli(), 10)
	return c.oauth.GetAuthURL(state), nil
}

// Connect exchanges an authorization code and links every Instagram business
// account reachable through the user's pages. Steps run strictly in order and
// nothing touches the network before the request and configuration checks pass.
func (c *Connector) Connect(ctx context.Context, userID, code, state string) (*ConnectResult, error) {
	if userID == "" {
		return nil, apperr.New(apperr.Unauthenticated, "User not authenticated")
	}
	if code == "" {
		return nil, apperr.New(apperr.InvalidRequest, "Authorization code is required")
	}
	if !strings.HasPrefix(state, StatePrefix) {
		return nil, apperr.New(apperr.InvalidRequest, "Invalid OAuth state")
	}
	if err := c.meta.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.Configuration, err.Error(), err)
	}

	log := c.log.With(zap.String("user_id", userID))

	log.Debug("exchanging authorization code")
	shortLived, err := c.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, upstream(err, "Failed to exchange token")
	}

	log.Debug("exchanging for long-lived token")
	longLived, err := c.graph.ExchangeLongLivedToken(ctx, shortLived.AccessToken)
	if err != nil {
		return nil, upstream(err, "Failed to get long-lived token")
	}

	pages, err := c.graph.ListPages(ctx, longLived.AccessToken)
	if err != nil {
		return nil, upstream(err, "Failed to fetch pages")
	}
	log.Info("processing pages", zap.Int("pages", len(pages)))

	accounts, failures := c.discover(ctx, userID, pages)
	for _, f := range failures {
		log.Warn("skipping page",
			zap.String("page_id", f.PageID),
			zap.String("page_name", f.PageName),
			zap.Error(f.Err),
		)
	}

	connectedAccounts.Add(ctx, int64(len(accounts)))
	pageFailures.Add(ctx, int64(len(failures)))
	log.Info("instagram accounts connected",
		zap.Int("accounts", len(accounts)),
		zap.Int("failed_pages", len(failures)),
	)

	return &ConnectResult{
		Message:  fmt.Sprintf("Connected %d Instagram account(s)", len(accounts)),
		Accounts: accounts,
		Failures: failures,
	}, nil
}

// discover folds the pages into linked accounts and failures, one page at a time.
func (c *Connector) discover(ctx context.Context, userID string, pages []graph.Page) ([]ConnectedAccount, []PageFailure) {
	accounts := []ConnectedAccount{}
	var failures []PageFailure

	for _, page := range pages {
		acc, err := c.linkPage(ctx, userID, page)
		switch {
		case err != nil:
			failures = append(failures, PageFailure{PageID: page.ID, PageName: page.Name, Err: err})
		case acc != nil:
			accounts = append(accounts, *acc)
		}
	}
	return accounts, failures
}

// linkPage returns nil without error when the page has no business account.
// Lookups use the page token, which is also what gets stored for publishing.
func (c *Connector) linkPage(ctx context.Context, userID string, page graph.Page) (*ConnectedAccount, error) {
	igUserID, err := c.graph.GetPageBusinessAccount(ctx, page.ID, page.AccessToken)
	if err != nil {
		return nil, err
	}
	if igUserID == "" {
		return nil, nil
	}

	profile, err := c.graph.GetAccountProfile(ctx, igUserID, page.AccessToken)
	if err != nil {
		return nil, err
	}

	linked, err := c.accounts.Link(ctx, linkedaccount.UpsertParams{
		Key:         linkedaccount.Key{UserID: userID, ExternalID: igUserID},
		PageID:      page.ID,
		Username:    profile.Username,
		ProfilePic:  profile.ProfilePictureURL,
		AccessToken: page.AccessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store account %s: %w", igUserID, err)
	}

	return &ConnectedAccount{
		IGUserID:   linked.ExternalID,
		Username:   linked.Username,
		ProfilePic: linked.ProfilePic,
		PageName:   page.Name,
	}, nil
}
