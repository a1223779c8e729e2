// Package oauth implements the custom-app connect flow: an authenticated
// admin supplies storefront credentials, gets an authorization URL, and the
// browser comes back through the callback which exchanges the code for a
// token and upserts the store registry entry.
package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/returnlab/portal/internal/apperr"
	"github.com/returnlab/portal/internal/shopify"
	"github.com/returnlab/portal/internal/stores"
)

// Scopes the portal needs: order lookup plus product/customer details for
// line items.
const scopes = "read_orders,read_products,read_customers"

type TokenExchanger interface {
	ExchangeCode(ctx context.Context, domain, code, clientID, clientSecret string) (*shopify.TokenResponse, error)
	GetShop(ctx context.Context, domain, token string) (*shopify.Shop, error)
}

type StoreUpserter interface {
	UpsertConnected(ctx context.Context, conn stores.ConnectedStore) error
}

type Service struct {
	codec      *StateCodec
	shopify    TokenExchanger
	stores     StoreUpserter
	appBaseURL string
	logger     *zap.Logger
}

func NewService(codec *StateCodec, exchanger TokenExchanger, upserter StoreUpserter, appBaseURL string, logger *zap.Logger) *Service {
	return &Service{
		codec:      codec,
		shopify:    exchanger,
		stores:     upserter,
		appBaseURL: strings.TrimRight(appBaseURL, "/"),
		logger:     logger,
	}
}

// Connect validates the supplied custom-app credentials and returns the
// storefront authorization URL the admin browser should be sent to.
func (s *Service) Connect(domain, clientID, clientSecret, storeName string) (string, error) {
	if domain == "" || clientID == "" || clientSecret == "" {
		return "", apperr.Validation("missing required fields: domain, client_id, client_secret")
	}

	normalized := shopify.NormalizeDomain(domain)
	if normalized == "" {
		return "", apperr.Validation("invalid domain")
	}
	if storeName == "" {
		storeName = strings.TrimSuffix(normalized, ".myshopify.com")
	}

	state, err := s.codec.Encode(State{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Domain:       normalized,
		StoreName:    storeName,
	})
	if err != nil {
		return "", apperr.Upstream("encode oauth state", err)
	}

	redirectURI := s.appBaseURL + "/api/shopify/callback"
	authURL := fmt.Sprintf("https://%s/admin/oauth/authorize?client_id=%s&scope=%s&redirect_uri=%s&state=%s",
		normalized,
		url.QueryEscape(clientID),
		url.QueryEscape(scopes),
		url.QueryEscape(redirectURI),
		url.QueryEscape(state))

	s.logger.Info("oauth connect started", zap.String("domain", normalized))
	return authURL, nil
}

// Callback finishes the flow. It is a browser redirect target, so every
// outcome is reported as a redirect URL with either a success flag or an
// error code in the query string, never a JSON body.
func (s *Service) Callback(ctx context.Context, code, shop, stateParam string) string {
	adminURL := s.appBaseURL + "/admin"

	if code == "" || shop == "" || stateParam == "" {
		return adminURL + "?setup_error=missing_params"
	}

	state, err := s.codec.Decode(stateParam)
	if err != nil {
		s.logger.Warn("oauth state rejected", zap.Error(err))
		return adminURL + "?setup_error=invalid_state"
	}

	token, err := s.shopify.ExchangeCode(ctx, state.Domain, code, state.ClientID, state.ClientSecret)
	if err != nil {
		s.logger.Error("oauth token exchange failed", zap.String("domain", state.Domain), zap.Error(err))
		return adminURL + "?setup_error=no_token"
	}

	storeName := state.StoreName
	if info, err := s.shopify.GetShop(ctx, state.Domain, token.AccessToken); err == nil && info.Name != "" && storeName == "" {
		storeName = info.Name
	}
	if storeName == "" {
		storeName = strings.TrimSuffix(state.Domain, ".myshopify.com")
	}

	err = s.stores.UpsertConnected(ctx, stores.ConnectedStore{
		Name:   storeName,
		Domain: state.Domain,
		Token:  token.AccessToken,
		Scopes: token.Scope,
	})
	if err != nil {
		s.logger.Error("store upsert failed after oauth", zap.String("domain", state.Domain), zap.Error(err))
		return adminURL + "?setup_error=save_failed"
	}

	s.logger.Info("store connected via oauth", zap.String("domain", state.Domain))
	return adminURL + "?store_connected=true"
}
