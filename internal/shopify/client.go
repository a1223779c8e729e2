package shopify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiVersion = "2024-01"

// NormalizeDomain canonicalizes user-entered shop domains to the
// *.myshopify.com form.
func NormalizeDomain(shop string) string {
	normalized := strings.ToLower(strings.TrimSpace(shop))
	normalized = strings.TrimPrefix(normalized, "https://")
	normalized = strings.TrimPrefix(normalized, "http://")
	normalized = strings.TrimSuffix(normalized, "/")
	if normalized == "" {
		return ""
	}
	if !strings.Contains(normalized, ".myshopify.com") {
		return normalized + ".myshopify.com"
	}
	if idx := strings.Index(normalized, ".myshopify.com"); idx >= 0 {
		normalized = normalized[:idx] + ".myshopify.com"
	}
	return normalized
}

// Storefront is the credential set for one connected shop.
type Storefront struct {
	ID     string
	Name   string
	Domain string
	Token  string
}

// Order is the canonical shape every storefront result is normalized to.
type Order struct {
	StoreID              string           `json:"store_id"`
	StoreName            string           `json:"store_name"`
	ExternalOrderID      string           `json:"external_order_id"`
	OrderNumber          string           `json:"order_number"`
	OrderDate            time.Time        `json:"order_date"`
	Total                string           `json:"total"`
	Currency             string           `json:"currency"`
	FinancialStatus      string           `json:"financial_status"`
	FulfillmentStatus    string           `json:"fulfillment_status"`
	CustomerName         string           `json:"customer_name"`
	CustomerEmail        string           `json:"customer_email"`
	LineItems            []LineItem       `json:"line_items"`
	ShippingAddress      *ShippingAddress `json:"shipping_address,omitempty"`
	ExistingReturnStatus *string          `json:"existing_return_status"`
}

type LineItem struct {
	Title        string `json:"title"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	SKU          string `json:"sku"`
	VariantTitle string `json:"variant_title"`
	Image        string `json:"image,omitempty"`
}

type ShippingAddress struct {
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Country  string `json:"country"`
	Zip      string `json:"zip"`
}

type Shop struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Domain string `json:"domain"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	Scope       string `json:"scope"`
}

type Client struct {
	httpClient *http.Client
	// timeout bounds every individual storefront call, so one slow shop
	// degrades only its own branch of a search.
	timeout time.Duration
	scheme  string
}

func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{},
		timeout:    timeout,
		scheme:     "https",
	}
}

// SearchOrdersByEmail fetches orders matching an email from one storefront,
// status "any", and normalizes them. Non-2xx responses and transport errors
// surface as errors; the aggregator decides how to degrade.
func (c *Client) SearchOrdersByEmail(ctx context.Context, store Storefront, email string) ([]Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s://%s/admin/api/%s/orders.json?email=%s&status=any&limit=50",
		c.scheme, store.Domain, apiVersion, url.QueryEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", store.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storefront %s: %w", store.Domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storefront %s: unexpected status %d", store.Domain, resp.StatusCode)
	}

	var payload struct {
		Orders []wireOrder `json:"orders"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("storefront %s: decode: %w", store.Domain, err)
	}

	orders := make([]Order, 0, len(payload.Orders))
	for _, wo := range payload.Orders {
		orders = append(orders, wo.normalize(store))
	}
	return orders, nil
}

// GetShop fetches shop display info. Doubles as the live credential check the
// Store Registry runs before persisting new credentials.
func (c *Client) GetShop(ctx context.Context, domain, token string) (*Shop, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s://%s/admin/api/%s/shop.json", c.scheme, domain, apiVersion)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("storefront %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("storefront %s: unexpected status %d", domain, resp.StatusCode)
	}

	var payload struct {
		Shop Shop `json:"shop"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("storefront %s: decode: %w", domain, err)
	}
	if payload.Shop.Name == "" {
		payload.Shop.Name = strings.TrimSuffix(domain, ".myshopify.com")
	}
	return &payload.Shop, nil
}

// ExchangeCode trades an OAuth authorization code for an access token.
func (c *Client) ExchangeCode(ctx context.Context, domain, code, clientID, clientSecret string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{
		"client_id":     clientID,
		"client_secret": clientSecret,
		"code":          code,
	})
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s://%s/admin/oauth/access_token", c.scheme, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange with %s: %w", domain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("token exchange with %s: unexpected status %d", domain, resp.StatusCode)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("token exchange with %s: decode: %w", domain, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token exchange with %s: empty access token", domain)
	}
	return &token, nil
}

// wireOrder mirrors the upstream Admin API order shape.
type wireOrder struct {
	ID                int64     `json:"id"`
	Name              string    `json:"name"`
	OrderNumber       int       `json:"order_number"`
	CreatedAt         time.Time `json:"created_at"`
	TotalPrice        string    `json:"total_price"`
	Currency          string    `json:"currency"`
	FinancialStatus   string    `json:"financial_status"`
	FulfillmentStatus string    `json:"fulfillment_status"`
	Email             string    `json:"email"`
	Customer          *struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`
	LineItems []struct {
		Title        string `json:"title"`
		Quantity     int    `json:"quantity"`
		Price        string `json:"price"`
		SKU          string `json:"sku"`
		VariantTitle string `json:"variant_title"`
		Image        *struct {
			Src string `json:"src"`
		} `json:"image"`
	} `json:"line_items"`
	ShippingAddress *struct {
		Address1 string `json:"address1"`
		Address2 string `json:"address2"`
		City     string `json:"city"`
		Province string `json:"province"`
		Country  string `json:"country"`
		Zip      string `json:"zip"`
	} `json:"shipping_address"`
}

func (wo wireOrder) normalize(store Storefront) Order {
	number := wo.Name
	if number == "" {
		number = fmt.Sprintf("#%d", wo.OrderNumber)
	}

	var name string
	if wo.Customer != nil {
		name = strings.TrimSpace(wo.Customer.FirstName + " " + wo.Customer.LastName)
	}

	order := Order{
		StoreID:           store.ID,
		StoreName:         store.Name,
		ExternalOrderID:   fmt.Sprintf("%d", wo.ID),
		OrderNumber:       number,
		OrderDate:         wo.CreatedAt,
		Total:             wo.TotalPrice,
		Currency:          wo.Currency,
		FinancialStatus:   wo.FinancialStatus,
		FulfillmentStatus: wo.FulfillmentStatus,
		CustomerName:      name,
		CustomerEmail:     wo.Email,
	}

	for _, item := range wo.LineItems {
		li := LineItem{
			Title:        item.Title,
			Quantity:     item.Quantity,
			Price:        item.Price,
			SKU:          item.SKU,
			VariantTitle: item.VariantTitle,
		}
		if item.Image != nil {
			li.Image = item.Image.Src
		}
		order.LineItems = append(order.LineItems, li)
	}

	if wo.ShippingAddress != nil {
		order.ShippingAddress = &ShippingAddress{
			Address1: wo.ShippingAddress.Address1,
			Address2: wo.ShippingAddress.Address2,
			City:     wo.ShippingAddress.City,
			Province: wo.ShippingAddress.Province,
			Country:  wo.ShippingAddress.Country,
			Zip:      wo.ShippingAddress.Zip,
		}
	}

	return order
}
