package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	sandboxAuthURL    = "https://authx.sandbox.alpaca.markets/v1/oauth2/token"
	productionAuthURL = "https://authx.alpaca.markets/v1/oauth2/token"
)

// Client handles communication with the brokerage Broker API
type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	authURL    string
	httpClient *http.Client
}

// NewClient creates a new broker client for the given environment. The OAuth
// host is selected by inspecting the base URL: a sandbox base URL gets the
// sandbox auth endpoint.
func NewClient(baseURL, apiKey, apiSecret string) *Client {
	authURL := productionAuthURL
	if strings.Contains(baseURL, "sandbox") {
		authURL = sandboxAuthURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiSecret: apiSecret,
		authURL:   authURL,
		// Bounds every call, including each iteration of a polling loop.
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Authenticate obtains a short-lived access token via the client-credentials
// grant. No retry: backoff policy belongs to the caller.
func (c *Client) Authenticate(ctx context.Context) (*Token, error) {
	if c.apiKey == "" || c.apiSecret == "" {
		return nil, ErrMissingCredentials
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.apiKey)
	form.Set("client_secret", c.apiSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}

	return &token, nil
}

// CreateAccount submits an onboarding payload and returns the new account.
func (c *Client) CreateAccount(ctx context.Context, accessToken string, req AccountRequest) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", accessToken, req, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccount retrieves an account, including its current status.
func (c *Client) GetAccount(ctx context.Context, accessToken, accountID string) (*Account, error) {
	var account Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, accessToken, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// SearchAccountsByEmail queries the broker for accounts matching an email
// address. The broker treats the query as a free-text match, so callers must
// still compare the contact email on each result.
func (c *Client) SearchAccountsByEmail(ctx context.Context, accessToken, email string) ([]Account, error) {
	path := "/v1/accounts?query=" + url.QueryEscape(email)
	var accounts []Account
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// GetTradingAccount retrieves the trading view of an account with its
// buying-power figures. Returns a 404 *APIError when the trading endpoint is
// unavailable for the account; callers fall back to GetAccount.
func (c *Client) GetTradingAccount(ctx context.Context, accessToken, accountID string) (*TradingAccount, error) {
	var account TradingAccount
	if err := c.do(ctx, http.MethodGet, "/v1/trading/accounts/"+accountID+"/account", accessToken, nil, &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateJournal submits a cash journal instruction between two accounts.
func (c *Client) CreateJournal(ctx context.Context, accessToken string, req JournalRequest) (*Journal, error) {
	var journal Journal
	if err := c.do(ctx, http.MethodPost, "/v1/journals", accessToken, req, &journal); err != nil {
		return nil, err
	}
	return &journal, nil
}

// CreateOrder submits an order against an account.
func (c *Client) CreateOrder(ctx context.Context, accessToken, accountID string, req OrderRequest) (*Order, error) {
	var order Order
	if err := c.do(ctx, http.MethodPost, "/v1/trading/accounts/"+accountID+"/orders", accessToken, req, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns recent orders for an account, optionally filtered by
// status ("open", "closed"; empty or "all" means no filter).
func (c *Client) ListOrders(ctx context.Context, accessToken, accountID, status string) ([]Order, error) {
	q := url.Values{}
	q.Set("limit", "50")
	if status != "" && status != "all" {
		q.Set("status", status)
	}
	path := "/v1/trading/accounts/" + accountID + "/orders?" + q.Encode()
	var orders []Order
	if err := c.do(ctx, http.MethodGet, path, accessToken, nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (c *Client) do(ctx context.Context, method, path, accessToken string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// apiError builds an *APIError from a non-2xx response, keeping the raw body
// and extracting the broker's message field when present.
func (c *Client) apiError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var parsed struct {
		Message          string `json:"message"`
		ErrorDescription string `json:"error_description"`
	}
	_ = json.Unmarshal(raw, &parsed)

	message := parsed.Message
	if message == "" {
		message = parsed.ErrorDescription
	}

	return &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Body:       string(raw),
	}
}
