package broker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientSelectsAuthHost(t *testing.T) {
	sandbox := NewClient("https://broker-api.sandbox.alpaca.markets", "key", "secret")
	if sandbox.authURL != sandboxAuthURL {
		t.Errorf("expected sandbox auth URL, got %q", sandbox.authURL)
	}

	prod := NewClient("https://broker-api.alpaca.markets", "key", "secret")
	if prod.authURL != productionAuthURL {
		t.Errorf("expected production auth URL, got %q", prod.authURL)
	}
}

func TestAuthenticateMissingCredentials(t *testing.T) {
	c := NewClient("https://broker-api.sandbox.alpaca.markets", "", "")
	_, err := c.Authenticate(context.Background())
	if !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("expected ErrMissingCredentials, got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("expected form encoding, got %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "client_credentials" {
			t.Errorf("expected client_credentials grant, got %q", r.PostForm.Get("grant_type"))
		}
		if r.PostForm.Get("client_id") != "key" || r.PostForm.Get("client_secret") != "secret" {
			t.Error("expected API key/secret as client credentials")
		}
		json.NewEncoder(w).Encode(Token{AccessToken: "tok-123", TokenType: "Bearer", ExpiresIn: 900})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	c.authURL = server.URL

	token, err := c.Authenticate(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "tok-123" {
		t.Errorf("expected tok-123, got %q", token.AccessToken)
	}
}

func TestAuthenticateEmptyToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Token{})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	c.authURL = server.URL

	if _, err := c.Authenticate(context.Background()); err == nil {
		t.Fatal("expected an error for an empty access token")
	}
}

func TestAuthenticateRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error_description":"invalid client credentials"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	c.authURL = server.URL

	_, err := c.Authenticate(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %T: %v", err, err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", apiErr.StatusCode)
	}
	if apiErr.Message != "invalid client credentials" {
		t.Errorf("expected error_description extracted, got %q", apiErr.Message)
	}
}

func TestCreateAccount(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/accounts" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("expected bearer token, got %q", auth)
		}
		var req AccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if req.Contact.EmailAddress != "jane@example.com" {
			t.Errorf("expected contact email, got %q", req.Contact.EmailAddress)
		}
		json.NewEncoder(w).Encode(Account{ID: "acct-1", Status: AccountStatusSubmitted})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	account, err := c.CreateAccount(context.Background(), "tok", AccountRequest{
		Contact: Contact{EmailAddress: "jane@example.com"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if account.ID != "acct-1" || account.Status != AccountStatusSubmitted {
		t.Errorf("unexpected account %+v", account)
	}
}

func TestSearchAccountsByEmailEscapesQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("query"); got != "jane+tag@example.com" {
			t.Errorf("expected escaped query round-trip, got %q", got)
		}
		json.NewEncoder(w).Encode([]Account{{ID: "acct-1"}})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	accounts, err := c.SearchAccountsByEmail(context.Background(), "tok", "jane+tag@example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(accounts) != 1 || accounts[0].ID != "acct-1" {
		t.Errorf("unexpected accounts %+v", accounts)
	}
}

func TestGetTradingAccountNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"account not found"}`))
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	_, err := c.GetTradingAccount(context.Background(), "tok", "acct-1")
	if !IsNotFound(err) {
		t.Fatalf("expected a 404 APIError, got %v", err)
	}
}

func TestCreateOrderPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/trading/accounts/acct-1/orders" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req OrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("failed to decode body: %v", err)
		}
		if req.Notional != "95.24" || req.Side != "buy" {
			t.Errorf("unexpected order request %+v", req)
		}
		json.NewEncoder(w).Encode(Order{ID: "order-1", Status: "accepted"})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")
	order, err := c.CreateOrder(context.Background(), "tok", "acct-1", OrderRequest{
		Symbol:      "TSLA",
		Notional:    "95.24",
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if order.ID != "order-1" {
		t.Errorf("expected order-1, got %q", order.ID)
	}
}

func TestListOrdersStatusFilter(t *testing.T) {
	var gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode([]Order{})
	}))
	defer server.Close()

	c := NewClient(server.URL, "key", "secret")

	if _, err := c.ListOrders(context.Background(), "tok", "acct-1", "all"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "limit=50" {
		t.Errorf(`expected "all" to apply no status filter, got %q`, gotQuery)
	}

	if _, err := c.ListOrders(context.Background(), "tok", "acct-1", "open"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotQuery != "limit=50&status=open" {
		t.Errorf("expected status filter, got %q", gotQuery)
	}
}

func TestIsEmailTaken(t *testing.T) {
	tests := []struct {
		name string
		err  APIError
		want bool
	}{
		{"message match", APIError{StatusCode: 409, Message: "an account with this email address already exists"}, true},
		{"body match", APIError{StatusCode: 409, Body: `{"message":"email address in use"}`}, true},
		{"unrelated conflict", APIError{StatusCode: 409, Message: "too many requests"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.IsEmailTaken(); got != tt.want {
				t.Errorf("IsEmailTaken() = %v, want %v", got, tt.want)
			}
		})
	}
}
