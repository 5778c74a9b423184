// Package api is the typed client for the LinguaFlow REST API. It wraps
// the auth and preferences endpoints consumed by the session manager and
// maps transport and HTTP failures onto a closed error taxonomy so
// callers can match on error kind instead of probing error shapes.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultTimeout = 10 * time.Second

// User is the account payload returned by the login and
// validate-session endpoints.
type User struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	DefaultFromLang string `json:"defaultFromLang,omitempty"`
	DefaultToLang   string `json:"defaultToLang,omitempty"`
	SignedSessionID string `json:"signed_session_id,omitempty"`
}

// LoginResult is the payload of a successful login.
type LoginResult struct {
	User  User
	Token string
}

// Preferences is the default language pair synced to the server.
type Preferences struct {
	DefaultFromLang string `json:"defaultFromLang"`
	DefaultToLang   string `json:"defaultToLang"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	// BaseURL is the API root, e.g. "http://localhost:3000".
	BaseURL string

	// HTTPClient overrides the default client (10s timeout).
	HTTPClient *http.Client
}

// Client calls the LinguaFlow REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a Client for the given base URL.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api: base URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &Client{baseURL: baseURL, httpClient: httpClient}, nil
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool   `json:"success"`
	User    User   `json:"user"`
	Token   string `json:"token"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type validateResponse struct {
	Success bool `json:"success"`
	User    User `json:"user"`
}

// Register creates a new account. It does not establish a session.
func (c *Client) Register(ctx context.Context, email, password string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/register", "", credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Kind: KindServer, Message: "register: server did not confirm success"}
	}
	return nil
}

// Login exchanges credentials for a bearer token and the user record.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/login", "", credentialsRequest{Email: email, Password: password}, &resp); err != nil {
		return LoginResult{}, err
	}
	if !resp.Success || resp.Token == "" || resp.User.ID == "" {
		return LoginResult{}, &Error{Kind: KindBadRequest, Message: "login: malformed server response"}
	}
	return LoginResult{User: resp.User, Token: resp.Token}, nil
}

// ValidateSession checks the token against the server and returns the
// decoded user on success.
func (c *Client) ValidateSession(ctx context.Context, token string) (User, error) {
	var resp validateResponse
	if err := c.do(ctx, http.MethodGet, "/validate-session", token, nil, &resp); err != nil {
		return User{}, err
	}
	if !resp.Success {
		return User{}, &Error{Kind: KindUnauthorized, Message: "validate-session: server did not confirm success"}
	}
	return resp.User, nil
}

// Logout invalidates the session behind the token.
func (c *Client) Logout(ctx context.Context, token string) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/logout", token, struct{}{}, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Kind: KindServer, Message: "logout: server did not confirm success"}
	}
	return nil
}

// UpdatePreferences stores the default language pair on the server.
func (c *Client) UpdatePreferences(ctx context.Context, token string, prefs Preferences) error {
	var resp successResponse
	if err := c.do(ctx, http.MethodPost, "/preferences", token, prefs, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return &Error{Kind: KindServer, Message: "preferences: server did not confirm success"}
	}
	return nil
}

// do performs one request and decodes the JSON response into out.
func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindBadRequest, Message: fmt.Sprintf("encode request: %v", err)}
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &Error{Kind: KindBadRequest, Message: fmt.Sprintf("build request: %v", err)}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: err.Error()}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 {
		return errorFromStatus(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &Error{Kind: KindServer, Status: resp.StatusCode, Message: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// errorFromStatus maps a non-2xx response onto the error taxonomy,
// preferring the server's own error message when the body carries one.
func errorFromStatus(resp *http.Response) *Error {
	message := resp.Status
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		message = body.Error
	}

	kind := KindServer
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = KindUnauthorized
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		kind = KindBadRequest
	}

	return &Error{Kind: kind, Status: resp.StatusCode, Message: message}
}
