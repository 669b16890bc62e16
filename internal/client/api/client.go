// Package api is the typed HTTP client for the backend auth and
// contact endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cipherchat/internal/errs"
	"cipherchat/internal/models"
)

// Client talks to one backend. Authenticated routes require a token
// set via SetToken after login.
type Client struct {
	base  string
	http  *http.Client
	token string
}

// New creates a client for the backend at serverAddr (host:port).
func New(serverAddr string) *Client {
	return &Client{
		base: "http://" + serverAddr,
		http: &http.Client{Timeout: 10 * time.Second},
	}
}

// SetToken installs the bearer token for authenticated routes.
func (c *Client) SetToken(token string) {
	c.token = token
}

// AuthResult is the body of a successful login or register.
type AuthResult struct {
	Token    string `json:"token"`
	Tag      string `json:"tag"`
	Username string `json:"username"`
}

type credentials struct {
	Tag      string `json:"tag"`
	Username string `json:"username,omitempty"`
	Password string `json:"password"`
}

// Login authenticates an existing account.
func (c *Client) Login(ctx context.Context, tag, password string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/login", credentials{Tag: tag, Password: password}, &out)
	return out, err
}

// Register creates an account and logs it in.
func (c *Client) Register(ctx context.Context, tag, username, password string) (AuthResult, error) {
	var out AuthResult
	err := c.do(ctx, http.MethodPost, "/register", credentials{Tag: tag, Username: username, Password: password}, &out)
	return out, err
}

// UpdateUsername changes the display name of the authenticated user.
func (c *Client) UpdateUsername(ctx context.Context, username string) error {
	return c.do(ctx, http.MethodPut, "/user/username", map[string]string{"username": username}, nil)
}

// DeleteAccount removes the authenticated account.
func (c *Client) DeleteAccount(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/user", nil, nil)
}

// Contacts lists the authenticated user's contacts.
func (c *Client) Contacts(ctx context.Context) ([]models.Contact, error) {
	var out []models.Contact
	err := c.do(ctx, http.MethodGet, "/contacts", nil, &out)
	return out, err
}

// RequestContact sends a contact request to the given tag.
func (c *Client) RequestContact(ctx context.Context, tag string) (models.Contact, error) {
	var out models.Contact
	err := c.do(ctx, http.MethodPost, "/contacts/request", map[string]string{"tag": tag}, &out)
	return out, err
}

// AcceptContact accepts a pending contact request.
func (c *Client) AcceptContact(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/contacts/accept/"+id, nil, nil)
}

// RejectContact rejects a pending contact request.
func (c *Client) RejectContact(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/contacts/reject/"+id, nil, nil)
}

// BlockContact blocks a contact.
func (c *Client) BlockContact(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPut, "/contacts/block/"+id, nil, nil)
}

// errorBody is the JSON error shape the backend returns on non-2xx.
type errorBody struct {
	Message string `json:"message"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.mapError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) mapError(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	if eb.Message == "" {
		eb.Message = resp.Status
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", eb.Message, errs.ErrUnauthorized)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", eb.Message, errs.ErrNotFound)
	case http.StatusConflict:
		return fmt.Errorf("%s: %w", eb.Message, errs.ErrAlreadyExists)
	case http.StatusBadRequest:
		return fmt.Errorf("%s: %w", eb.Message, errs.ErrValidation)
	default:
		return fmt.Errorf("backend: %s", eb.Message)
	}
}
