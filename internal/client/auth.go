package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/projtrack/projtrack/internal/access"
)

type wireIdentity struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username,omitempty"`
	Role     string `json:"role"`
}

func (w *wireIdentity) identity() *access.Identity {
	if w == nil {
		return nil
	}
	role, ok := access.ParseGlobalRole(w.Role)
	if !ok {
		role = access.GlobalRole(w.Role)
	}
	return &access.Identity{ID: w.ID, Name: w.Name, Role: role}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login posts credentials and returns the signed-in user.
func (c *Client) Login(ctx context.Context, username, password string) (*access.Identity, error) {
	var data userData
	if err := c.do(ctx, http.MethodPost, "/auth/login", loginRequest{Username: username, Password: password}, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "login response carried no user"}
	}
	return data.User.identity(), nil
}

// Logout ends the server session. The response body is ignored.
func (c *Client) Logout(ctx context.Context) error {
	_, status, err := c.call(ctx, http.MethodPost, "/auth/logout", nil)
	if err != nil {
		return err
	}
	if status >= http.StatusBadRequest {
		return &APIError{StatusCode: status}
	}
	return nil
}

// Check asks whether the session cookie is still valid. A 401 or a
// negative envelope is a "no" answer, not an error.
func (c *Client) Check(ctx context.Context) (bool, *access.Identity, error) {
	env, status, err := c.call(ctx, http.MethodGet, "/auth/check", nil)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return false, nil, nil
		}
		return false, nil, err
	}
	if status == http.StatusUnauthorized {
		return false, nil, nil
	}
	if status >= http.StatusBadRequest {
		return false, nil, &APIError{StatusCode: status, Message: env.Message}
	}
	if !env.Success || (env.Authenticated != nil && !*env.Authenticated) {
		return false, nil, nil
	}
	var data userData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return false, nil, &TransportError{Op: "GET /auth/check", Err: err}
		}
	}
	if data.User == nil {
		return false, nil, nil
	}
	return true, data.User.identity(), nil
}

// Profile returns the current user as the server sees it.
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var data struct {
		User *User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/profile", nil, &data); err != nil {
		return nil, err
	}
	if data.User == nil {
		return nil, &APIError{StatusCode: http.StatusOK, Message: "profile response carried no user"}
	}
	return data.User, nil
}
