package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"taskboard/internal/board"
)

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
}

// Client talks to the board HTTP API.
type Client struct {
	BaseURL    string
	Token      string
	HttpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:    baseURL,
		Token:      token,
		HttpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// do is the single helper every request goes through.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create API request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HttpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend unavailable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type statusRequest struct {
	StatusID int `json:"status_id"`
}

// UpdateTaskStatus persists a move of taskID into column to.
func (c *Client) UpdateTaskStatus(ctx context.Context, taskID int64, to board.ColumnKey) error {
	path := "/tasks/" + strconv.FormatInt(taskID, 10) + "/status"
	return c.do(ctx, http.MethodPatch, path, statusRequest{StatusID: to.StatusID()}, nil)
}

// FetchBoard returns the board's current full snapshot.
func (c *Client) FetchBoard(ctx context.Context, boardID int64) (*board.Snapshot, error) {
	var s board.Snapshot
	if err := c.do(ctx, http.MethodGet, "/boards/"+strconv.FormatInt(boardID, 10)+"/tasks", nil, &s); err != nil {
		return nil, err
	}
	s.Normalize()
	return &s, nil
}

type LoginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	} `json:"user"`
}

func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	in := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/login", in, &out); err != nil {
		return nil, err
	}
	c.Token = out.Token
	return &out, nil
}
