// Package babbel is the client for the Babbel radio-automation story API.
// Every operation returns a domain.StoryResult instead of an error so the
// diagnostic message can be written into story state verbatim.
package babbel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"babbel_syncer/internal/domain"
)

const maxBodyDiagnostic = 200

// Config holds connection and session parameters. SessionValidity is the
// lifetime the backend grants a session; SessionMargin is subtracted from
// it so a cached session is never presented close to expiry.
type Config struct {
	BaseURL         string
	Username        string
	Password        string
	Timeout         time.Duration
	SessionValidity time.Duration
	SessionMargin   time.Duration
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	validity   time.Duration
	margin     time.Duration
	logger     *slog.Logger

	now func() time.Time

	mu            sync.Mutex
	sessionCookie string
	sessionExpiry time.Time
}

func New(cfg Config, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		validity:   cfg.SessionValidity,
		margin:     cfg.SessionMargin,
		logger:     logger.With("component", "babbel"),
		now:        time.Now,
	}
}

// Create posts a new story and returns its id.
func (c *Client) Create(ctx context.Context, p domain.StoryPayload) domain.StoryResult {
	if res, ok := c.checkConfig(); !ok {
		return res
	}

	body := storyRequest{
		Title:     p.Title,
		Text:      p.Text,
		StartDate: p.StartDate,
		EndDate:   p.EndDate,
		Status:    p.Status,
		Weekdays:  p.Weekdays,
		Metadata:  storyMetadata{PostID: p.ItemID},
	}

	status, respBody, err := c.do(ctx, http.MethodPost, "/stories", body)
	if err != nil {
		return fail(fmt.Sprintf("request failed: %v", err))
	}
	if status != http.StatusCreated {
		return apiError(status, respBody)
	}

	var resp storyResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fail(fmt.Sprintf("invalid response body: %v", err))
	}
	if resp.Error != "" {
		return fail(fmt.Sprintf("API error: %s", resp.Error))
	}
	if resp.ID.String() == "" {
		return fail("response contains no story id")
	}

	c.logger.Info("story created", "story_id", resp.ID.String(), "item_id", p.ItemID)
	return domain.StoryResult{OK: true, Message: "story created", StoryID: resp.ID.String()}
}

// Update patches the scheduling window of an existing story. An empty
// field set is a caller error, not an API call.
func (c *Client) Update(ctx context.Context, storyID string, fields domain.StoryFields) domain.StoryResult {
	if res, ok := c.checkConfig(); !ok {
		return res
	}
	if fields.Empty() {
		return fail("no fields to update")
	}

	body := map[string]any{}
	if fields.StartDate != "" {
		body["start_date"] = fields.StartDate
	}
	if fields.EndDate != "" {
		body["end_date"] = fields.EndDate
	}
	if fields.Weekdays != nil {
		body["weekdays"] = *fields.Weekdays
	}

	status, respBody, err := c.do(ctx, http.MethodPut, "/stories/"+storyID, body)
	if err != nil {
		return fail(fmt.Sprintf("request failed: %v", err))
	}
	if status != http.StatusOK {
		return apiError(status, respBody)
	}

	c.logger.Info("story updated", "story_id", storyID)
	return domain.StoryResult{OK: true, Message: "story updated", StoryID: storyID}
}

// Delete soft-deletes a story.
func (c *Client) Delete(ctx context.Context, storyID string) domain.StoryResult {
	if res, ok := c.checkConfig(); !ok {
		return res
	}

	status, respBody, err := c.do(ctx, http.MethodDelete, "/stories/"+storyID, nil)
	if err != nil {
		return fail(fmt.Sprintf("request failed: %v", err))
	}
	if status != http.StatusOK && status != http.StatusNoContent {
		return apiError(status, respBody)
	}

	c.logger.Info("story deleted", "story_id", storyID)
	return domain.StoryResult{OK: true, Message: "story deleted", StoryID: storyID}
}

// Restore clears the soft-delete marker on a story.
func (c *Client) Restore(ctx context.Context, storyID string) domain.StoryResult {
	if res, ok := c.checkConfig(); !ok {
		return res
	}

	body := map[string]any{"deleted_at": nil}
	status, respBody, err := c.do(ctx, http.MethodPatch, "/stories/"+storyID, body)
	if err != nil {
		return fail(fmt.Sprintf("request failed: %v", err))
	}
	if status != http.StatusOK {
		return apiError(status, respBody)
	}

	c.logger.Info("story restored", "story_id", storyID)
	return domain.StoryResult{OK: true, Message: "story restored", StoryID: storyID}
}

// TestConnection authenticates and performs an identity check.
func (c *Client) TestConnection(ctx context.Context) domain.StoryResult {
	if res, ok := c.checkConfig(); !ok {
		return res
	}

	status, respBody, err := c.do(ctx, http.MethodGet, "/sessions/current", nil)
	if err != nil {
		return fail(fmt.Sprintf("request failed: %v", err))
	}
	if status != http.StatusOK {
		return apiError(status, respBody)
	}

	var resp sessionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return fail(fmt.Sprintf("invalid response body: %v", err))
	}
	if resp.Name != "" {
		return domain.StoryResult{OK: true, Message: fmt.Sprintf("connection ok, authenticated as %s", resp.Name)}
	}
	return domain.StoryResult{OK: true, Message: "connection ok"}
}

func (c *Client) checkConfig() (domain.StoryResult, bool) {
	if c.baseURL == "" || c.username == "" || c.password == "" {
		return fail("Babbel API credentials are not configured"), false
	}
	return domain.StoryResult{}, true
}

// do sends one authenticated request. On an authorization failure the
// cached session is dropped, a fresh login happens, and the request is
// retried exactly once; a second failure is returned as-is.
func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	cookie, err := c.session(ctx)
	if err != nil {
		return 0, nil, err
	}

	status, body, err := c.send(ctx, method, path, payload, cookie)
	if err != nil {
		return 0, nil, err
	}
	if status != http.StatusUnauthorized && status != http.StatusForbidden {
		return status, body, nil
	}

	c.logger.Warn("session rejected, re-authenticating", "status", status)
	c.invalidateSession()

	cookie, err = c.session(ctx)
	if err != nil {
		return 0, nil, err
	}
	return c.send(ctx, method, path, payload, cookie)
}

func (c *Client) send(ctx context.Context, method, path string, payload any, cookie string) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// session returns a cached cookie while it is still comfortably inside its
// validity window, logging in again otherwise.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sessionCookie != "" && c.now().Before(c.sessionExpiry) {
		return c.sessionCookie, nil
	}

	cookie, err := c.login(ctx)
	if err != nil {
		return "", err
	}
	c.sessionCookie = cookie
	c.sessionExpiry = c.now().Add(c.validity - c.margin)
	return cookie, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	data, err := json.Marshal(sessionRequest{Username: c.username, Password: c.password})
	if err != nil {
		return "", fmt.Errorf("marshal login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/sessions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute login request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("login failed: HTTP %d - %s", resp.StatusCode, truncate(body))
	}

	cookies := resp.Cookies()
	if len(cookies) == 0 {
		return "", fmt.Errorf("login response contains no session cookie")
	}

	c.logger.Debug("session established")
	return cookies[0].Name + "=" + cookies[0].Value, nil
}

func (c *Client) invalidateSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionCookie = ""
	c.sessionExpiry = time.Time{}
}

func fail(msg string) domain.StoryResult {
	return domain.StoryResult{Message: msg}
}

func apiError(status int, body []byte) domain.StoryResult {
	return fail(fmt.Sprintf("API error: HTTP %d - %s", status, truncate(body)))
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxBodyDiagnostic {
		return s[:maxBodyDiagnostic] + "..."
	}
	return s
}
