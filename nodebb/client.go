// Package nodebb implements types.Forum against the NodeBB REST API.
package nodebb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"llama-bot/normalize"
	"llama-bot/types"
)

type Client struct {
	BaseURL    string
	APIKey     string
	CategoryID string
	HTTPClient *http.Client
}

type categoryResponse struct {
	Topics []topic `json:"topics"`
}

type topic struct {
	TID   json.Number `json:"tid"`
	Title string      `json:"title"`
}

type topicResponse struct {
	Title string            `json:"title"`
	Posts []json.RawMessage `json:"posts"`
}

// post fields are decoded one at a time so a single bad field does not
// discard the rest of the post
type post struct {
	Content json.RawMessage            `json:"content"`
	User    map[string]json.RawMessage `json:"user"`
}

type replyRequest struct {
	Content string `json:"content"`
}

// statusError carries a non-2xx response
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("API request failed with status %d: %s", e.StatusCode, e.Body)
}

func NewClient(baseURL, apiKey, categoryID string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		CategoryID: categoryID,
		HTTPClient: httpClient,
	}
}

func (c *Client) makeRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// ListThreads lists the topics of the configured category with decoded titles.
func (c *Client) ListThreads(ctx context.Context) ([]types.ThreadSummary, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, "/api/category/"+c.CategoryID, nil)
	if err != nil {
		return nil, &types.FetchError{Op: "list", Err: err}
	}

	var response categoryResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &types.FetchError{Op: "list", Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	threads := make([]types.ThreadSummary, 0, len(response.Topics))
	for _, t := range response.Topics {
		if t.TID == "" {
			continue // Skip malformed entries
		}
		threads = append(threads, types.ThreadSummary{
			ID:    types.ThreadID(t.TID.String()),
			Title: normalize.Title(t.Title),
		})
	}

	return threads, nil
}

// GetThread fetches a topic and normalizes its posts in forum order.
// A post that cannot be decoded is kept as an Unknown placeholder.
func (c *Client) GetThread(ctx context.Context, id types.ThreadID) (*types.Thread, error) {
	body, err := c.makeRequest(ctx, http.MethodGet, "/api/topic/"+string(id), nil)
	if err != nil {
		return nil, &types.FetchError{Op: "thread", ThreadID: id, Err: err}
	}

	var response topicResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, &types.FetchError{Op: "thread", ThreadID: id, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	posts := make([]types.Post, 0, len(response.Posts))
	for _, item := range response.Posts {
		posts = append(posts, normalize.Post(decodePost(item)))
	}

	return &types.Thread{
		ID:    id,
		Title: normalize.Title(response.Title),
		Posts: posts,
	}, nil
}

func decodePost(item json.RawMessage) normalize.RawPost {
	var p post
	if err := json.Unmarshal(item, &p); err != nil {
		return normalize.RawPost{}
	}
	raw := normalize.RawPost{
		Username: stringField(p.User["username"]),
		Group:    stringField(p.User["groupTitle"]),
	}
	if content := stringField(p.Content); content != nil {
		raw.Content = *content
	}
	return raw
}

func stringField(data json.RawMessage) *string {
	if len(data) == 0 {
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	return s
}

// Reply posts content to a topic. Any non-2xx response is a PublishError.
func (c *Client) Reply(ctx context.Context, id types.ThreadID, content string) error {
	_, err := c.makeRequest(ctx, http.MethodPost, "/api/v3/topics/"+string(id), replyRequest{Content: content})
	if err != nil {
		pubErr := &types.PublishError{ThreadID: id, Err: err}
		if se, ok := err.(*statusError); ok {
			pubErr.StatusCode = se.StatusCode
		}
		return pubErr
	}
	return nil
}
