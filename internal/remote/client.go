package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// ResultsKey is the field holding the items of a paginated listing.
const ResultsKey = "results"

// maxPages bounds pagination so a server loop cannot hang a refresh.
const maxPages = 100

// TokenSource supplies the current authentication token.
type TokenSource interface {
	Token() string
}

// Client implements API over HTTP.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

// NewClient creates a client for the service rooted at baseURL, e.g.
// "https://api.gravvy.com/api/v1".
func NewClient(baseURL string, tokens TokenSource, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient sets a custom http.Client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func videoPath(hashKey string) string {
	return "/videos/" + url.PathEscape(hashKey) + "/"
}

func collectionPath(scope Scope) (string, error) {
	switch scope.Collection {
	case CollectionVideos:
		return "/videos/", nil
	case CollectionActivities:
		return "/user/activities/", nil
	case CollectionFavorites:
		return "/user/favorites/", nil
	case CollectionVideo, CollectionMembers:
		if scope.VideoKey == "" {
			return "", fmt.Errorf("collection %s needs a video key", scope.Collection)
		}
		if scope.Collection == CollectionMembers {
			return videoPath(scope.VideoKey) + "members/", nil
		}
		return videoPath(scope.VideoKey), nil
	}
	return "", fmt.Errorf("unknown collection %q", scope.Collection)
}

// FetchCollection lists a collection, following "next" links.
func (c *Client) FetchCollection(ctx context.Context, scope Scope) ([]Record, error) {
	op := "fetch " + string(scope.Collection)
	path, err := collectionPath(scope)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}

	if scope.Collection == CollectionVideo {
		var rec Record
		if err := c.do(ctx, op, http.MethodGet, c.baseURL+path, nil, &rec); err != nil {
			return nil, err
		}
		return []Record{rec}, nil
	}

	var out []Record
	next := c.baseURL + path
	for page := 0; next != "" && page < maxPages; page++ {
		var raw json.RawMessage
		if err := c.do(ctx, op, http.MethodGet, next, nil, &raw); err != nil {
			return nil, err
		}
		items, more, err := decodeListing(raw)
		if err != nil {
			return nil, &Error{Op: op, Err: err}
		}
		out = append(out, items...)
		next = more
	}
	return out, nil
}

// decodeListing accepts both a bare array and a {"results": [...], "next": ...}
// envelope.
func decodeListing(raw json.RawMessage) ([]Record, string, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []Record
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, "", fmt.Errorf("decode listing: %w", err)
		}
		return items, "", nil
	}
	var page struct {
		Results []Record `json:"results"`
		Next    *string  `json:"next"`
	}
	if err := json.Unmarshal(trimmed, &page); err != nil {
		return nil, "", fmt.Errorf("decode listing: %w", err)
	}
	next := ""
	if page.Next != nil {
		next = *page.Next
	}
	return page.Results, next, nil
}

// Mutate mirrors one local change to the server.
func (c *Client) Mutate(ctx context.Context, m Mutation) (Record, error) {
	op := string(m.Op)
	method, path, body, err := mutationRequest(m)
	if err != nil {
		return nil, &Error{Op: op, Err: err}
	}
	var rec Record
	if err := c.do(ctx, op, method, c.baseURL+path, body, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func mutationRequest(m Mutation) (method, path string, body any, err error) {
	if m.Op != OpCreate && m.Target == "" {
		return "", "", nil, fmt.Errorf("mutation %s has no target", m.Op)
	}
	switch m.Op {
	case OpCreate:
		return http.MethodPost, "/videos/", m.Payload, nil
	case OpPlay:
		return http.MethodPost, videoPath(m.Target) + "plays/", nil, nil
	case OpLike:
		return http.MethodPost, videoPath(m.Target) + "likes/", nil, nil
	case OpUnlike:
		return http.MethodDelete, videoPath(m.Target) + "likes/", nil, nil
	case OpClearNotifications:
		return http.MethodPost, videoPath(m.Target) + "clear_notifications/", nil, nil
	case OpDeleteVideo:
		return http.MethodDelete, videoPath(m.Target), nil, nil
	case OpLeave, OpRevokeMember:
		phone := m.Payload.String("phone")
		if phone == "" {
			return "", "", nil, fmt.Errorf("mutation %s needs a phone", m.Op)
		}
		return http.MethodDelete, videoPath(m.Target) + "members/" + url.PathEscape(phone) + "/", nil, nil
	case OpDeleteClip:
		clip := m.Payload.String("clip")
		if clip == "" {
			return "", "", nil, fmt.Errorf("mutation %s needs a clip", m.Op)
		}
		return http.MethodDelete, videoPath(m.Target) + "clips/" + url.PathEscape(clip) + "/", nil, nil
	}
	return "", "", nil, fmt.Errorf("unknown mutation %q", m.Op)
}

// FetchImage downloads an image.
func (c *Client) FetchImage(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, &Error{Op: "fetch image", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Op: "fetch image", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: "fetch image", StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newError("fetch image", resp.StatusCode, data)
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, op, method, target string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Err: err}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gravvy-client/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if tok := c.tokens.Token(); tok != "" {
			req.Header.Set("Authorization", "Token "+tok)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(op, resp.StatusCode, data)
	}
	if resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func newError(op string, status int, body []byte) *Error {
	msg := string(body)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return &Error{Op: op, StatusCode: status, Err: fmt.Errorf("HTTP %d: %s", status, msg)}
}
