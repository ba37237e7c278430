package processmapsdk

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal processmap HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

type ProcessTitle struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Seq       int     `json:"seq"`
	DependsOn *string `json:"depends_on,omitempty"`
	CreatedAt string  `json:"created_at"`
	UpdatedAt string  `json:"updated_at"`
}

// SubProcess carries its attributes as the raw ordered JSON object. Each
// value is tagged: {"type":"number","value":15}.
type SubProcess struct {
	ID         string          `json:"id"`
	ProcessID  string          `json:"process_id"`
	Name       string          `json:"name"`
	Seq        int             `json:"seq"`
	DependsOn  *string         `json:"depends_on,omitempty"`
	Attributes json.RawMessage `json:"attributes"`
	CreatedAt  string          `json:"created_at"`
	UpdatedAt  string          `json:"updated_at"`
}

// Value is a tagged attribute value for building attribute maps.
type Value struct {
	Type  string `json:"type"`
	Value any    `json:"value"`
}

// Row is one object row of a Draft. Fields holds nested object rows.
type Row struct {
	Key    string `json:"key"`
	Type   string `json:"type"`
	Value  string `json:"value,omitempty"`
	Fields []Row  `json:"fields,omitempty"`
}

// Draft is an attribute edit: scalars and comma separated arrays use
// Value, objects use Rows.
type Draft struct {
	Key   string `json:"key"`
	Type  string `json:"type"`
	Value string `json:"value,omitempty"`
	Rows  []Row  `json:"rows,omitempty"`
}

type AttributeEdit struct {
	SubProcess  SubProcess      `json:"sub_process"`
	Key         string          `json:"key"`
	RenamedFrom string          `json:"renamed_from,omitempty"`
	Created     bool            `json:"created"`
	Rendered    json.RawMessage `json:"rendered"`
}

type AttributeName struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type FollowUp struct {
	ID           string `json:"id"`
	ProcessID    string `json:"process_id"`
	SubProcessID string `json:"sub_process_id"`
	AttributeKey string `json:"attribute_key"`
	Question     string `json:"question"`
	Status       string `json:"status"`
	CreatedBy    string `json:"created_by,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	ProcessID  string `json:"process_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// Change is a live notification from the change stream.
type Change struct {
	EventID      int64  `json:"event_id"`
	Type         string `json:"type"`
	ProcessID    string `json:"process_id"`
	SubProcessID string `json:"sub_process_id"`
	EntityKind   string `json:"entity_kind"`
	EntityID     string `json:"entity_id"`
	ActorID      string `json:"actor_id"`
	TS           string `json:"ts"`
}

// APIError wraps non-2xx responses. Code and Message come from the error
// envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// DevLogin exchanges an allow-listed email for a bearer token and keeps it
// on the client. Servers only offer this with dev login enabled.
func (c *Client) DevLogin(ctx context.Context, email string) error {
	var resp struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]string{"email": email}, &resp); err != nil {
		return err
	}
	c.BearerToken = resp.Token
	return nil
}

// CreateProcess creates a process title. An empty id is derived from the name.
func (c *Client) CreateProcess(ctx context.Context, id, name string) (ProcessTitle, error) {
	var resp ProcessTitle
	err := c.do(ctx, http.MethodPost, "processes", map[string]any{"id": id, "name": name}, &resp)
	return resp, err
}

func (c *Client) ListProcesses(ctx context.Context) ([]ProcessTitle, error) {
	var resp []ProcessTitle
	err := c.do(ctx, http.MethodGet, "processes", nil, &resp)
	return resp, err
}

func (c *Client) DeleteProcess(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "processes/"+url.PathEscape(id), nil, nil)
}

// CreateSubProcess appends a sub-process with optional initial attributes.
func (c *Client) CreateSubProcess(ctx context.Context, processID, name string, attributes map[string]Value) (SubProcess, error) {
	body := map[string]any{"name": name}
	if len(attributes) > 0 {
		body["attributes"] = attributes
	}
	var resp SubProcess
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("processes/%s/sub-processes", url.PathEscape(processID)), body, &resp)
	return resp, err
}

func (c *Client) ListSubProcesses(ctx context.Context, processID string) ([]SubProcess, error) {
	var resp []SubProcess
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("processes/%s/sub-processes", url.PathEscape(processID)), nil, &resp)
	return resp, err
}

func (c *Client) GetSubProcess(ctx context.Context, id string) (SubProcess, error) {
	var resp SubProcess
	err := c.do(ctx, http.MethodGet, "sub-processes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// AddAttribute adds a new attribute built from the draft.
func (c *Client) AddAttribute(ctx context.Context, subProcessID string, d Draft) (AttributeEdit, error) {
	var resp AttributeEdit
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("sub-processes/%s/attributes", url.PathEscape(subProcessID)), d, &resp)
	return resp, err
}

// EditAttribute replaces the attribute stored under key. A different
// d.Key renames it.
func (c *Client) EditAttribute(ctx context.Context, subProcessID, key string, d Draft) (AttributeEdit, error) {
	var resp AttributeEdit
	endpoint := fmt.Sprintf("sub-processes/%s/attributes/%s", url.PathEscape(subProcessID), url.PathEscape(key))
	err := c.do(ctx, http.MethodPut, endpoint, d, &resp)
	return resp, err
}

func (c *Client) DeleteAttribute(ctx context.Context, subProcessID, key string) (SubProcess, error) {
	var resp SubProcess
	endpoint := fmt.Sprintf("sub-processes/%s/attributes/%s", url.PathEscape(subProcessID), url.PathEscape(key))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// AttributeText returns the plain-text rendering of a sub-process's attributes.
func (c *Client) AttributeText(ctx context.Context, subProcessID string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}
	endpoint := fmt.Sprintf("sub-processes/%s/attributes?format=text", url.PathEscape(subProcessID))
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Text, err
}

// SuggestNames looks up catalog names containing partial, excluding current.
func (c *Client) SuggestNames(ctx context.Context, partial, current string) ([]AttributeName, error) {
	q := url.Values{}
	q.Set("q", partial)
	if current != "" {
		q.Set("current", current)
	}
	var resp []AttributeName
	err := c.do(ctx, http.MethodGet, "attribute-names?"+q.Encode(), nil, &resp)
	return resp, err
}

func (c *Client) AskFollowUp(ctx context.Context, processID, subProcessID, key, question string) (FollowUp, error) {
	body := map[string]string{
		"sub_process_id": subProcessID,
		"attribute_key":  key,
		"question":       question,
	}
	var resp FollowUp
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("processes/%s/follow-ups", url.PathEscape(processID)), body, &resp)
	return resp, err
}

func (c *Client) ResolveFollowUp(ctx context.Context, id string) (FollowUp, error) {
	var resp FollowUp
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("follow-ups/%s/resolve", url.PathEscape(id)), nil, &resp)
	return resp, err
}

// OpenFollowUpCounts returns open follow-ups per sub-process id.
func (c *Client) OpenFollowUpCounts(ctx context.Context, processID string) (map[string]int, error) {
	var resp struct {
		Counts map[string]int `json:"counts"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("processes/%s/follow-ups/open-counts", url.PathEscape(processID)), nil, &resp)
	return resp.Counts, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Changes streams live change notifications for a process title (all
// processes when processID is empty) until ctx is done or the server
// closes the stream. It returns once the server reports the subscription
// live; the channel is closed when the stream ends.
func (c *Client) Changes(ctx context.Context, processID string) (<-chan Change, error) {
	endpoint := "changes"
	if processID != "" {
		endpoint += "?process_id=" + url.QueryEscape(processID)
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	// The stream is long lived; only ctx bounds it.
	client := &http.Client{Transport: c.httpClient().Transport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, readAPIError(resp)
	}
	stream := &eventStream{scanner: bufio.NewScanner(resp.Body)}
	if name, _, ok := stream.next(); !ok || name != "ready" {
		resp.Body.Close()
		return nil, fmt.Errorf("change stream: expected ready event, got %q", name)
	}
	out := make(chan Change)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		for {
			name, data, ok := stream.next()
			if !ok {
				return
			}
			if name != "change" {
				continue
			}
			var ch Change
			if err := json.Unmarshal(data, &ch); err != nil {
				continue
			}
			select {
			case out <- ch:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type eventStream struct {
	scanner *bufio.Scanner
}

// next returns the name and data of the next server-sent event.
func (s *eventStream) next() (string, []byte, bool) {
	var name string
	var data []byte
	for s.scanner.Scan() {
		line := s.scanner.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimSpace(strings.TrimPrefix(line, "data:"))...)
		case line == "" && data != nil:
			if name == "" {
				name = "message"
			}
			return name, data, true
		}
	}
	return "", nil, false
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	req, err := c.newRequest(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return readAPIError(resp)
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base()+"/"+strings.TrimLeft(endpoint, "/"), &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	return c.HTTPClient
}

func readAPIError(resp *http.Response) error {
	b, _ := io.ReadAll(resp.Body)
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(b, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
