package eventstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/ndenisov/calmind/internal/domain"
	"github.com/ndenisov/calmind/internal/repository"
)

// TokenSource supplies the current bearer credential. Token storage and
// refresh live outside this package.
type TokenSource func() string

// Client is the REST client for the remote event store.
type Client struct {
	baseURL    string
	token      TokenSource
	httpClient *http.Client
	timezone   *time.Location
}

// NewClient creates a new event store client.
func NewClient(baseURL string, token TokenSource, tz *time.Location) *Client {
	if tz == nil {
		tz = time.Local
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		timezone: tz,
	}
}

// doRequest performs an HTTP request with auth. Transport failures come back
// as *domain.TransportError, non-2xx statuses as *domain.ServerError.
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.ClassifyTransport(err)
	}

	if resp.StatusCode >= 400 {
		return nil, &domain.ServerError{StatusCode: resp.StatusCode}
	}

	return respBody, nil
}

// List returns all events owned by ownerID, shaped into domain events. Each
// event gets a fresh local id; the caller reconciles identity by APIID.
func (c *Client) List(ctx context.Context, ownerID int64) ([]*domain.CalendarEvent, error) {
	data, err := c.doRequest(ctx, "GET", fmt.Sprintf("/events?owner_id=%d", ownerID), nil)
	if err != nil {
		return nil, err
	}

	var wire []Event
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("unmarshal events: %w", err)
	}

	events := make([]*domain.CalendarEvent, 0, len(wire))
	for i := range wire {
		events = append(events, c.toDomain(&wire[i]))
	}
	return events, nil
}

// Create creates a new event and returns the server's result.
func (c *Client) Create(ctx context.Context, ownerID int64, ev *domain.CalendarEvent) (*repository.Result, error) {
	data, err := c.doRequest(ctx, "POST", "/events", c.toWire(ownerID, ev))
	if err != nil {
		return nil, err
	}
	return parseResult(data)
}

// Update updates the event identified by its server id.
func (c *Client) Update(ctx context.Context, ownerID int64, ev *domain.CalendarEvent) (*repository.Result, error) {
	if ev.APIID == nil {
		return nil, &domain.ValidationError{Field: "event id", Reason: "is not set"}
	}
	data, err := c.doRequest(ctx, "PUT", fmt.Sprintf("/events/%d", *ev.APIID), c.toWire(ownerID, ev))
	if err != nil {
		return nil, err
	}
	return parseResult(data)
}

// Delete deletes the event identified by its server id.
func (c *Client) Delete(ctx context.Context, apiID int64) (*repository.Result, error) {
	data, err := c.doRequest(ctx, "DELETE", fmt.Sprintf("/events/%d", apiID), nil)
	if err != nil {
		return nil, err
	}
	return parseResult(data)
}

// CheckSession performs a lightweight authenticated round trip. Any failure
// means the session cannot be trusted.
func (c *Client) CheckSession(ctx context.Context) error {
	_, err := c.doRequest(ctx, "GET", "/session", nil)
	return err
}

func parseResult(data []byte) (*repository.Result, error) {
	var resp MutationResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	return &repository.Result{
		Success: resp.Success,
		Message: resp.Message,
		ID:      resp.ID,
	}, nil
}

func (c *Client) toWire(ownerID int64, ev *domain.CalendarEvent) *EventRequest {
	req := &EventRequest{
		Title:       ev.Title,
		StartTime:   ev.StartAt(c.timezone),
		EndTime:     ev.EndAt(c.timezone),
		Description: ev.Description,
		Location:    ev.Location,
		OwnerID:     ownerID,
	}
	if ev.Reminder != nil {
		min := int(ev.Reminder.Duration().Minutes())
		req.NotifyBeforeMin = &min
	}
	return req
}

func (c *Client) toDomain(w *Event) *domain.CalendarEvent {
	start := w.StartTime.In(c.timezone)
	end := w.EndTime.In(c.timezone)

	apiID := w.ID
	ev := &domain.CalendarEvent{
		ID:          uuid.NewString(),
		APIID:       &apiID,
		Title:       w.Title,
		Date:        time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, c.timezone),
		Start:       domain.TimeOfDay{Hour: start.Hour(), Minute: start.Minute()},
		End:         domain.TimeOfDay{Hour: end.Hour(), Minute: end.Minute()},
		Description: w.Description,
		Location:    w.Location,
	}
	// Zero is a valid lead time, remind at the start instant.
	if w.NotifyBeforeMin != nil {
		ev.Reminder = &domain.Offset{
			Hours:   *w.NotifyBeforeMin / 60,
			Minutes: *w.NotifyBeforeMin % 60,
		}
	}
	return ev
}
