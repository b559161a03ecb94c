// Package catalog is a thin client for the event catalog service. Ticket
// operations consult it before touching inventory; it is never part of a
// database transaction so a slow catalog cannot hold row locks.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eventtix/ticket-service/internal/model"
)

// Venue is the catalog's location block for an event.
type Venue struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

// Event is the subset of the catalog's event document this service reads.
type Event struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Status    string    `json:"status"`
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
	Venue     Venue     `json:"venue"`
}

// Summary is the trimmed event view embedded in ticket listings. It is
// cached so listings keep working through short catalog outages.
type Summary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	StartDate time.Time `json:"startDate"`
	Venue     Venue     `json:"venue"`
}

// Client fetches events over HTTP. The Redis client may be nil, in which
// case summary caching is disabled and lookups always go upstream.
type Client struct {
	baseURL  string
	http     *http.Client
	redis    *redis.Client
	cacheTTL time.Duration
	logger   *logrus.Logger
}

// New returns a catalog client for the given base URL.
func New(baseURL string, timeout time.Duration, rdb *redis.Client, cacheTTL time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:  baseURL,
		http:     &http.Client{Timeout: timeout},
		redis:    rdb,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// GetEvent fetches one event. The caller's bearer token is forwarded so
// the catalog applies its own visibility rules. Returns
// model.ErrEventNotFound for unknown events and model.ErrUpstream for any
// other failure.
func (c *Client) GetEvent(ctx context.Context, eventID, bearer string) (*Event, error) {
	url := fmt.Sprintf("%s/api/events/%s", c.baseURL, eventID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WithError(err).WithField("event_id", eventID).Warn("catalog unreachable")
		return nil, fmt.Errorf("%w: %v", model.ErrUpstream, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, model.ErrEventNotFound
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.WithFields(logrus.Fields{
			"event_id": eventID,
			"status":   resp.StatusCode,
			"body":     string(body),
		}).Warn("catalog returned error")
		return nil, fmt.Errorf("%w: catalog returned %d", model.ErrUpstream, resp.StatusCode)
	}

	var ev Event
	if err := json.NewDecoder(resp.Body).Decode(&ev); err != nil {
		return nil, fmt.Errorf("%w: decode event: %v", model.ErrUpstream, err)
	}
	c.cacheSummary(ctx, &ev)
	return &ev, nil
}

// GetSummary returns a trimmed event view for listings, served from the
// Redis cache when the catalog is unreachable. Returns nil (not an error)
// when the event cannot be resolved at all, so one missing event does not
// fail a whole listing.
func (c *Client) GetSummary(ctx context.Context, eventID, bearer string) *Summary {
	ev, err := c.GetEvent(ctx, eventID, bearer)
	if err == nil {
		return &Summary{ID: ev.ID, Title: ev.Title, StartDate: ev.StartDate, Venue: ev.Venue}
	}
	if c.redis == nil {
		return nil
	}
	raw, rerr := c.redis.Get(ctx, summaryKey(eventID)).Bytes()
	if rerr != nil {
		return nil
	}
	var s Summary
	if jerr := json.Unmarshal(raw, &s); jerr != nil {
		return nil
	}
	return &s
}

func (c *Client) cacheSummary(ctx context.Context, ev *Event) {
	if c.redis == nil {
		return
	}
	s := Summary{ID: ev.ID, Title: ev.Title, StartDate: ev.StartDate, Venue: ev.Venue}
	raw, err := json.Marshal(s)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, summaryKey(ev.ID), raw, c.cacheTTL).Err(); err != nil {
		c.logger.WithError(err).Debug("cache event summary")
	}
}

func summaryKey(eventID string) string {
	return "catalog:event:" + eventID
}
