package slipapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/mcdev12/betslip/internal/models"
)

type eventsResponse struct {
	Events []models.Event `json:"events"`
}

// GetEvents performs the batch event query: canonical current data (status,
// prices, score) for the given event ids.
func (c *Client) GetEvents(ctx context.Context, eventIDs []string) ([]models.Event, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s?ids=%s", EventsEndpoint, url.QueryEscape(strings.Join(eventIDs, ",")))
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get events: %w", err)
	}

	var response eventsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal events: %w, raw response: %s", err, string(body))
	}

	return response.Events, nil
}

// GetBetRecord fetches the placed-bet record for an event, used to refresh
// the local cache after a settlement notification.
func (c *Client) GetBetRecord(ctx context.Context, eventID string) (*models.BetRecord, error) {
	endpoint := fmt.Sprintf("%s?event_id=%s", BetsEndpoint, url.QueryEscape(eventID))
	body, err := c.Get(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get bet record: %w", err)
	}

	var record models.BetRecord
	if err := json.Unmarshal(body, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal bet record: %w, raw response: %s", err, string(body))
	}

	return &record, nil
}
