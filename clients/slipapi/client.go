package slipapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/mcdev12/betslip/clients"
)

// ErrStaleDraft marks the "resource not found / no longer a draft" failure
// class. Callers treat it as recoverable: invalidate the cached draft id,
// recreate and retry once. Every other failure is terminal for the attempt.
var ErrStaleDraft = errors.New("draft resource is stale")

type Client struct {
	*clients.BaseClient
}

func NewClient(baseURL, apiKey string) *Client {
	client := &Client{
		BaseClient: clients.NewBaseClient(baseURL),
	}

	if apiKey != "" {
		client.SetHeader(APIKeyHeader, apiKey)
	}
	client.SetHeader("Content-Type", "application/json")

	return client
}

func NewClientWithTimeout(baseURL, apiKey string, timeout time.Duration) *Client {
	client := NewClient(baseURL, apiKey)
	client.SetTimeout(timeout)
	return client
}

// classify maps draft-scoped HTTP failures onto the stale-resource error
// class. 404 and 410 mean the draft is gone; 409 means it exists but is no
// longer mutable (already submitted or expired server-side).
func classify(err error) error {
	var statusErr *clients.StatusError
	if errors.As(err, &statusErr) {
		switch statusErr.StatusCode {
		case http.StatusNotFound, http.StatusGone, http.StatusConflict:
			return ErrStaleDraft
		}
	}
	return err
}
