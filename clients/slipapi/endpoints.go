package slipapi

const (
	// API Endpoints
	DraftsEndpoint = "/v1/slips/drafts"
	EventsEndpoint = "/v1/events"
	BetsEndpoint   = "/v1/bets"

	// Headers
	APIKeyHeader = "X-Api-Key"
)
