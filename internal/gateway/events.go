package gateway

import (
	"encoding/json"

	"github.com/hazyhaar/vitrine/internal/store"
)

// Message types on the wire. Inbound messages carry client intents,
// outbound messages carry session lifecycle and scrape results.
const (
	TypeNavigate   = "navigate"
	TypeGetDetails = "get-details"

	TypeSessionReady = "session-ready"
	TypeScrapeStatus = "scrape-status"
	TypeDataChunk    = "data-chunk"
	TypeError        = "error"
)

// Scrape status values emitted on scrape-status events.
const (
	ScrapeActive   = "active"
	ScrapeIdle     = "idle"
	ScrapeScraping = "scraping"
	ScrapeReady    = "ready"
)

// Envelope wraps every message in both directions.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NavigatePayload is the inbound intent for hover, click, and paginate.
type NavigatePayload struct {
	Target         string `json:"target"`
	Action         string `json:"action"`
	CategorySlug   string `json:"categorySlug,omitempty"`
	NavigationSlug string `json:"navigationSlug,omitempty"`
}

// GetDetailsPayload is the inbound product-detail request. Target is the
// product's stable source identifier.
type GetDetailsPayload struct {
	Target string `json:"target"`
}

// SessionReadyPayload is emitted exactly once, before any other outbound
// message on the connection.
type SessionReadyPayload struct {
	SessionID string `json:"sessionId"`
}

// ScrapeStatusPayload reports where the session is in its scrape cycle.
type ScrapeStatusPayload struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// DataChunkPayload carries extracted products back to the client.
type DataChunkPayload struct {
	Products     []store.Product `json:"products"`
	TotalScraped int             `json:"totalScraped"`
	HasMore      bool            `json:"hasMore"`
	Message      string          `json:"message"`
}

// ErrorPayload carries a user-facing error message.
type ErrorPayload struct {
	Message string `json:"message"`
}

func envelope(msgType string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Type: msgType, Payload: raw}, nil
}
