package websocket

import (
	"time"

	"github.com/gorilla/websocket"
)

// EventType represents the type of WebSocket event
type EventType string

const (
	// EventTypeAnonymization is emitted after every anonymization call
	EventTypeAnonymization EventType = "anonymization"
	// EventTypeSystemStatus represents a system status event
	EventTypeSystemStatus EventType = "system_status"
	// EventTypeConnection represents connection events
	EventTypeConnection EventType = "connection"
	// EventTypePong answers a client ping
	EventTypePong EventType = "pong"
)

// Event represents a WebSocket event sent to clients
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
	RequestID string      `json:"request_id,omitempty"`
}

// AnonymizationEvent summarises one anonymization call. It carries counts
// and labels only, never entity text.
type AnonymizationEvent struct {
	RequestID    string         `json:"request_id"`
	Source       string         `json:"source"`
	Strategy     string         `json:"strategy"`
	Language     string         `json:"language"`
	InputLength  int            `json:"input_length"`
	EntityCount  int            `json:"entity_count"`
	EntityTypes  map[string]int `json:"entity_types"`
	ProcessingMS float64        `json:"processing_ms"`
}

// SystemStatusEvent represents system status information
type SystemStatusEvent struct {
	Status              string   `json:"status"`
	Uptime              string   `json:"uptime"`
	TotalRequests       int64    `json:"total_requests"`
	TotalEntities       int64    `json:"total_entities"`
	ConnectedClients    int      `json:"connected_clients"`
	SemanticLanguages   []string `json:"semantic_languages"`
	EnabledPatternRules []string `json:"enabled_pattern_rules"`
}

// ConnectionEvent represents WebSocket connection events
type ConnectionEvent struct {
	Action    string `json:"action"` // "connected", "disconnected"
	ClientID  string `json:"client_id"`
	ClientIP  string `json:"client_ip"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ClientMessage represents messages sent from clients to server
type ClientMessage struct {
	Type   string      `json:"type"`
	Events []EventType `json:"events,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	ID          string
	Conn        *websocket.Conn
	Send        chan Event
	ConnectedAt time.Time
	IP          string
	UserAgent   string

	// nil means every event
	subscription map[EventType]bool
}
