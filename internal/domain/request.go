package domain

import "time"

// Field is one row of a header, query or metadata table.
type Field struct {
	Key     string `json:"key"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

// Auth is the persisted authentication profile. Inactive variants keep
// their values so switching back restores them.
type Auth struct {
	Kind         string `json:"kind"`
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"`
	Token        string `json:"token,omitempty"`
	APIKeyHeader string `json:"api_key_header,omitempty"`
	APIKeyValue  string `json:"api_key_value,omitempty"`
}

// HTTPRequest is a saved HTTP exchange with its last response.
type HTTPRequest struct {
	ID       string        `json:"id"`
	Method   string        `json:"method,omitempty"`
	URL      string        `json:"url"`
	Query    []Field       `json:"query,omitempty"`
	Headers  []Field       `json:"headers,omitempty"`
	Auth     Auth          `json:"auth"`
	Body     string        `json:"body,omitempty"`
	Response *HTTPResponse `json:"response,omitempty"`
}

// HTTPResponse is the last resolved response of an HTTP exchange.
type HTTPResponse struct {
	StatusCode int               `json:"status_code"`
	StatusText string            `json:"status_text,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	Body       string            `json:"body"`
	Elapsed    time.Duration     `json:"elapsed"`
	IssuedAt   time.Time         `json:"issued_at"`
}

// WebSocketRequest is a saved WebSocket session and its transcript.
type WebSocketRequest struct {
	ID             string            `json:"id"`
	URL            string            `json:"url"`
	PendingMessage string            `json:"pending_message,omitempty"`
	Transcript     []TranscriptEntry `json:"transcript,omitempty"`
}

// TranscriptEntry is one message exchanged on a WebSocket session.
type TranscriptEntry struct {
	Direction string    `json:"direction"` // "sent", "received" or "info"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// GRPCRequest is a saved unary gRPC call.
type GRPCRequest struct {
	ID               string    `json:"id"`
	Target           string    `json:"target"`
	DescriptorSource string    `json:"descriptor_source,omitempty"`
	Service          string    `json:"service,omitempty"`
	Method           string    `json:"method,omitempty"`
	Discovered       []RPCSet  `json:"discovered,omitempty"` // catalog of DescriptorSource
	Metadata         []Field   `json:"metadata,omitempty"`
	Request          string    `json:"request,omitempty"`  // JSON request payload
	Response         string    `json:"response,omitempty"` // JSON response payload
	StatusCode       string    `json:"status_code,omitempty"`
	IssuedAt         time.Time `json:"issued_at,omitzero"`
}

// RPCSet is one discovered service with its method names in declaration order.
type RPCSet struct {
	Service string   `json:"service"`
	Methods []string `json:"methods"`
}
