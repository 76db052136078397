package domain

import "time"

// HistoryEntry is a record of one resolved request attempt
type HistoryEntry struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	TabID      string        `json:"tab_id"`
	Protocol   string        `json:"protocol"`          // "http", "websocket" or "grpc"
	Method     string        `json:"method"`            // HTTP verb or "package.Service/Method"
	Target     string        `json:"target"`            // URL or gRPC address
	Request    string        `json:"request,omitempty"` // Request body or JSON payload
	Response   string        `json:"response,omitempty"`
	StatusCode string        `json:"status_code,omitempty"`
	Duration   time.Duration `json:"duration"`
	Size       int64         `json:"size"`
	Status     string        `json:"status"` // "completed", "failed" or "cancelled"
	Error      string        `json:"error,omitempty"`
	Metadata   Metadata      `json:"metadata"`
}

// Metadata represents request/response headers
type Metadata struct {
	Request  map[string]string `json:"request,omitempty"`
	Response map[string]string `json:"response,omitempty"`
}
