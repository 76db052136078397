package domain

// WorkspaceVersion is the current on-disk layout of a workspace tree.
const WorkspaceVersion = 1

// Workspace is the persisted form of the tab/collection tree.
// Every node is keyed by a stable id so a save/load round trip
// preserves identity.
type Workspace struct {
	Name        string       `json:"name"`
	Version     int          `json:"version"`
	Collections []Collection `json:"collections"`
}

// Collection is a named, ordered group of tabs.
type Collection struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Selected string `json:"selected,omitempty"` // id of the selected tab
	Tabs     []Tab  `json:"tabs"`
}

// Tab kinds as written to disk.
const (
	KindHTTP      = "http"
	KindWebSocket = "websocket"
	KindGRPC      = "grpc"
)

// Tab holds exactly one request record matching Kind.
type Tab struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Kind      string            `json:"kind"`
	HTTP      *HTTPRequest      `json:"http,omitempty"`
	WebSocket *WebSocketRequest `json:"websocket,omitempty"`
	GRPC      *GRPCRequest      `json:"grpc,omitempty"`
}
