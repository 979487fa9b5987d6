package admin

import "github.com/tgnms/groupsocket/pkg/websocket"

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
	Uptime int64  `json:"uptime"`
}

// PublishResponse is returned by POST /api/groups/{group}/messages.
type PublishResponse struct {
	Group      string `json:"group"`
	Recipients int    `json:"recipients"`
}

// GroupResponse is returned by GET /api/groups/{group}.
type GroupResponse struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// StatsResponse is returned by GET /api/stats.
type StatsResponse struct {
	websocket.Stats
	ActiveConnections int   `json:"activeConnections"`
	Uptime            int64 `json:"uptime"`
}
