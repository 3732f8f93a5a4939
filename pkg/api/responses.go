package api

// StartResponse acknowledges an accepted session start.
type StartResponse struct {
	SessionID    string `json:"session_id"`
	Status       string `json:"status"`
	WebsocketURL string `json:"websocket_url"`
}

// StopResponse acknowledges an accepted stop request.
type StopResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// HealthCheck is one component's health entry.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the GET /health body.
type HealthResponse struct {
	Status         string                 `json:"status"`
	Version        string                 `json:"version"`
	ActiveSessions int                    `json:"active_sessions"`
	Checks         map[string]HealthCheck `json:"checks"`
}
