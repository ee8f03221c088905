package backend

import "time"

// HealthStatus is the backend's health report plus client-side timing.
type HealthStatus struct {
	// Status is the backend's own verdict, e.g. "ok".
	Status string `json:"status"`

	// MQTTConnected reports whether the backend's broker link is up.
	MQTTConnected bool `json:"mqtt_connected"`

	// MQTTBroker and MQTTTopic identify the backend's broker subscription.
	MQTTBroker string `json:"mqtt_broker"`
	MQTTTopic  string `json:"mqtt_topic"`

	// ServerTime is the backend's clock at response time.
	ServerTime time.Time `json:"server_time"`

	// Latency is the measured round trip of the health request.
	Latency time.Duration `json:"-"`

	// ClockOffset is ServerTime minus the local clock at the midpoint of
	// the request, usable for a synchronized on-screen clock.
	ClockOffset time.Duration `json:"-"`
}

// RemoteLogEntry is one server-side system log record.
type RemoteLogEntry struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Detail    string    `json:"detail,omitempty"`
}

// LogPage is one page of server-side log history.
type LogPage struct {
	Logs  []RemoteLogEntry `json:"logs"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Size  int              `json:"size"`
}

// LogQuery selects a page of server-side log history.
type LogQuery struct {
	Page   int
	Size   int
	Type   string
	Search string
}

// controlRequest is the power control request body.
type controlRequest struct {
	MACAddress string `json:"mac_address"`
	PowerState string `json:"power_state"`
}

// loginRequest and loginResponse carry the token exchange.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}
