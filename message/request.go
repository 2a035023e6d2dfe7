package message

// Outbound requests understood by the backend's consumers.

// Ping asks the services channel for a [Pong].
type Ping struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewPing builds a ping stamped with ts (unix milliseconds).
func NewPing(ts int64) Ping {
	return Ping{Type: "ping", Timestamp: ts}
}

// GetLogs asks a per-service channel for recent container logs.
type GetLogs struct {
	Type string `json:"type"`
}

// NewGetLogs builds a log request.
func NewGetLogs() GetLogs {
	return GetLogs{Type: "get_logs"}
}

// SubscribeService narrows the events channel to one service's events.
type SubscribeService struct {
	Type      string `json:"type"`
	ServiceID int    `json:"service_id"`
}

// NewSubscribeService builds a per-service event subscription request.
func NewSubscribeService(serviceID int) SubscribeService {
	return SubscribeService{Type: "subscribe_service", ServiceID: serviceID}
}
