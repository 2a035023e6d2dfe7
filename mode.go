package pulsedeck

// Mode describes how the dashboard is being kept current.
//
// Mode is a string type so it serializes and logs as a readable value.
type Mode string

const (
	// ModeLive means every configured channel is open and pushes arrive
	// as they happen.
	ModeLive Mode = "live"

	// ModePolling means at least one channel is not open; the stores are
	// kept current by the periodic refetch alone.
	ModePolling Mode = "polling"
)

// String returns the string representation of the mode.
// This implements the fmt.Stringer interface.
func (m Mode) String() string {
	return string(m)
}

// Channel paths understood by the dashboard.
const (
	ChannelServices   = "/ws/services/"
	ChannelEvents     = "/ws/events/"
	ChannelMonitoring = "/ws/monitoring/"

	// ChannelAlerts carries new_alert and alert_resolved. It is not in
	// [DefaultChannels]; enable it with [WithChannels].
	ChannelAlerts = "/ws/alerts/"
)

// DefaultChannels are opened by [Dashboard.Start] unless [WithChannels]
// says otherwise.
var DefaultChannels = []string{ChannelServices, ChannelEvents, ChannelMonitoring}

func knownChannel(path string) bool {
	switch path {
	case ChannelServices, ChannelEvents, ChannelMonitoring, ChannelAlerts:
		return true
	default:
		return false
	}
}
