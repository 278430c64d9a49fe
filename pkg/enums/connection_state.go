package enums

import "fmt"

// ConnectionState is the lifecycle state of a real-time feed.
type ConnectionState string

const (
	ConnectionStateConnecting      ConnectionState = "connecting"
	ConnectionStateOpen            ConnectionState = "open"
	ConnectionStateClosed          ConnectionState = "closed"
	ConnectionStateFallbackPolling ConnectionState = "fallback_polling"
)

var validConnectionStates = []ConnectionState{
	ConnectionStateConnecting,
	ConnectionStateOpen,
	ConnectionStateClosed,
	ConnectionStateFallbackPolling,
}

// String implements fmt.Stringer.
func (c ConnectionState) String() string {
	return string(c)
}

// IsValid reports whether the value is a known ConnectionState.
func (c ConnectionState) IsValid() bool {
	for _, candidate := range validConnectionStates {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseConnectionState converts raw input into a ConnectionState.
func ParseConnectionState(value string) (ConnectionState, error) {
	for _, candidate := range validConnectionStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid connection state %q", value)
}
