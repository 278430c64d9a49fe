package enums

import "fmt"

// NotificationKind maps to the `kind` field of notification payloads.
type NotificationKind string

const (
	NotificationKindOrder  NotificationKind = "order"
	NotificationKindChat   NotificationKind = "chat"
	NotificationKindCoupon NotificationKind = "coupon"
	NotificationKindSystem NotificationKind = "system"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindOrder,
	NotificationKindChat,
	NotificationKindCoupon,
	NotificationKindSystem,
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
