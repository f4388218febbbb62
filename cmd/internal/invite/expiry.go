package invite

import (
	"fmt"
	"time"
)

// FormatExpiry renders the time left until expiresAt the way the invite
// list shows it: "Expired", "3d 4h", "5h 12m" or "42m".
func FormatExpiry(expiresAt, now time.Time) string {
	left := expiresAt.Sub(now)
	if left <= 0 {
		return "Expired"
	}
	days := int(left / day)
	hours := int(left % day / time.Hour)
	minutes := int(left % time.Hour / time.Minute)
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
