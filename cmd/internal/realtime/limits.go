package realtime

import "time"

const (
	// Max bytes per inbound frame. Clients only send subscribe frames.
	maxFrameBytes = 4 << 10

	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Inbound frames per connection per window.
	rateLimitEvents = 20
	rateLimitWindow = 10 * time.Second
)
